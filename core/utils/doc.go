// Package utils provides helpers shared by the feature packages: record
// identifier generation and canonicalization, and request body validation.
package utils
