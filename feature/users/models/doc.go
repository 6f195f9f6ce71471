// Package models defines the persisted User record and its request bodies.
// Password material is never serialized.
package models
