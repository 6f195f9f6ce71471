// Package models defines the persisted Book record and its request bodies.
package models
