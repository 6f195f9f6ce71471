// Package store is the generic persistence layer for the service's entities.
//
// Repository[M] offers create, find, partial update and delete over a gorm
// model whose primary key is a string column named id. Lookups of absent
// records return ErrNotFound; every database failure is wrapped in
// ErrUnavailable so callers can tell "no such record" from "could not ask".
package store
