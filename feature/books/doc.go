// Package books exposes create, read, update and delete for the book catalog.
//
// The holder column is not writable here. It changes only through the
// lending feature's checkout and return, so an edit cannot race a hold.
package books
