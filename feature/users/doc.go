// Package users manages library members.
//
// Passwords are stored as a salted argon2id hash and never leave the
// service. Registration is rate limited by server.register_per_minute.
package users
