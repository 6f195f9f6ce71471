package models

import "time"

// User is a library member who can hold books.
type User struct {
	ID           string    `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	Email        string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"column:username;type:varchar(64);not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(128);not null" json:"-"`
	PasswordSalt string    `gorm:"column:password_salt;type:varchar(64);not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name.
func (User) TableName() string {
	return "users"
}

// CreateUserRequest is the body accepted by POST /users.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// UpdateUserRequest is the body accepted by PATCH /users/:id.
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Username *string `json:"username" validate:"omitempty,min=3,max=64"`
	Password *string `json:"password" validate:"omitempty,min=8,max=128"`
}
