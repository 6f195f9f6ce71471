package models

import "time"

// Book is a lendable item. HolderID is nil while the book is available.
type Book struct {
	ID        string    `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Author    string    `gorm:"column:author;type:varchar(255);not null" json:"author"`
	ISBN13    string    `gorm:"column:isbn13;type:varchar(13);index" json:"isbn13"`
	NumPages  int       `gorm:"column:num_pages;default:0" json:"num_pages"`
	HolderID  *string   `gorm:"column:holder_id;type:char(36);index;default:NULL" json:"holder_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name.
func (Book) TableName() string {
	return "books"
}

// IsAvailable reports whether nobody holds the book.
func (b Book) IsAvailable() bool {
	return b.HolderID == nil
}

// CreateBookRequest is the body accepted by POST /books.
type CreateBookRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Author   string `json:"author" validate:"required,max=255"`
	ISBN13   string `json:"isbn13" validate:"omitempty,len=13,numeric"`
	NumPages int    `json:"num_pages" validate:"gte=0"`
}

// UpdateBookRequest is the body accepted by PATCH /books/:id.
// The holder is deliberately absent: it only changes through checkout and return.
type UpdateBookRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Author   *string `json:"author" validate:"omitempty,max=255"`
	ISBN13   *string `json:"isbn13" validate:"omitempty,len=13,numeric"`
	NumPages *int    `json:"num_pages" validate:"omitempty,gte=0"`
}

// Fields returns the columns to update.
func (r UpdateBookRequest) Fields() map[string]any {
	fields := map[string]any{}
	if r.Name != nil {
		fields["name"] = *r.Name
	}
	if r.Author != nil {
		fields["author"] = *r.Author
	}
	if r.ISBN13 != nil {
		fields["isbn13"] = *r.ISBN13
	}
	if r.NumPages != nil {
		fields["num_pages"] = *r.NumPages
	}
	return fields
}
