package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// CanonicalID parses raw as a record identifier and returns its canonical
// lower-case hyphenated form. Surrounding whitespace is ignored.
func CanonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
