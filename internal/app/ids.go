package app

import "github.com/google/uuid"

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like a session ID handed out by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
