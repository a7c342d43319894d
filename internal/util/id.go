package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for request and session ids.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether raw is a well-formed id issued by NewID.
func ValidID(raw string) bool {
	if len(raw) != 36 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
