package util

import "github.com/google/uuid"

// NewID returns a random UUID string used for every persisted record.
func NewID() string {
	return uuid.NewString()
}
