package uid

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewSortable generates a lexicographically time-ordered identifier.
// Used for categories and inventory items so ids sort in creation order.
func NewSortable() string {
	return ulid.Make().String()
}
