package service

import "github.com/google/uuid"

// NewEventID returns a time ordered UUIDv7. Within one process v7 ids stay unique even for
// back-to-back calls in the same millisecond (the generator keeps a monotonic sequence).
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
