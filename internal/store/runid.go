package store

import "github.com/google/uuid"

// NewRunID returns a UUIDv7 identifier for a suite run.
// UUIDv7 embeds a millisecond timestamp, so run ids sort chronologically,
// which keeps "most recent run" queries a simple ORDER BY id DESC.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
