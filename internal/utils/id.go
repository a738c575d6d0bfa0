package utils

import "github.com/google/uuid"

// NewID returns a random UUID string used for auctions, bids, lease tokens and
// message identifiers.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether s is a well formed UUID.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
