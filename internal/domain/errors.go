package domain

import "errors"

// Store-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
)
