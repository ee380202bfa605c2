package services

import "errors"

var (
	// ErrInvalidInput is returned when a request body fails validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("record not found")
)
