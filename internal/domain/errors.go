package domain

import "errors"

var (
	// ErrInvalidHeader is returned when the CSV header row is missing or
	// does not contain the required columns
	ErrInvalidHeader = errors.New("invalid CSV header")

	// ErrUnknownMergePolicy is returned for an unrecognized merge policy name
	ErrUnknownMergePolicy = errors.New("unknown merge policy")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrPromotionNotFound is returned when a promotion is not found
	ErrPromotionNotFound = errors.New("promotion not found")
)
