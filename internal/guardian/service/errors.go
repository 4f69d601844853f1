package service

import "errors"

var (
	// ErrInvalidInput marks malformed position data. The position is skipped for the tick.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDeliveryFailure marks an alert that could not be delivered after all attempts.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrPersistenceFailure marks a state store read or write that failed.
	ErrPersistenceFailure = errors.New("persistence failure")

	ErrPositionNotFound = errors.New("position not found")
	ErrInvalidStopLoss  = errors.New("invalid stop loss")
	ErrFeedUnavailable  = errors.New("price feed unavailable")
)
