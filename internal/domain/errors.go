package domain

import "errors"

var (
	ErrNoSession           = errors.New("no wallet session")
	ErrBusy                = errors.New("another paid action is in flight")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrFeedNotLoaded       = errors.New("forecast feed not loaded")
	ErrWrongChain          = errors.New("node is on the wrong chain")
	ErrFeedbackLocked      = errors.New("feedback has not been paid for")
	ErrInvalidAmount       = errors.New("invalid amount")
)
