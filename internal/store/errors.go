package store

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrRoundNotActive      = errors.New("round not active")
	ErrRoundNotDue         = errors.New("round not due")
	ErrLedgerWriteFailed   = errors.New("ledger write failed")
)
