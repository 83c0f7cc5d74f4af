package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrSelfTransfer        = errors.New("cannot transfer to same account")

	// ErrVersionConflict reports that a conditional write lost the race
	// against a concurrent writer. Retried by the ledger, never surfaced
	// to callers until retries are exhausted.
	ErrVersionConflict = errors.New("optimistic lock conflict")

	// ErrTransientStore marks storage failures that are worth retrying
	// (connection drops, serialization failures, deadlocks).
	ErrTransientStore = errors.New("transient store error")

	ErrDuplicateReference = errors.New("transaction reference already exists")
)
