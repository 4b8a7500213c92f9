package wallet

import "errors"

var (
	ErrNotFound            = errors.New("wallet not found")
	ErrNotActive           = errors.New("wallet is not active")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDailyLimitExceeded  = errors.New("daily spending limit exceeded")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	ErrReferenceConflict   = errors.New("reference already used with different parameters")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid transaction status transition")
)
