package user

import "errors"

var (
	ErrNotFound    = errors.New("user not found")
	ErrDisabled    = errors.New("user is disabled")
	ErrPINNotSet   = errors.New("transaction pin not set")
	ErrPINLocked   = errors.New("pin entry is locked")
	ErrPINMismatch = errors.New("pin does not match")
)
