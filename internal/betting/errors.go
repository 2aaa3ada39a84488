package betting

import "errors"

// Failure modes surfaced to the command layer. Validation failures mutate
// nothing; conflict failures mutate nothing either, they just report a
// state the caller raced against.
var (
	ErrNotRegistered       = errors.New("account not registered")
	ErrAlreadyRegistered   = errors.New("account already registered")
	ErrMatchNotOpen        = errors.New("match not found or not open")
	ErrInvalidSide         = errors.New("side is not part of this match")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyGranted      = errors.New("daily grant already claimed today")
)
