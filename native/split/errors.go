package split

import "errors"

var (
	ErrInvalidAmount  = errors.New("split: amount must not be negative")
	ErrAmountOverflow = errors.New("split: amount exceeds 256 bits")
	ErrUnknownLedger  = errors.New("split: unknown ledger")
	ErrNilState       = errors.New("split: state not configured")
)
