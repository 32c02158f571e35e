package claims

import "errors"

var (
	ErrInvalidAccount    = errors.New("claims: invalid account")
	ErrNothingToWithdraw = errors.New("claims: nothing to withdraw")
	ErrUnknownLedger     = errors.New("claims: unknown ledger")
	ErrTransferFailed    = errors.New("claims: transfer failed")
	ErrNilState          = errors.New("claims: state not configured")
)
