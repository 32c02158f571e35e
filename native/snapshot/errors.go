package snapshot

import "errors"

var (
	ErrSnapshotTooEarly   = errors.New("snapshot: too early")
	ErrNoSupply           = errors.New("snapshot: no supply")
	ErrTokenNotOwned      = errors.New("snapshot: token not owned by claimant")
	ErrTokenNotInSnapshot = errors.New("snapshot: token not in snapshot")
	ErrInvalidAmount      = errors.New("snapshot: amount must not be negative")
	ErrOwnershipNotSet    = errors.New("snapshot: ownership source not configured")
)
