package ledger

import (
	"errors"

	"nameshare/native/claims"
	"nameshare/native/collections"
	"nameshare/native/conversion"
	"nameshare/native/snapshot"
	"nameshare/native/split"
	"nameshare/native/units"
)

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{collections.ErrAlreadyRegistered, "already_registered"},
	{collections.ErrInvalidShares, "invalid_shares"},
	{collections.ErrUnknownCollection, "unknown_collection"},
	{collections.ErrInvalidCollectionID, "invalid_collection_id"},
	{split.ErrAmountOverflow, "amount_overflow"},
	{split.ErrInvalidAmount, "invalid_amount"},
	{conversion.ErrNegativeAmount, "invalid_amount"},
	{snapshot.ErrSnapshotTooEarly, "snapshot_too_early"},
	{snapshot.ErrNoSupply, "no_supply"},
	{snapshot.ErrTokenNotOwned, "token_not_owned"},
	{snapshot.ErrTokenNotInSnapshot, "token_not_in_snapshot"},
	{claims.ErrInvalidAccount, "invalid_account"},
	{claims.ErrNothingToWithdraw, "nothing_to_withdraw"},
	{claims.ErrTransferFailed, "transfer_failed"},
	{units.ErrUnitNotFound, "unit_not_found"},
	{units.ErrNotOwner, "not_owner"},
	{ErrUnknownLedger, "unknown_ledger"},
	{ErrUncommittedTransfer, "uncommitted_transfer"},
	{claims.ErrUnknownLedger, "unknown_ledger"},
}

// reasonOf maps err to a low-cardinality metric label.
func reasonOf(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
