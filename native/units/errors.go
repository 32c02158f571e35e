package units

import "errors"

var (
	ErrUnitNotFound = errors.New("units: unit not found")
	ErrNotOwner     = errors.New("units: sender does not own unit")
	ErrNullOwner    = errors.New("units: owner must not be the null account")
)
