package collections

import "errors"

var (
	ErrAlreadyRegistered   = errors.New("collections: already registered")
	ErrInvalidShares       = errors.New("collections: invalid shares")
	ErrUnknownCollection   = errors.New("collections: unknown collection")
	ErrInvalidCollectionID = errors.New("collections: invalid collection id")
)
