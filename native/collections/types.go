package collections

// ShareDenominator is the whole that every share percentage is taken from.
const ShareDenominator = 100

// Collection is the immutable revenue-split configuration of a namespace of
// units. The ecosystem share is derived at registration and the protocol
// share is the global constant in force at that time.
type Collection struct {
	ID                    string
	PayoutTarget          [20]byte
	ReferralShare         uint32
	CommunityShare        uint32
	EcosystemShare        uint32
	ProtocolShare         uint32
	PoolsIntoHolderLedger bool
	RegisteredAt          uint64
}

// HolderShare is the nominal percentage left for the holders class. The
// actual holders amount is always computed by subtraction and so also absorbs
// rounding.
func (c *Collection) HolderShare() uint32 {
	if c == nil {
		return 0
	}
	used := c.ReferralShare + c.CommunityShare + c.ProtocolShare + c.EcosystemShare
	if used >= ShareDenominator {
		return 0
	}
	return ShareDenominator - used
}

// Clone returns a copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
