package collections

import (
	"fmt"
	"sort"
	"time"

	"nameshare/core/events"
)

var (
	collectionPrefix = []byte("collections/config/")
	collectionIndex  = []byte("collections/index")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Registry is the configuration store for collections. Registrations are
// write-once.
type Registry struct {
	st            registryState
	emitter       events.Emitter
	nowFn         func() int64
	protocolShare uint32
}

// NewRegistry creates a registry backed by st. protocolShare is the global
// protocol percentage applied to every collection registered through it.
func NewRegistry(st registryState, protocolShare uint32) *Registry {
	return &Registry{
		st:            st,
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
		protocolShare: protocolShare,
	}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// ProtocolShare returns the protocol percentage applied to new collections.
func (r *Registry) ProtocolShare() uint32 {
	return r.protocolShare
}

func collectionKey(id string) []byte {
	buf := make([]byte, len(collectionPrefix)+len(id))
	copy(buf, collectionPrefix)
	copy(buf[len(collectionPrefix):], id)
	return buf
}

// Register stores the split configuration for a new collection.
func (r *Registry) Register(id string, payoutTarget [20]byte, referralShare, communityShare uint32, poolsIntoHolderLedger bool) (*Collection, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}
	exists, err := r.st.KVGet(collectionKey(normalized), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, normalized)
	}
	ecosystem, err := EcosystemShare(referralShare, communityShare, r.protocolShare)
	if err != nil {
		return nil, err
	}
	now := r.nowFn()
	if now < 0 {
		now = 0
	}
	c := &Collection{
		ID:                    normalized,
		PayoutTarget:          payoutTarget,
		ReferralShare:         referralShare,
		CommunityShare:        communityShare,
		EcosystemShare:        ecosystem,
		ProtocolShare:         r.protocolShare,
		PoolsIntoHolderLedger: poolsIntoHolderLedger,
		RegisteredAt:          uint64(now),
	}
	if err := r.st.KVPut(collectionKey(normalized), c); err != nil {
		return nil, err
	}
	if err := r.st.KVAppend(collectionIndex, []byte(normalized)); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.CollectionRegistered{
		CollectionID:          c.ID,
		PayoutTarget:          c.PayoutTarget,
		ReferralShare:         c.ReferralShare,
		CommunityShare:        c.CommunityShare,
		EcosystemShare:        c.EcosystemShare,
		ProtocolShare:         c.ProtocolShare,
		PoolsIntoHolderLedger: c.PoolsIntoHolderLedger,
	})
	return c.Clone(), nil
}

// Get returns the configuration of id.
func (r *Registry) Get(id string) (*Collection, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, err)
	}
	c := new(Collection)
	ok, err := r.st.KVGet(collectionKey(normalized), c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, normalized)
	}
	return c, nil
}

// List returns every registered collection sorted by id.
func (r *Registry) List() ([]*Collection, error) {
	var ids [][]byte
	if err := r.st.KVGetList(collectionIndex, &ids); err != nil {
		return nil, err
	}
	out := make([]*Collection, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(string(id))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
