package units

import (
	"fmt"
	"strconv"
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Record is a minted unit. MintPoint is assigned from a counter that only
// grows, starting at 1.
type Record struct {
	ID        uint64
	Owner     [20]byte
	MintPoint uint64
}

type meta struct {
	Supply    uint64
	Watermark uint64
}

// Registry is a state-backed enumerable ownership source. Each registry lives
// in its own namespace so several unit sets can share one state.
type Registry struct {
	namespace string
	st        registryState
}

// NewRegistry returns the unit set called namespace backed by st.
func NewRegistry(namespace string, st registryState) *Registry {
	return &Registry{namespace: namespace, st: st}
}

func (r *Registry) metaKey() []byte {
	return []byte("units/" + r.namespace + "/meta")
}

func (r *Registry) unitKey(id uint64) []byte {
	return []byte("units/" + r.namespace + "/unit/" + strconv.FormatUint(id, 10))
}

func (r *Registry) meta() (*meta, error) {
	m := new(meta)
	if _, err := r.st.KVGet(r.metaKey(), m); err != nil {
		return nil, fmt.Errorf("units %s: load meta: %w", r.namespace, err)
	}
	return m, nil
}

// Get returns the record of id.
func (r *Registry) Get(id uint64) (*Record, error) {
	rec := new(Record)
	ok, err := r.st.KVGet(r.unitKey(id), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnitNotFound, r.namespace, id)
	}
	return rec, nil
}

// Mint creates the next unit for owner. Unit ids equal their mint point.
func (r *Registry) Mint(owner [20]byte) (*Record, error) {
	if owner == ([20]byte{}) {
		return nil, ErrNullOwner
	}
	m, err := r.meta()
	if err != nil {
		return nil, err
	}
	m.Watermark++
	m.Supply++
	rec := &Record{ID: m.Watermark, Owner: owner, MintPoint: m.Watermark}
	if err := r.st.KVPut(r.unitKey(rec.ID), rec); err != nil {
		return nil, err
	}
	if err := r.st.KVPut(r.metaKey(), m); err != nil {
		return nil, err
	}
	return rec, nil
}

// Transfer moves id from one owner to another. The mint point is unchanged.
func (r *Registry) Transfer(id uint64, from, to [20]byte) (*Record, error) {
	if to == ([20]byte{}) {
		return nil, ErrNullOwner
	}
	rec, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != from {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotOwner, r.namespace, id)
	}
	rec.Owner = to
	if err := r.st.KVPut(r.unitKey(id), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// TotalSupply returns the number of minted units.
func (r *Registry) TotalSupply() (uint64, error) {
	m, err := r.meta()
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

// OwnerOf returns the current owner of id.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	rec, err := r.Get(id)
	if err != nil {
		return [20]byte{}, err
	}
	return rec.Owner, nil
}

// MintPointOf returns the mint point recorded for id.
func (r *Registry) MintPointOf(id uint64) (uint64, error) {
	rec, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return rec.MintPoint, nil
}

// Watermark returns the latest mint point handed out.
func (r *Registry) Watermark() (uint64, error) {
	m, err := r.meta()
	if err != nil {
		return 0, err
	}
	return m.Watermark, nil
}
