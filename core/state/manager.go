package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nameshare/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// Reader is the read side shared by the manager and open transactions.
type Reader interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVGetList(key []byte, out interface{}) error
}

// Manager owns the ledger state stored in a key-value database. Every record
// lives under keccak256(key) and is RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) raw(hashed []byte) ([]byte, error) {
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVGet retrieves the committed value stored under the supplied key and
// decodes it into the provided destination. The boolean return value indicates
// whether the key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

// KVGetList decodes the committed RLP list stored under key into out. Missing
// keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return err
	}
	return decodeList(data, out)
}

// Begin opens a staged transaction. Writes are held in memory until Commit,
// so an abandoned transaction leaves the database untouched.
func (m *Manager) Begin() *Tx {
	return &Tx{m: m, writes: make(map[string][]byte)}
}

// Tx is a staged view over the manager. Reads observe the transaction's own
// pending writes before falling back to committed state.
type Tx struct {
	m      *Manager
	writes map[string][]byte
	order  [][]byte
	closed bool
}

func (tx *Tx) get(hashed []byte) ([]byte, error) {
	if v, ok := tx.writes[string(hashed)]; ok {
		return v, nil
	}
	return tx.m.raw(hashed)
}

func (tx *Tx) put(hashed, encoded []byte) {
	if _, ok := tx.writes[string(hashed)]; !ok {
		tx.order = append(tx.order, hashed)
	}
	tx.writes[string(hashed)] = encoded
}

// KVPut stages value under key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.put(kvKey(key), encoded)
	return nil
}

// KVGet reads key through the staged writes.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if tx.closed {
		return false, ErrTxClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeInto(data, out)
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (tx *Tx) KVAppend(key []byte, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := tx.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	tx.put(hashed, encoded)
	return nil
}

// KVGetList decodes the list under key, including staged appends.
func (tx *Tx) KVGetList(key []byte, out interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return err
	}
	return decodeList(data, out)
}

// Pending reports the number of staged keys.
func (tx *Tx) Pending() int {
	return len(tx.order)
}

// Commit writes every staged value in one atomic batch and closes the
// transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	batch := storage.NewBatch()
	for _, hashed := range tx.order {
		batch.Put(hashed, tx.writes[string(hashed)])
	}
	tx.writes = nil
	tx.order = nil
	if err := tx.m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops the staged writes. Safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.order = nil
}

func decodeInto(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func decodeList(data []byte, out interface{}) error {
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
