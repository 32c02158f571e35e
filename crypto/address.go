package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountPrefix is the human-readable part of bech32 account identifiers.
const AccountPrefix = "ns"

// ErrNullAccount is returned when the all-zero identifier is parsed where a
// real account is required.
var ErrNullAccount = errors.New("crypto: null account")

// Address is a 20-byte account identifier.
type Address [20]byte

// Null is the placeholder identifier. Balances may accrue to it but it can
// never withdraw.
var Null Address

// IsNull reports whether a is the placeholder identifier.
func (a Address) IsNull() bool {
	return a == Null
}

// String renders the address as bech32 with AccountPrefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AccountPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the EIP-55 checksummed hex form.
func (a Address) Hex() string {
	return common.BytesToAddress(a[:]).Hex()
}

// ParseAddress accepts either the bech32 form or a 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Null, errors.New("crypto: empty address")
	}
	if common.IsHexAddress(trimmed) {
		return Address(common.HexToAddress(trimmed)), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Null, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AccountPrefix {
		return Null, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Null, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != len(Null) {
		return Null, fmt.Errorf("address must be 20 bytes long, got %d", len(conv))
	}
	var out Address
	copy(out[:], conv)
	return out, nil
}

// ParseAccount is ParseAddress that also rejects the null identifier.
func ParseAccount(s string) (Address, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return Null, err
	}
	if addr.IsNull() {
		return Null, ErrNullAccount
	}
	return addr, nil
}

// NewAccount derives a fresh random account identifier from a secp256k1 key.
func NewAccount() (Address, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return Null, err
	}
	return Address(crypto.PubkeyToAddress(key.PublicKey)), nil
}
