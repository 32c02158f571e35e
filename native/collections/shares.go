package collections

import (
	"fmt"
	"strings"
)

const maxIDLength = 64

// EcosystemShare validates the explicit shares and returns the derived
// ecosystem share: half of what referral, community and protocol leave over,
// rounded down. The shares are rejected iff one is outside [0,100] or
// referral+community+protocol exceeds 100.
func EcosystemShare(referral, community, protocol uint32) (uint32, error) {
	checks := []struct {
		name  string
		value uint32
	}{{"referral", referral}, {"community", community}, {"protocol", protocol}}
	for _, c := range checks {
		if c.value > ShareDenominator {
			return 0, fmt.Errorf("%w: %s share %d exceeds %d", ErrInvalidShares, c.name, c.value, ShareDenominator)
		}
	}
	used := referral + community + protocol
	if used > ShareDenominator {
		return 0, fmt.Errorf("%w: referral %d + community %d + protocol %d exceeds %d",
			ErrInvalidShares, referral, community, protocol, ShareDenominator)
	}
	return (ShareDenominator - used) / 2, nil
}

// NormalizeID trims and lower-cases a collection id and checks its charset.
func NormalizeID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCollectionID)
	}
	if len(normalized) > maxIDLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidCollectionID, maxIDLength)
	}
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidCollectionID, r)
		}
	}
	return normalized, nil
}
