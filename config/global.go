package config

import (
	"fmt"
	"time"

	"nameshare/crypto"
	"nameshare/native/conversion"
)

// Runtime holds the parsed values the ledger service is constructed from.
type Runtime struct {
	ProtocolShare             uint32
	ProtocolAccount           crypto.Address
	HolderSnapshotInterval    time.Duration
	EcosystemSnapshotInterval time.Duration
	Conversion                conversion.Converter
}

// Runtime validates the configuration and parses it into runtime values.
func (c Config) Runtime() (Runtime, error) {
	var rt Runtime
	if err := ValidateConfig(c); err != nil {
		return rt, err
	}
	account, err := crypto.ParseAccount(c.ProtocolAccount)
	if err != nil {
		return rt, fmt.Errorf("invalid ProtocolAccount: %w", err)
	}
	rt.ProtocolShare = c.ProtocolShare
	rt.ProtocolAccount = account
	rt.HolderSnapshotInterval = c.HolderSnapshotInterval.Duration
	rt.EcosystemSnapshotInterval = c.EcosystemSnapshotInterval.Duration
	if c.ConversionNumerator == c.ConversionDenominator {
		rt.Conversion = conversion.Identity{}
		return rt, nil
	}
	rate, err := conversion.NewFixedRate(c.ConversionNumerator, c.ConversionDenominator)
	if err != nil {
		return rt, err
	}
	rt.Conversion = rate
	return rt, nil
}
