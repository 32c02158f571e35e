package config

import (
	"fmt"

	"nameshare/crypto"
)

const MaxProtocolShare = uint32(100)

func ValidateConfig(c Config) error {
	if c.ProtocolShare > MaxProtocolShare {
		return fmt.Errorf("protocol: share %d exceeds %d", c.ProtocolShare, MaxProtocolShare)
	}
	if _, err := crypto.ParseAccount(c.ProtocolAccount); err != nil {
		return fmt.Errorf("protocol: account: %w", err)
	}
	if c.ConversionDenominator == 0 {
		return fmt.Errorf("conversion: denominator must be positive")
	}
	if c.HolderSnapshotInterval.Duration < 0 || c.EcosystemSnapshotInterval.Duration < 0 {
		return fmt.Errorf("snapshot: interval must not be negative")
	}
	if c.KeeperPollInterval.Duration < 0 {
		return fmt.Errorf("keeper: poll interval must not be negative")
	}
	return nil
}
