package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"nameshare/crypto"

	"github.com/BurntSushi/toml"
)

const (
	DefaultProtocolShare    = 5
	DefaultSnapshotInterval = 24 * time.Hour
	DefaultKeeperPoll       = time.Minute
)

type Config struct {
	DataDir                   string   `toml:"DataDir"`
	Environment               string   `toml:"Environment"`
	LogFile                   string   `toml:"LogFile"`
	ProtocolShare             uint32   `toml:"ProtocolShare"`
	ProtocolAccount           string   `toml:"ProtocolAccount"`
	HolderSnapshotInterval    Duration `toml:"HolderSnapshotInterval"`
	EcosystemSnapshotInterval Duration `toml:"EcosystemSnapshotInterval"`
	ConversionNumerator       uint64   `toml:"ConversionNumerator"`
	ConversionDenominator     uint64   `toml:"ConversionDenominator"`
	EventLogDSN               string   `toml:"EventLogDSN"`
	MetricsAddress            string   `toml:"MetricsAddress"`
	KeeperPollInterval        Duration `toml:"KeeperPollInterval"`

	// OTLP trace export. Tracing stays off while OTLPEndpoint is empty.
	OTLPEndpoint string `toml:"OTLPEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure"`
	OTLPHeaders  string `toml:"OTLPHeaders"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if !meta.IsDefined("ProtocolShare") {
		cfg.ProtocolShare = DefaultProtocolShare
	}
	applyDefaults(cfg, meta.IsDefined)
	if err := ValidateConfig(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields. defined reports whether a key was present
// in the file; an explicit zero snapshot interval disables the cadence gate.
func applyDefaults(cfg *Config, defined func(key ...string) bool) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./nameshare-data"
	}
	if cfg.ConversionNumerator == 0 && cfg.ConversionDenominator == 0 {
		cfg.ConversionNumerator, cfg.ConversionDenominator = 1, 1
	}
	if cfg.HolderSnapshotInterval.Duration == 0 && !defined("HolderSnapshotInterval") {
		cfg.HolderSnapshotInterval.Duration = DefaultSnapshotInterval
	}
	if cfg.EcosystemSnapshotInterval.Duration == 0 && !defined("EcosystemSnapshotInterval") {
		cfg.EcosystemSnapshotInterval.Duration = DefaultSnapshotInterval
	}
	if cfg.KeeperPollInterval.Duration == 0 {
		cfg.KeeperPollInterval.Duration = DefaultKeeperPoll
	}
}

// createDefault creates and saves a default configuration file with a freshly
// generated protocol account.
func createDefault(path string) (*Config, error) {
	account, err := crypto.NewAccount()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         filepath.Join(filepath.Dir(path), "nameshare-data"),
		ProtocolShare:   DefaultProtocolShare,
		ProtocolAccount: account.String(),
		EventLogDSN:     filepath.Join(filepath.Dir(path), "events.db"),
		MetricsAddress:  "127.0.0.1:9464",
	}
	applyDefaults(cfg, func(...string) bool { return false })

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
