package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"starkvoucher/crypto"
	"starkvoucher/ledger"
	"starkvoucher/voucher"
)

// Environment variables consulted after the file is decoded.
const (
	EnvEnvironment        = "FREEDOMAIN_ENV"
	EnvSignerKey          = "FREEDOMAIN_SIGNER_KEY"
	EnvKeystorePassphrase = "FREEDOMAIN_KEYSTORE_PASSPHRASE"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders        = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure       = "OTEL_EXPORTER_OTLP_INSECURE"
)

// Duration wraps time.Duration so both YAML and TOML accept "30s" style values.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText is used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for freedomaind.
type Config struct {
	ListenAddress   string          `yaml:"listen" toml:"listen"`
	Environment     string          `yaml:"environment" toml:"environment"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Log             LogConfig       `yaml:"log" toml:"log"`
	Campaign        CampaignConfig  `yaml:"campaign" toml:"campaign"`
	Signer          SignerConfig    `yaml:"signer" toml:"signer"`
	Ledger          ledger.Config   `yaml:"ledger" toml:"ledger"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Telemetry       TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// LogConfig selects the level and optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// CampaignConfig is the issuance policy. Times are unix seconds.
type CampaignConfig struct {
	StartTime      int64  `yaml:"start_time" toml:"start_time"`
	EndTime        int64  `yaml:"end_time" toml:"end_time"`
	Constant       string `yaml:"constant" toml:"constant"`
	MinLabelLength int    `yaml:"min_label_length" toml:"min_label_length"`
}

// SignerConfig locates the signing key. A raw hex key in PrivateKeyEnv wins
// over the keystore.
type SignerConfig struct {
	Keystore      string `yaml:"keystore" toml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env" toml:"passphrase_env"`
	PrivateKeyEnv string `yaml:"private_key_env" toml:"private_key_env"`
}

// RateLimitConfig bounds requests per client IP. Zero disables limiting.
// Forwarding headers are trusted only from TrustedProxies.
type RateLimitConfig struct {
	RequestsPerMinute int      `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int      `yaml:"burst" toml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
	Headers  string `yaml:"headers" toml:"headers"`
	Traces   bool   `yaml:"traces" toml:"traces"`
	Metrics  bool   `yaml:"metrics" toml:"metrics"`
}

// Load reads configuration from path. Files ending in .toml are decoded as
// TOML, anything else as YAML.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("decode config: unknown key %q", undecoded[0].String())
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvEnvironment)); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPHeaders)); v != "" {
		cfg.Telemetry.Headers = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPInsecure)); strings.EqualFold(v, "true") {
		cfg.Telemetry.Insecure = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Campaign.Constant == "" {
		cfg.Campaign.Constant = voucher.DefaultCampaignConstant.String()
	}
	if cfg.Campaign.MinLabelLength == 0 {
		cfg.Campaign.MinLabelLength = voucher.DefaultMinLabelLength
	}
	if cfg.Signer.PassphraseEnv == "" {
		cfg.Signer.PassphraseEnv = EnvKeystorePassphrase
	}
	if cfg.Signer.PrivateKeyEnv == "" {
		cfg.Signer.PrivateKeyEnv = EnvSignerKey
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = ledger.DriverBolt
	}
	if cfg.Ledger.Driver == ledger.DriverBolt && cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "/var/data/freedomain.db"
	}
	if cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerMinute
	}
}

func validate(cfg Config) error {
	if cfg.Campaign.StartTime <= 0 || cfg.Campaign.EndTime <= 0 {
		return fmt.Errorf("campaign.start_time and campaign.end_time must be configured")
	}
	if cfg.Campaign.EndTime < cfg.Campaign.StartTime {
		return fmt.Errorf("campaign.end_time must not precede campaign.start_time")
	}
	constant, err := cfg.CampaignConstant()
	if err != nil {
		return err
	}
	if constant.IsZero() {
		return fmt.Errorf("campaign.constant must not be zero; omit it to use the default")
	}
	if cfg.Campaign.MinLabelLength < 1 {
		return fmt.Errorf("campaign.min_label_length must be positive")
	}
	switch strings.ToLower(cfg.Ledger.Driver) {
	case ledger.DriverMemory, ledger.DriverBolt, ledger.DriverLevelDB, ledger.DriverSQL:
	default:
		return fmt.Errorf("ledger.driver %q is not supported", cfg.Ledger.Driver)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// CampaignConstant parses campaign.constant (decimal or 0x hex).
func (c Config) CampaignConstant() (crypto.Felt, error) {
	felt, err := crypto.ParseFelt(c.Campaign.Constant)
	if err != nil {
		return crypto.Felt{}, fmt.Errorf("campaign.constant: %w", err)
	}
	return felt, nil
}

// VoucherConfig projects the campaign section onto the service policy.
func (c Config) VoucherConfig() (voucher.Config, error) {
	constant, err := c.CampaignConstant()
	if err != nil {
		return voucher.Config{}, err
	}
	return voucher.Config{
		StartTime:        c.Campaign.StartTime,
		EndTime:          c.Campaign.EndTime,
		CampaignConstant: constant,
		MinLabelLength:   c.Campaign.MinLabelLength,
	}, nil
}
