package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level resonance.yml configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
	Identity IdentityConfig `yaml:"identity,omitempty"`
	Report   ReportConfig   `yaml:"report,omitempty"`
}

// LedgerConfig describes the external ledger deployment. The signing key is
// never read from the file; it comes from the environment in the daemon's
// main so it cannot end up committed alongside the config.
type LedgerConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	ChainID            int64  `yaml:"chain_id"`
	CredentialContract string `yaml:"credential_contract,omitempty"`
	ScoreContract      string `yaml:"score_contract,omitempty"`
	RegistryContract   string `yaml:"registry_contract,omitempty"`

	CallTimeoutSeconds    int    `yaml:"call_timeout_seconds,omitempty"`
	TokenScanWindow       uint64 `yaml:"token_scan_window,omitempty"`
	InteractionScanWindow uint64 `yaml:"interaction_scan_window,omitempty"`
}

// SyncConfig tunes the score sync queue and its drain worker.
type SyncConfig struct {
	InitialScore        int `yaml:"initial_score,omitempty"`
	MaxAttempts         int `yaml:"max_attempts,omitempty"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds,omitempty"`
	BackoffBaseMs       int `yaml:"backoff_base_ms,omitempty"`
	BackoffCapMs        int `yaml:"backoff_cap_ms,omitempty"`
}

// IdentityConfig tunes the mint retry sweep and the confirmation checker.
type IdentityConfig struct {
	ConfirmIntervalSeconds int `yaml:"confirm_interval_seconds,omitempty"`
	RetryIntervalSeconds   int `yaml:"retry_interval_seconds,omitempty"`
	SlowMintSeconds        int `yaml:"slow_mint_seconds,omitempty"`
}

// ReportConfig configures the reporting HTTP surface.
type ReportConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Validate performs strict validation on the configuration and applies
// defaults for unset tuning fields.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if c.Ledger.ChainID == 0 {
		return fmt.Errorf("ledger.chain_id is required")
	}
	if c.Ledger.CallTimeoutSeconds < 0 {
		return fmt.Errorf("ledger.call_timeout_seconds must be > 0, got %d", c.Ledger.CallTimeoutSeconds)
	}
	if c.Ledger.CallTimeoutSeconds == 0 {
		c.Ledger.CallTimeoutSeconds = 15
	}
	if c.Ledger.TokenScanWindow == 0 {
		c.Ledger.TokenScanWindow = 10_000
	}
	if c.Ledger.InteractionScanWindow == 0 {
		c.Ledger.InteractionScanWindow = 50_000
	}

	if c.Sync.InitialScore == 0 {
		c.Sync.InitialScore = 50
	}
	if c.Sync.InitialScore < 0 || c.Sync.InitialScore > 100 {
		return fmt.Errorf("sync.initial_score must be in [0,100], got %d", c.Sync.InitialScore)
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 5
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be >= 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.PollIntervalSeconds == 0 {
		c.Sync.PollIntervalSeconds = 5
	}
	if c.Sync.BackoffBaseMs == 0 {
		c.Sync.BackoffBaseMs = 2000
	}
	if c.Sync.BackoffCapMs == 0 {
		c.Sync.BackoffCapMs = 60_000
	}
	if c.Sync.BackoffCapMs < c.Sync.BackoffBaseMs {
		return fmt.Errorf("sync.backoff_cap_ms (%d) must be >= sync.backoff_base_ms (%d)",
			c.Sync.BackoffCapMs, c.Sync.BackoffBaseMs)
	}

	if c.Identity.ConfirmIntervalSeconds == 0 {
		c.Identity.ConfirmIntervalSeconds = 30
	}
	if c.Identity.RetryIntervalSeconds == 0 {
		c.Identity.RetryIntervalSeconds = 300
	}
	if c.Identity.SlowMintSeconds == 0 {
		c.Identity.SlowMintSeconds = 600
	}

	if c.Report.Addr == "" {
		c.Report.Addr = ":8080"
	}

	return nil
}

// CallTimeout returns the per-call ledger timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Ledger.CallTimeoutSeconds) * time.Second
}

// BackoffBase returns the sync backoff base delay as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Sync.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the sync backoff delay cap as a duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Sync.BackoffCapMs) * time.Millisecond
}

// Load reads and validates resonance.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
