package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Multicall3 is deployed at the same address on nearly every EVM chain.
const DefaultMulticall3 = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Chain.ChainID == "" {
		cfg.Chain.ChainID = "1"
	}
	for i := range cfg.Chain.Providers {
		if cfg.Chain.Providers[i].Timeout == 0 {
			cfg.Chain.Providers[i].Timeout = 10 * time.Second
		}
		if cfg.Chain.Providers[i].Name == "" {
			cfg.Chain.Providers[i].Name = fmt.Sprintf("provider-%d", i)
		}
	}
	if cfg.Chain.Retry.MaxAttempts == 0 {
		cfg.Chain.Retry.MaxAttempts = 3
	}
	if cfg.Chain.Retry.InitialDelay == 0 {
		cfg.Chain.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Chain.Retry.MaxDelay == 0 {
		cfg.Chain.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Contracts.Multicall == "" {
		cfg.Contracts.Multicall = DefaultMulticall3
	}

	if cfg.Scan.WindowBlocks == 0 {
		cfg.Scan.WindowBlocks = 50_000
	}
	if cfg.Scan.MaxRange == 0 {
		// One request covers the whole inclusive window
		cfg.Scan.MaxRange = cfg.Scan.WindowBlocks + 1
	}
	if cfg.Scan.MinRange == 0 {
		cfg.Scan.MinRange = 500
	}
	if cfg.Scan.HeadTTL == 0 {
		cfg.Scan.HeadTTL = 2 * time.Second
	}

	if cfg.Verify.Mode == "" {
		cfg.Verify.Mode = VerifyModeMulticall
	}

	if cfg.Cache.StaleTime == 0 {
		cfg.Cache.StaleTime = 30 * time.Second
	}
	if cfg.Cache.GCTime == 0 {
		cfg.Cache.GCTime = 5 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10_000
	}
	if cfg.Cache.MaxAttempts == 0 {
		cfg.Cache.MaxAttempts = 3
	}
	if cfg.Cache.RetryInitialDelay == 0 {
		cfg.Cache.RetryInitialDelay = 500 * time.Millisecond
	}

	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "nftscan:invalidate"
	}
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	if len(c.Chain.Providers) == 0 {
		return fmt.Errorf("chain.providers: at least one provider is required")
	}
	for i, p := range c.Chain.Providers {
		if p.URL == "" {
			return fmt.Errorf("chain.providers[%d]: url is required", i)
		}
	}
	if c.Contracts.NFT == "" && c.Contracts.Marketplace == "" {
		return fmt.Errorf("contracts: nft or marketplace address is required")
	}
	if c.Scan.MinRange > c.Scan.MaxRange {
		return fmt.Errorf("scan.min_range %d exceeds scan.max_range %d", c.Scan.MinRange, c.Scan.MaxRange)
	}
	switch c.Verify.Mode {
	case VerifyModeMulticall, VerifyModeBatch:
	default:
		return fmt.Errorf("verify.mode: unknown mode %q", c.Verify.Mode)
	}
	return nil
}
