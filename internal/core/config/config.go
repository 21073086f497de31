package config

import (
	"time"

	"github.com/vietddude/nftscan/internal/core/domain"
	redisclient "github.com/vietddude/nftscan/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Chain     ChainConfig        `yaml:"chain"`
	Contracts ContractsConfig    `yaml:"contracts"`
	Scan      ScanConfig         `yaml:"scan"`
	Verify    VerifyConfig       `yaml:"verify"`
	Cache     CacheConfig        `yaml:"cache"`
	Redis     redisclient.Config `yaml:"redis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the chain being queried.
type ChainConfig struct {
	ChainID   domain.ChainID   `yaml:"id"`
	Providers []ProviderConfig `yaml:"providers"`
	Retry     RetryConfig      `yaml:"retry"`
}

// RetryConfig bounds retries against a single provider before failing over.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContractsConfig holds the contract addresses queried by the service.
type ContractsConfig struct {
	NFT         string `yaml:"nft"`
	Marketplace string `yaml:"marketplace"`
	Multicall   string `yaml:"multicall"`
	DeployBlock uint64 `yaml:"deploy_block"` // lower bound for ownership scans
}

// ScanConfig bounds eth_getLogs requests.
type ScanConfig struct {
	WindowBlocks uint64        `yaml:"window_blocks"`
	MaxRange     uint64        `yaml:"max_range"`
	MinRange     uint64        `yaml:"min_range"`
	HeadTTL      time.Duration `yaml:"head_ttl"`
}

// VerifyConfig selects the batching backend.
type VerifyConfig struct {
	Mode string `yaml:"mode"` // multicall, batch
}

// CacheConfig governs query result freshness and retention.
type CacheConfig struct {
	StaleTime         time.Duration `yaml:"stale_time"`
	GCTime            time.Duration `yaml:"gc_time"`
	MaxEntries        int           `yaml:"max_entries"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
}

const (
	VerifyModeMulticall = "multicall"
	VerifyModeBatch     = "batch"
)
