package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/brojonat/solxfer/service/solana"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr     string
	LogLevel       string
	MetricsEnabled bool

	// Solana configuration
	Cluster      string // devnet, testnet, mainnet-beta, localnet
	RPCURL       string
	WSURL        string
	ExplorerHost string

	// Wallet configuration
	WalletKeypairPath string
	AutoConnect       bool

	// NATS configuration (empty disables event publishing)
	NATSURL string

	// Transfer API rate limiting
	TransferRateLimit float64 // requests per second
	TransferRateBurst int
	// TrustProxyHeaders keys rate limiting on X-Forwarded-For / X-Real-IP.
	// Only enable behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
// Returns an error if any configuration is missing or invalid.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	metricsEnabled, err := parseBool("METRICS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MetricsEnabled = metricsEnabled

	// Solana configuration. The cluster drives the default endpoints and the
	// explorer link parameter so the two can't disagree.
	cfg.Cluster = getEnvOrDefault("SOLANA_CLUSTER", "devnet")
	defaultRPC, defaultWS, err := solana.ClusterEndpoints(cfg.Cluster)
	if err != nil {
		errs = append(errs, fmt.Errorf("SOLANA_CLUSTER: %w", err))
	}
	cfg.RPCURL = getEnvOrDefault("SOLANA_RPC_URL", defaultRPC)
	cfg.WSURL = getEnvOrDefault("SOLANA_WS_URL", defaultWS)
	cfg.ExplorerHost = getEnvOrDefault("EXPLORER_HOST", solana.DefaultExplorerHost)

	// Wallet configuration
	cfg.WalletKeypairPath = os.Getenv("WALLET_KEYPAIR_PATH")
	autoConnect, err := parseBool("SOLANA_AUTO_CONNECT", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.AutoConnect = autoConnect
	if cfg.AutoConnect && cfg.WalletKeypairPath == "" {
		errs = append(errs, fmt.Errorf("SOLANA_AUTO_CONNECT requires WALLET_KEYPAIR_PATH"))
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Rate limiting
	rateLimit, err := parseFloat("TRANSFER_RATE_LIMIT", 1)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TransferRateLimit = rateLimit

	burst, err := parseInt("TRANSFER_RATE_BURST", 3)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TransferRateBurst = burst

	trustProxy, err := parseBool("TRUST_PROXY_HEADERS", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TrustProxyHeaders = trustProxy

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.Cluster == "" {
		errs = append(errs, fmt.Errorf("Cluster is required"))
	}

	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPCURL is required"))
	}

	if c.WSURL == "" {
		errs = append(errs, fmt.Errorf("WSURL is required"))
	}

	if c.ExplorerHost == "" {
		errs = append(errs, fmt.Errorf("ExplorerHost is required"))
	}

	if c.TransferRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("TransferRateLimit must be positive"))
	}

	if c.TransferRateBurst < 1 {
		errs = append(errs, fmt.Errorf("TransferRateBurst must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
