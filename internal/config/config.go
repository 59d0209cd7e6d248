// Package config reads server and client settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server configures the reference backend
type Server struct {
	ListenAddr  string
	RedisURL    string
	DatabaseDSN string // empty keeps requests in memory
	NonceTTL    time.Duration
	SessionTTL  time.Duration
}

// Client configures the CLI
type Client struct {
	BackendURL  string
	PrivateKey  string
	SessionFile string
	IPFSAPI     string
	IPFSGateway string
	RPCURL      string
	Contract    string
	FromBlock   uint64
}

// LoadEnv loads files (default .env) into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadServer reads the backend configuration
func LoadServer() (*Server, error) {
	cfg := &Server{
		ListenAddr:  getEnv("CREDGATE_LISTEN_ADDR", ":9000"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseDSN: os.Getenv("POSTGRES_DSN"),
	}

	var err error
	if cfg.NonceTTL, err = getDuration("CREDGATE_NONCE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("CREDGATE_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the CLI configuration
func LoadClient() (*Client, error) {
	cfg := &Client{
		BackendURL:  getEnv("CREDGATE_BACKEND_URL", "http://localhost:9000"),
		PrivateKey:  os.Getenv("CREDGATE_PRIVATE_KEY"),
		SessionFile: os.Getenv("CREDGATE_SESSION_FILE"),
		IPFSAPI:     getEnv("CREDGATE_IPFS_API", "http://127.0.0.1:5001"),
		IPFSGateway: getEnv("CREDGATE_IPFS_GATEWAY", "http://127.0.0.1:8080"),
		RPCURL:      getEnv("CREDGATE_RPC_URL", "http://127.0.0.1:8545"),
		Contract:    os.Getenv("CREDGATE_CONTRACT"),
	}

	if cfg.SessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		cfg.SessionFile = filepath.Join(home, ".credgate", "session.yaml")
	}

	if v := os.Getenv("CREDGATE_FROM_BLOCK"); v != "" {
		block, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CREDGATE_FROM_BLOCK %q: %w", v, err)
		}
		cfg.FromBlock = block
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}
