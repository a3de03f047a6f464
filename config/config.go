package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto"
)

// GameConfig holds the reward game parameters. Times are in seconds.
type GameConfig struct {
	Duration       uint64 `json:"duration"`
	RegisterFee    uint64 `json:"register_fee"` // sats
	ClaimCooldown  uint64 `json:"claim_cooldown"`
	RewardPerClaim uint64 `json:"reward_per_claim"`
	MaxRewards     uint64 `json:"max_rewards"`
}

// PoolConfig describes the pool created on first start.
type PoolConfig struct {
	RuneName     string     `json:"rune_name"`
	RuneID       string     `json:"rune_id"` // "block:tx"
	Orchestrator string     `json:"orchestrator"`
	Game         GameConfig `json:"game"`
}

// IdentityConfig selects how initiator addresses are resolved to
// principals: a remote service when URL is set, else the Static table.
type IdentityConfig struct {
	URL        string            `json:"url,omitempty"`
	Token      string            `json:"token,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Static     map[string]string `json:"static,omitempty"` // address → principal
}

// TLSConfig holds PEM paths for the RPC listener. When CACert is set,
// clients must present a certificate signed by it.
type TLSConfig struct {
	Cert   string `json:"cert"`
	Key    string `json:"key"`
	CACert string `json:"ca_cert,omitempty"`
}

// Config holds all daemon configuration.
type Config struct {
	DataDir            string            `json:"data_dir"`
	RPCPort            int               `json:"rpc_port"`
	RPCTokens          map[string]string `json:"rpc_tokens"` // bearer token → principal
	Network            string            `json:"network"`
	LogLevel           string            `json:"log_level"`
	ExternalTimeoutSec int               `json:"external_timeout_sec"` // 0 → 30
	Pool               PoolConfig        `json:"pool"`
	Identity           IdentityConfig    `json:"identity"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "./data",
		RPCPort:            8545,
		RPCTokens:          map[string]string{},
		Network:            "regtest",
		LogLevel:           "info",
		ExternalTimeoutSec: 30,
		Pool: PoolConfig{
			RuneName: "COOKIE",
			Game: GameConfig{
				Duration:       7 * 24 * 3600,
				RegisterFee:    10_000,
				ClaimCooldown:  60,
				RewardPerClaim: 100,
				MaxRewards:     1_000_000,
			},
		},
		Identity: IdentityConfig{MaxRetries: 3},
	}
}

// Load reads a JSON config file from path and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate reports the first setting the daemon cannot start with.
func (c *Config) Validate() error {
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	}
	if _, err := crypto.NetParams(c.Network); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.ExternalTimeoutSec < 0 {
		return errors.New("external_timeout_sec must not be negative")
	}
	id, err := core.ParseCoinID(c.Pool.RuneID)
	if err != nil {
		return fmt.Errorf("pool.rune_id: %w", err)
	}
	if id.IsBTC() {
		return errors.New("pool.rune_id must not be 0:0")
	}
	if c.Pool.Orchestrator == "" {
		return errors.New("pool.orchestrator is required")
	}
	g := c.Pool.Game
	if g.RewardPerClaim == 0 || g.RewardPerClaim > g.MaxRewards {
		return fmt.Errorf("pool.game.reward_per_claim %d must be in 1..max_rewards", g.RewardPerClaim)
	}
	for token, principal := range c.RPCTokens {
		if token == "" || principal == "" {
			return errors.New("rpc_tokens entries must be non-empty")
		}
	}
	if c.TLS != nil && (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.New("tls.cert and tls.key must be set together")
	}
	return nil
}

// ExternalTimeout bounds each signer or identity call.
func (c *Config) ExternalTimeout() time.Duration {
	if c.ExternalTimeoutSec == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ExternalTimeoutSec) * time.Second
}
