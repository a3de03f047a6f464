package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto/certgen"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Pool.RuneID = "840000:7"
	cfg.Pool.Orchestrator = "orchestrator"
	cfg.RPCTokens = map[string]string{"secret": "orchestrator"}
	return cfg
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := validConfig()
	cfg.ExternalTimeoutSec = 5
	cfg.Identity.Static = map[string]string{"bc1palice": "p-alice"}
	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, 5*time.Second, got.ExternalTimeout())
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pool":{"rune_id":"1:2","orchestrator":"o"}}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8545, cfg.RPCPort)
	assert.Equal(t, "regtest", cfg.Network)
	assert.Equal(t, uint64(100), cfg.Pool.Game.RewardPerClaim)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.RPCPort = 0 }},
		{"network", func(c *Config) { c.Network = "litecoin" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"timeout", func(c *Config) { c.ExternalTimeoutSec = -1 }},
		{"rune id", func(c *Config) { c.Pool.RuneID = "840000" }},
		{"btc rune", func(c *Config) { c.Pool.RuneID = "0:0" }},
		{"orchestrator", func(c *Config) { c.Pool.Orchestrator = "" }},
		{"reward per claim", func(c *Config) { c.Pool.Game.RewardPerClaim = c.Pool.Game.MaxRewards + 1 }},
		{"token", func(c *Config) { c.RPCTokens[""] = "x" }},
		{"tls half", func(c *Config) { c.TLS = &TLSConfig{Cert: "a.crt"} }},
	}
	require.NoError(t, validConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPoolSetup(t *testing.T) {
	setup, err := validConfig().PoolSetup()
	require.NoError(t, err)
	assert.Equal(t, core.CoinID{Block: 840000, Tx: 7}, setup.RuneID)
	assert.Equal(t, "orchestrator", setup.Orchestrator)
	assert.Equal(t, uint64(10_000), setup.Game.RegisterFee)
	assert.Equal(t, uint64(1_000_000), setup.Game.MaxRewards)
}

func TestLoadTLSConfig(t *testing.T) {
	tlsCfg, err := LoadTLSConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	dir := t.TempDir()
	require.NoError(t, certgen.GenerateAll(dir, "poold", "orchestrator", nil))

	tlsCfg, err = LoadTLSConfig(&TLSConfig{
		Cert: filepath.Join(dir, "poold.crt"),
		Key:  filepath.Join(dir, "poold.key"),
	})
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)

	tlsCfg, err = LoadTLSConfig(&TLSConfig{
		Cert:   filepath.Join(dir, "poold.crt"),
		Key:    filepath.Join(dir, "poold.key"),
		CACert: filepath.Join(dir, "ca.crt"),
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tlsCfg.ClientAuth)
	assert.NotNil(t, tlsCfg.ClientCAs)

	_, err = tls.LoadX509KeyPair(filepath.Join(dir, "orchestrator.crt"), filepath.Join(dir, "orchestrator.key"))
	assert.NoError(t, err, "client pair usable")

	_, err = LoadTLSConfig(&TLSConfig{Cert: filepath.Join(dir, "missing.crt"), Key: filepath.Join(dir, "poold.key")})
	assert.Error(t, err)
}
