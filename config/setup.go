package config

import (
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/exchange"
)

// PoolSetup builds the exchange setup the pool is created with on first
// start. Later starts keep the stored exchange record, so edits to the pool
// section only take effect on a fresh data directory.
func (c *Config) PoolSetup() (exchange.Setup, error) {
	id, err := core.ParseCoinID(c.Pool.RuneID)
	if err != nil {
		return exchange.Setup{}, err
	}
	g := c.Pool.Game
	return exchange.Setup{
		RuneName:     c.Pool.RuneName,
		RuneID:       id,
		Orchestrator: c.Pool.Orchestrator,
		Game: core.Game{
			Duration:       g.Duration,
			RegisterFee:    g.RegisterFee,
			ClaimCooldown:  g.ClaimCooldown,
			RewardPerClaim: g.RewardPerClaim,
			MaxRewards:     g.MaxRewards,
		},
	}, nil
}
