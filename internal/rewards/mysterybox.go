package rewards

import (
	"context"
	"strings"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

// Rarity distribution and payout ranges. The draw is two-stage: a discrete
// rarity roll, then a uniform USD amount inside the rarity's range. The
// store clamps the payout to the pool balance afterwards.
var rarityTable = []struct {
	rarity string
	weight int // out of 100
	minUsd float64
	maxUsd float64
}{
	{models.RarityCommon, 85, 0.10, 1.00},
	{models.RarityRare, 13, 1.00, 5.00},
	{models.RarityUltraRare, 2, 5.00, 50.00},
}

// drawBox rolls a rarity and a nominal USD payout.
func (s *Service) drawBox() (string, decimal.Decimal) {
	s.rngMu.Lock()
	roll := s.rng.Intn(100)
	spin := s.rng.Float64()
	s.rngMu.Unlock()

	for _, tier := range rarityTable {
		if roll < tier.weight {
			nominal := tier.minUsd + spin*(tier.maxUsd-tier.minUsd)
			return tier.rarity, decimal.NewFromFloat(nominal).Round(2)
		}
		roll -= tier.weight
	}

	// Unreachable while the weights sum to 100.
	last := rarityTable[len(rarityTable)-1]
	return last.rarity, decimal.NewFromFloat(last.minUsd).Round(2)
}

// OpenBox spends points on a mystery box for the wallet. The store performs
// the cooldown, balance and pool checks plus all writes atomically; this
// layer only supplies the draw and the policy knobs.
func (s *Service) OpenBox(ctx context.Context, wallet string, chainId int64) (*models.MysteryBox, error) {
	rarity, nominal := s.drawBox()

	return s.store.OpenMysteryBox(ctx, store.OpenBoxParams{
		Wallet:     strings.ToLower(wallet),
		CostPoints: s.cfg.BoxCostPoints,
		Rarity:     rarity,
		NominalUsd: nominal,
		ChainId:    chainId,
		Cooldown:   s.cfg.BoxCooldown,
	})
}
