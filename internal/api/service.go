/**
 * Copyright 2025 Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

// RewardsService provides the read models consumed by the HTTP layer.
type RewardsService struct {
	store store.RewardStore
	cfg   models.RewardsConfig
}

func NewRewardsService(rewardStore store.RewardStore, cfg models.RewardsConfig) *RewardsService {
	return &RewardsService{
		store: rewardStore,
		cfg:   cfg,
	}
}

func (s *RewardsService) HealthCheck(ctx context.Context) error {
	_, err := s.store.GetRewardPool(ctx)
	if err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// GetRewardsOverview assembles the wallet's dashboard: balances, running
// totals and the most recent events. An unknown wallet gets a zeroed
// overview rather than an error.
func (s *RewardsService) GetRewardsOverview(ctx context.Context, wallet string) (*models.RewardsOverview, error) {
	wallet = strings.ToLower(wallet)

	overview := &models.RewardsOverview{
		Wallet:               wallet,
		TotalCashbackUsd:     decimal.Zero,
		TotalReferralUsd:     decimal.Zero,
		ClaimableCashbackUsd: decimal.Zero,
		ClaimableReferralUsd: decimal.Zero,
	}

	user, err := s.store.GetUser(ctx, wallet)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return overview, nil
		}
		return nil, err
	}

	overview.PointsBalance = user.PointsBalance
	overview.TotalPointsEarned = user.TotalPointsEarned
	overview.TotalSwaps = user.TotalSwaps
	overview.StreakDays = user.StreakDays
	overview.TotalCashbackUsd = user.TotalCashbackUsd
	overview.TotalReferralUsd = user.TotalReferralUsd

	progress, err := s.store.GetCashbackProgress(ctx, wallet)
	if err != nil {
		return nil, err
	}
	for _, batch := range progress.ClaimableBatches {
		overview.ClaimableCashbackUsd = overview.ClaimableCashbackUsd.Add(batch.CashbackAmountUsd)
	}

	stats, err := s.store.GetReferralStats(ctx, wallet)
	if err == nil {
		overview.ClaimableReferralUsd = stats.ClaimableEarningsUsd
	} else if !errors.Is(err, store.ErrInvalidReferralCode) {
		return nil, err
	}

	events, err := s.store.ListRewardEvents(ctx, wallet, 10)
	if err != nil {
		return nil, err
	}
	overview.RecentEvents = events

	return overview, nil
}

// GetCashbackProgress reports the wallet's position in the cashback cadence.
func (s *RewardsService) GetCashbackProgress(ctx context.Context, wallet string) (*models.CashbackProgress, error) {
	progress, err := s.store.GetCashbackProgress(ctx, strings.ToLower(wallet))
	if err != nil {
		return nil, err
	}

	progress.SwapsUntilNext = s.cfg.CashbackInterval - int(progress.SwapsSinceLast)
	if progress.SwapsUntilNext < 0 {
		progress.SwapsUntilNext = 0
	}
	return progress, nil
}

// GetReferralStats returns the referrer-facing read model.
func (s *RewardsService) GetReferralStats(ctx context.Context, wallet string) (*models.ReferralStats, error) {
	return s.store.GetReferralStats(ctx, strings.ToLower(wallet))
}

// GetMysteryBoxInfo reports the pool balance, the wallet's box affordability
// and its recent opens.
func (s *RewardsService) GetMysteryBoxInfo(ctx context.Context, wallet string) (*models.MysteryBoxInfo, error) {
	wallet = strings.ToLower(wallet)

	pool, err := s.store.GetRewardPool(ctx)
	if err != nil {
		return nil, err
	}

	info := &models.MysteryBoxInfo{
		PoolBalanceUsd: pool.BalanceUsd,
		BoxCostPoints:  s.cfg.BoxCostPoints,
	}

	user, err := s.store.GetUser(ctx, wallet)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}
	if user != nil {
		info.PointsBalance = user.PointsBalance
		if user.LastBoxOpenedAt != nil {
			remaining := s.cfg.BoxCooldown - time.Now().UTC().Sub(*user.LastBoxOpenedAt)
			if remaining > 0 {
				info.CooldownRemaining = remaining.Round(time.Second).String()
			}
		}
	}

	boxes, err := s.store.ListMysteryBoxes(ctx, wallet, 10)
	if err != nil {
		return nil, err
	}
	info.RecentBoxes = boxes

	return info, nil
}

// GetPointsLedger returns the wallet's ledger entries newest-first.
func (s *RewardsService) GetPointsLedger(ctx context.Context, wallet string, limit int) ([]models.PointsLedgerEntry, error) {
	return s.store.GetPointsLedger(ctx, strings.ToLower(wallet), limit)
}
