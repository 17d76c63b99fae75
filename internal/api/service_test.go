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
	"database/sql"
	"testing"
	"time"

	"rwaswap-rewards/internal/database"
	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupApiTest(t *testing.T) (*RewardsService, *database.Service, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	dbService := database.NewServiceWithDb(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	cfg := models.RewardsConfig{
		CashbackInterval: 3,
		BoxCostPoints:    100,
		BoxCooldown:      24 * time.Hour,
	}
	service := NewRewardsService(dbService, cfg)

	return service, dbService, func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}
}

func recordClaimableBatch(t *testing.T, dbService *database.Service, wallet, swapId, feeUsd string) {
	t.Helper()
	batch, err := dbService.RecordSwapFee(context.Background(), store.SwapFeeParams{
		Wallet:     wallet,
		SwapId:     swapId,
		FeeUsd:     decimal.RequireFromString(feeUsd),
		ChainId:    1,
		Interval:   1,
		Percentage: decimal.RequireFromString("0.50"),
	})
	if err != nil || batch == nil {
		t.Fatalf("Failed to create claimable batch: %v", err)
	}
}

func TestGetRewardsOverviewUnknownWallet(t *testing.T) {
	service, _, cleanup := setupApiTest(t)
	defer cleanup()

	overview, err := service.GetRewardsOverview(context.Background(), "0xNOBODY")
	if err != nil {
		t.Fatalf("Failed to get overview: %v", err)
	}
	if overview.Wallet != "0xnobody" {
		t.Errorf("Expected lowercased wallet, got %s", overview.Wallet)
	}
	if overview.PointsBalance != 0 || overview.TotalSwaps != 0 {
		t.Error("Expected zeroed overview for unknown wallet")
	}
	if !overview.ClaimableCashbackUsd.IsZero() || !overview.ClaimableReferralUsd.IsZero() {
		t.Error("Expected zero claimable totals for unknown wallet")
	}
}

func TestGetRewardsOverview(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := dbService.CreditPoints(ctx, store.PointsParams{
		Wallet: "0xabc", Amount: 150, EntryType: models.PointsEarned,
	}); err != nil {
		t.Fatalf("Failed to credit points: %v", err)
	}
	recordClaimableBatch(t, dbService, "0xabc", "swap-1", "10")
	recordClaimableBatch(t, dbService, "0xabc", "swap-2", "4")

	overview, err := service.GetRewardsOverview(ctx, "0xABC")
	if err != nil {
		t.Fatalf("Failed to get overview: %v", err)
	}
	if overview.PointsBalance != 150 {
		t.Errorf("Expected 150 points, got %d", overview.PointsBalance)
	}
	// Two claimable batches at 50% of $10 and $4.
	if !overview.ClaimableCashbackUsd.Equal(decimal.NewFromInt(7)) {
		t.Errorf("Expected $7 claimable cashback, got %s", overview.ClaimableCashbackUsd.String())
	}
	// A wallet without a referral code still gets an overview.
	if !overview.ClaimableReferralUsd.IsZero() {
		t.Errorf("Expected zero claimable referral, got %s", overview.ClaimableReferralUsd.String())
	}
	if len(overview.RecentEvents) == 0 {
		t.Error("Expected recent events in the overview")
	}
}

func TestGetCashbackProgress(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	// One fee recorded against the configured interval of 3.
	if _, err := dbService.RecordSwapFee(ctx, store.SwapFeeParams{
		Wallet:     "0xabc",
		SwapId:     "swap-1",
		FeeUsd:     decimal.NewFromInt(2),
		ChainId:    1,
		Interval:   3,
		Percentage: decimal.RequireFromString("0.50"),
	}); err != nil {
		t.Fatalf("Failed to record fee: %v", err)
	}

	progress, err := service.GetCashbackProgress(ctx, "0xABC")
	if err != nil {
		t.Fatalf("Failed to get progress: %v", err)
	}
	if progress.SwapsSinceLast != 1 {
		t.Errorf("Expected 1 swap since last batch, got %d", progress.SwapsSinceLast)
	}
	if progress.SwapsUntilNext != 2 {
		t.Errorf("Expected 2 swaps until next batch, got %d", progress.SwapsUntilNext)
	}
	if !progress.PendingFeesUsd.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected $2 pending fees, got %s", progress.PendingFeesUsd.String())
	}
}

func TestGetCashbackProgressClampsAtZero(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	// Four pending fees against an interval of 3 must not go negative.
	for _, swapId := range []string{"swap-1", "swap-2", "swap-3", "swap-4"} {
		if _, err := dbService.RecordSwapFee(ctx, store.SwapFeeParams{
			Wallet:     "0xabc",
			SwapId:     swapId,
			FeeUsd:     decimal.NewFromInt(1),
			ChainId:    1,
			Interval:   100,
			Percentage: decimal.RequireFromString("0.50"),
		}); err != nil {
			t.Fatalf("Failed to record fee: %v", err)
		}
	}

	progress, err := service.GetCashbackProgress(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to get progress: %v", err)
	}
	if progress.SwapsUntilNext != 0 {
		t.Errorf("Expected clamped SwapsUntilNext 0, got %d", progress.SwapsUntilNext)
	}
}

func TestGetMysteryBoxInfo(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	if err := dbService.ContributeToPool(ctx, decimal.RequireFromString("25.50"), "swap-1"); err != nil {
		t.Fatalf("Failed to contribute to pool: %v", err)
	}

	info, err := service.GetMysteryBoxInfo(ctx, "0xnobody")
	if err != nil {
		t.Fatalf("Failed to get box info: %v", err)
	}
	if !info.PoolBalanceUsd.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("Expected pool balance 25.50, got %s", info.PoolBalanceUsd.String())
	}
	if info.BoxCostPoints != 100 {
		t.Errorf("Expected box cost 100, got %d", info.BoxCostPoints)
	}
	// Unknown wallet: no points, no cooldown.
	if info.PointsBalance != 0 {
		t.Errorf("Expected zero points, got %d", info.PointsBalance)
	}
	if info.CooldownRemaining != "" {
		t.Errorf("Expected no cooldown, got %q", info.CooldownRemaining)
	}
}

func TestGetMysteryBoxInfoCooldown(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := dbService.CreditPoints(ctx, store.PointsParams{
		Wallet: "0xabc", Amount: 200, EntryType: models.PointsEarned,
	}); err != nil {
		t.Fatalf("Failed to credit points: %v", err)
	}
	if err := dbService.ContributeToPool(ctx, decimal.NewFromInt(100), "swap-1"); err != nil {
		t.Fatalf("Failed to contribute to pool: %v", err)
	}
	if _, err := dbService.OpenMysteryBox(ctx, store.OpenBoxParams{
		Wallet:     "0xabc",
		ChainId:    1,
		CostPoints: 100,
		Rarity:     models.RarityCommon,
		NominalUsd: decimal.RequireFromString("0.50"),
		Cooldown:   24 * time.Hour,
	}); err != nil {
		t.Fatalf("Failed to open box: %v", err)
	}

	info, err := service.GetMysteryBoxInfo(ctx, "0xABC")
	if err != nil {
		t.Fatalf("Failed to get box info: %v", err)
	}
	if info.PointsBalance != 100 {
		t.Errorf("Expected 100 points after the open, got %d", info.PointsBalance)
	}
	if info.CooldownRemaining == "" {
		t.Error("Expected an active cooldown after an open")
	}
	if len(info.RecentBoxes) != 1 {
		t.Errorf("Expected 1 recent box, got %d", len(info.RecentBoxes))
	}
}

func TestGetPointsLedger(t *testing.T) {
	service, dbService, cleanup := setupApiTest(t)
	defer cleanup()
	ctx := context.Background()

	for _, amount := range []int64{100, 50} {
		if _, err := dbService.CreditPoints(ctx, store.PointsParams{
			Wallet: "0xabc", Amount: amount, EntryType: models.PointsEarned,
		}); err != nil {
			t.Fatalf("Failed to credit points: %v", err)
		}
	}

	entries, err := service.GetPointsLedger(ctx, "0xABC", 10)
	if err != nil {
		t.Fatalf("Failed to get ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 ledger entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Amount != 50 {
		t.Errorf("Expected newest entry first, got amount %d", entries[0].Amount)
	}
}

func TestHealthCheck(t *testing.T) {
	service, _, cleanup := setupApiTest(t)
	defer cleanup()

	if err := service.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy store, got %v", err)
	}
}
