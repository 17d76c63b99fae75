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

package reconciler

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

// fakeLookup satisfies CustodyLookup with a scripted custody record.
type fakeLookup struct {
	tx  *models.CustodyTransaction
	err error
}

func (f *fakeLookup) FindTransferByIdempotencyKey(ctx context.Context, portfolioId, walletId, idempotencyKey string) (*models.CustodyTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tx != nil {
		tx := *f.tx
		tx.IdempotencyKey = idempotencyKey
		return &tx, nil
	}
	return nil, nil
}

func testChains() map[int64]models.ChainConfig {
	return map[int64]models.ChainConfig{
		1: {ChainId: 1, Name: "ethereum", SettlementSymbol: "USDC", PayoutWalletId: "wallet-1"},
	}
}

// setupStuckPayout creates a payout left in PROCESSING, as an executor crash
// or confirmation timeout would.
func setupStuckPayout(t *testing.T) (*database.Service, *models.Payout, func()) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	dbService := database.NewServiceWithDb(db)
	if err := dbService.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	batch, err := dbService.RecordSwapFee(ctx, store.SwapFeeParams{
		Wallet:     "0xabc",
		SwapId:     "swap-1",
		FeeUsd:     decimal.NewFromInt(10),
		ChainId:    1,
		Interval:   1,
		Percentage: decimal.RequireFromString("0.50"),
	})
	if err != nil || batch == nil {
		t.Fatalf("Failed to create claimable batch: %v", err)
	}
	payout, err := dbService.ClaimCashback(ctx, "0xabc", batch.Id)
	if err != nil {
		t.Fatalf("Failed to claim batch: %v", err)
	}
	if err := dbService.MarkPayoutProcessing(ctx, payout.Id, "idem-1"); err != nil {
		t.Fatalf("Failed to mark payout processing: %v", err)
	}

	return dbService, payout, func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}
}

func newTestReconciler(dbService *database.Service, lookup CustodyLookup, expiry time.Duration) *Reconciler {
	return New(dbService, lookup, testChains(), "portfolio-1", models.ReconcilerConfig{
		PollingInterval: time.Minute,
		GracePeriod:     0,
		ExpiryPeriod:    expiry,
	})
}

func TestReconcileCompletesSettledPayout(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	lookup := &fakeLookup{tx: &models.CustodyTransaction{
		Id:            "custody-tx-1",
		Status:        "TRANSACTION_DONE",
		TransactionId: "0xsettled",
	}}
	rec := newTestReconciler(dbService, lookup, time.Hour)

	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	resolved, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if resolved.Status != models.PayoutCompleted {
		t.Errorf("Expected COMPLETED payout, got %s", resolved.Status)
	}
	if resolved.TxHash != "0xsettled" {
		t.Errorf("Expected harvested tx hash, got %s", resolved.TxHash)
	}
}

func TestReconcileFailsTerminalPayout(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	lookup := &fakeLookup{tx: &models.CustodyTransaction{
		Id:     "custody-tx-1",
		Status: "TRANSACTION_FAILED",
	}}
	rec := newTestReconciler(dbService, lookup, time.Hour)

	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	resolved, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if resolved.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED payout, got %s", resolved.Status)
	}

	// The source batch is claimable again.
	batch, err := dbService.GetCashbackBatch(ctx, payout.ReferenceId)
	if err != nil {
		t.Fatalf("Failed to get batch: %v", err)
	}
	if batch.Status != models.StatusClaimable {
		t.Errorf("Expected released batch CLAIMABLE, got %s", batch.Status)
	}
}

func TestReconcileWaitsForMissingRecord(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	// No custody record yet, expiry far away: keep waiting.
	rec := newTestReconciler(dbService, &fakeLookup{}, time.Hour)
	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	waiting, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if waiting.Status != models.PayoutProcessing {
		t.Errorf("Expected payout to stay PROCESSING, got %s", waiting.Status)
	}
}

func TestReconcileExpiresMissingRecord(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	// Expiry of zero: a payout with no custody record fails immediately.
	rec := newTestReconciler(dbService, &fakeLookup{}, 0)
	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	expired, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if expired.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED payout past expiry, got %s", expired.Status)
	}
}

func TestReconcileSkipsInFlightCustody(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	lookup := &fakeLookup{tx: &models.CustodyTransaction{
		Id:     "custody-tx-1",
		Status: "TRANSACTION_CREATED",
	}}
	rec := newTestReconciler(dbService, lookup, time.Hour)

	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	inFlight, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if inFlight.Status != models.PayoutProcessing {
		t.Errorf("Expected in-flight payout to stay PROCESSING, got %s", inFlight.Status)
	}
}

func TestReconcileRespectsGracePeriod(t *testing.T) {
	dbService, payout, cleanup := setupStuckPayout(t)
	defer cleanup()
	ctx := context.Background()

	// A long grace period keeps the fresh payout off the sweep entirely.
	lookup := &fakeLookup{tx: &models.CustodyTransaction{
		Id:            "custody-tx-1",
		Status:        "TRANSACTION_DONE",
		TransactionId: "0xsettled",
	}}
	rec := New(dbService, lookup, testChains(), "portfolio-1", models.ReconcilerConfig{
		PollingInterval: time.Minute,
		GracePeriod:     time.Hour,
		ExpiryPeriod:    time.Hour,
	})

	if err := rec.reconcileOnce(ctx); err != nil {
		t.Fatalf("Reconciliation sweep failed: %v", err)
	}

	untouched, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if untouched.Status != models.PayoutProcessing {
		t.Errorf("Expected payout inside grace period to be skipped, got %s", untouched.Status)
	}
}
