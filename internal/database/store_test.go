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

package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// A second connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)

	service := NewServiceWithDb(db)
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	return service, func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}
}

// createVerifiedSwap inserts a verified swap with sane defaults.
func createVerifiedSwap(t *testing.T, s *Service, wallet, txHash, fromToken, toToken string, feeUsd string) *models.Swap {
	t.Helper()

	swap, err := s.CreateSwap(context.Background(), store.CreateSwapParams{
		Wallet:       wallet,
		TxHash:       txHash,
		ChainId:      1,
		FromToken:    fromToken,
		FromAmount:   decimal.NewFromInt(1),
		ToToken:      toToken,
		ToAmount:     decimal.NewFromInt(1000),
		SwapValueUsd: decimal.NewFromInt(100),
		FeeUsd:       decimal.RequireFromString(feeUsd),
		PointsEarned: 100,
		BlockNumber:  1234,
		BlockTime:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to create swap %s: %v", txHash, err)
	}
	return swap
}

// createClaimableBatch drives the aggregation trigger with a single fee so a
// CLAIMABLE batch exists for claim and payout tests.
func createClaimableBatch(t *testing.T, s *Service, wallet string, feeUsd, pct string) *models.CashbackBatch {
	t.Helper()

	batch, err := s.RecordSwapFee(context.Background(), store.SwapFeeParams{
		Wallet:     wallet,
		SwapId:     "swap-" + wallet,
		FeeUsd:     decimal.RequireFromString(feeUsd),
		ChainId:    1,
		Interval:   1,
		Percentage: decimal.RequireFromString(pct),
	})
	if err != nil {
		t.Fatalf("Failed to record swap fee: %v", err)
	}
	if batch == nil {
		t.Fatal("Expected a cashback batch with interval 1, got nil")
	}
	return batch
}
