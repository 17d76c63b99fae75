/**
 * Copyright 2025-present Coinbase Global, Inc.
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
	"fmt"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.RewardStore.
var _ store.RewardStore = (*Service)(nil)

// poolRowId is the well-known primary key of the reward pool singleton.
const poolRowId = "reward-pool"

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Reward store initialized successfully")
	return service, nil
}

// NewServiceWithDb wraps an already-open database handle. Used by tests with
// an in-memory SQLite database.
func NewServiceWithDb(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Per-wallet aggregate / read model. points_balance is a cache over the
	-- points ledger, guarded by points_version for optimistic locking.
	CREATE TABLE IF NOT EXISTS users (
		wallet TEXT PRIMARY KEY,
		points_balance INTEGER NOT NULL DEFAULT 0,
		points_version INTEGER NOT NULL DEFAULT 1,
		total_points_earned INTEGER NOT NULL DEFAULT 0,
		total_swaps INTEGER NOT NULL DEFAULT 0,
		total_cashback_usd TEXT NOT NULL DEFAULT '0',
		total_referral_usd TEXT NOT NULL DEFAULT '0',
		streak_days INTEGER NOT NULL DEFAULT 0,
		last_swap_date TEXT NOT NULL DEFAULT '',
		swaps_since_last_cashback INTEGER NOT NULL DEFAULT 0,
		referral_code_id TEXT NOT NULL DEFAULT '',
		referred_by_code_id TEXT NOT NULL DEFAULT '',
		last_box_opened_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS swaps (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		tx_hash TEXT NOT NULL UNIQUE,
		chain_id INTEGER NOT NULL,
		from_token TEXT NOT NULL,
		from_amount TEXT NOT NULL,
		to_token TEXT NOT NULL,
		to_amount TEXT NOT NULL,
		swap_value_usd TEXT NOT NULL,
		fee_usd TEXT NOT NULL,
		points_earned INTEGER NOT NULL DEFAULT 0,
		is_verified INTEGER NOT NULL DEFAULT 0,
		is_wash_trade INTEGER NOT NULL DEFAULT 0,
		block_number INTEGER NOT NULL DEFAULT 0,
		block_time TIMESTAMP,
		verified_at TIMESTAMP,
		route_metadata TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_swaps_tx_hash ON swaps(tx_hash);
	CREATE INDEX IF NOT EXISTS idx_swaps_wallet_created ON swaps(wallet, created_at);
	-- Supports the wash-trade window query: reversed direction in trailing hour.
	CREATE INDEX IF NOT EXISTS idx_swaps_wash ON swaps(wallet, chain_id, from_token, to_token, verified_at);

	CREATE TABLE IF NOT EXISTS fees (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		swap_id TEXT NOT NULL,
		fee_usd TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		used_for_cashback INTEGER NOT NULL DEFAULT 0,
		batch_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_fees_wallet_unused ON fees(wallet, used_for_cashback, created_at);

	CREATE TABLE IF NOT EXISTS points_ledger (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_points_wallet_created ON points_ledger(wallet, created_at);

	CREATE TABLE IF NOT EXISTS cashback_batches (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		total_fees_usd TEXT NOT NULL,
		cashback_percentage TEXT NOT NULL,
		cashback_amount_usd TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		payout_id TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMP,
		paid_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_batches_wallet_status ON cashback_batches(wallet, status, created_at);

	CREATE TABLE IF NOT EXISTS referral_codes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		wallet TEXT NOT NULL UNIQUE,
		total_referees INTEGER NOT NULL DEFAULT 0,
		total_earnings_usd TEXT NOT NULL DEFAULT '0',
		claimable_earnings_usd TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS referral_earnings (
		id TEXT PRIMARY KEY,
		referrer_wallet TEXT NOT NULL,
		referee_wallet TEXT NOT NULL,
		code_id TEXT NOT NULL,
		swap_id TEXT NOT NULL,
		fee_usd TEXT NOT NULL,
		percentage TEXT NOT NULL,
		earning_amount_usd TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		payout_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_referrer_status ON referral_earnings(referrer_wallet, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_earnings_pair ON referral_earnings(referrer_wallet, referee_wallet, status);

	-- Explicit singleton: exactly one row, well-known id, version-guarded.
	CREATE TABLE IF NOT EXISTS reward_pool (
		id TEXT PRIMARY KEY,
		balance_usd TEXT NOT NULL DEFAULT '0',
		total_contributed_usd TEXT NOT NULL DEFAULT '0',
		total_paid_out_usd TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS mystery_boxes (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		points_spent INTEGER NOT NULL,
		rarity TEXT NOT NULL,
		payout_usd TEXT NOT NULL,
		status TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		payout_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_boxes_wallet_status ON mystery_boxes(wallet, status, created_at);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		payout_type TEXT NOT NULL,
		amount_usd TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		token_address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT '',
		approved_at TIMESTAMP,
		paid_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_wallet_status ON payouts(wallet, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status, created_at);

	CREATE TABLE IF NOT EXISTS reward_events (
		id TEXT PRIMARY KEY,
		wallet TEXT NOT NULL,
		event_type TEXT NOT NULL,
		amount_usd TEXT NOT NULL DEFAULT '0',
		points INTEGER NOT NULL DEFAULT 0,
		reference_id TEXT NOT NULL DEFAULT '',
		balance_after TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_wallet_created ON reward_events(wallet, created_at);

	-- Seed the pool singleton so every access path finds the row.
	INSERT OR IGNORE INTO reward_pool (id) VALUES ('reward-pool');
	`

	_, err := s.db.Exec(schema)
	return err
}
