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
	"errors"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/prime"
	"rwaswap-rewards/internal/store"

	"go.uber.org/zap"
)

// CustodyLookup resolves submitted transfers by idempotency key.
type CustodyLookup interface {
	FindTransferByIdempotencyKey(ctx context.Context, portfolioId, walletId, idempotencyKey string) (*models.CustodyTransaction, error)
}

// Reconciler resolves payouts stuck in PROCESSING: an executor that crashed
// or timed out between submission and confirmation leaves the payout there,
// and the custody record (matched by idempotency key) is the source of truth
// for what actually happened.
type Reconciler struct {
	store       store.RewardStore
	custody     CustodyLookup
	chains      map[int64]models.ChainConfig
	portfolioId string

	pollingInterval time.Duration
	gracePeriod     time.Duration
	expiryPeriod    time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(rewardStore store.RewardStore, custody CustodyLookup, chains map[int64]models.ChainConfig,
	portfolioId string, cfg models.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store:           rewardStore,
		custody:         custody,
		chains:          chains,
		portfolioId:     portfolioId,
		pollingInterval: cfg.PollingInterval,
		gracePeriod:     cfg.GracePeriod,
		expiryPeriod:    cfg.ExpiryPeriod,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs a recovery sweep immediately, then polls in the background.
func (r *Reconciler) Start(ctx context.Context) error {
	zap.L().Info("Starting payout reconciler",
		zap.Duration("polling_interval", r.pollingInterval),
		zap.Duration("grace_period", r.gracePeriod),
		zap.Duration("expiry_period", r.expiryPeriod))

	if err := r.reconcileOnce(ctx); err != nil {
		return fmt.Errorf("startup reconciliation sweep failed: %w", err)
	}

	go r.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the reconciler.
func (r *Reconciler) Stop() {
	zap.L().Info("Stopping payout reconciler")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Payout reconciler stopped")
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.reconcileOnce(ctx); err != nil {
				zap.L().Error("Reconciliation sweep failed", zap.Error(err))
			}
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcileOnce inspects every PROCESSING payout older than the grace
// period. Item failures are isolated so one bad payout cannot block a sweep.
func (r *Reconciler) reconcileOnce(ctx context.Context) error {
	payouts, err := r.store.ListPayouts(ctx, models.PayoutProcessing, 0)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-r.gracePeriod)
	resolved := 0
	for _, payout := range payouts {
		if payout.UpdatedAt.After(cutoff) {
			continue // an executor may still be waiting on this one
		}
		if err := r.reconcilePayout(ctx, &payout); err != nil {
			zap.L().Error("Failed to reconcile payout",
				zap.String("payout_id", payout.Id),
				zap.Error(err))
			continue
		}
		resolved++
	}

	if resolved > 0 {
		zap.L().Info("Reconciliation sweep resolved payouts", zap.Int("count", resolved))
	}
	return nil
}

func (r *Reconciler) reconcilePayout(ctx context.Context, payout *models.Payout) error {
	chainCfg, ok := r.chains[payout.ChainId]
	if !ok || chainCfg.PayoutWalletId == "" {
		return fmt.Errorf("no payout wallet configured for chain %d", payout.ChainId)
	}
	if payout.IdempotencyKey == "" {
		// PROCESSING without a key should not happen; fail it for review.
		return r.failStuck(ctx, payout, "processing payout has no idempotency key")
	}

	tx, err := r.custody.FindTransferByIdempotencyKey(ctx, r.portfolioId, chainCfg.PayoutWalletId, payout.IdempotencyKey)
	if err != nil {
		return err
	}

	switch {
	case tx == nil:
		if time.Now().UTC().Sub(payout.UpdatedAt) > r.expiryPeriod {
			return r.failStuck(ctx, payout, "no custody record found before expiry")
		}
		return nil // submitted but not visible yet, keep waiting
	case prime.IsCompleted(tx.Status):
		zap.L().Info("Reconciled stuck payout as completed",
			zap.String("payout_id", payout.Id),
			zap.String("tx_hash", tx.TransactionId))
		return r.store.CompletePayout(ctx, payout.Id, tx.TransactionId)
	case prime.IsTerminalFailure(tx.Status):
		return r.failStuck(ctx, payout, fmt.Sprintf("custody transfer ended %s", tx.Status))
	default:
		return nil // custody side still in flight
	}
}

func (r *Reconciler) failStuck(ctx context.Context, payout *models.Payout, reason string) error {
	zap.L().Warn("Failing stuck payout",
		zap.String("payout_id", payout.Id),
		zap.String("reason", reason))
	err := r.store.FailPayout(ctx, payout.Id, reason)
	if errors.Is(err, store.ErrPayoutNotPending) {
		return nil // someone else resolved it first
	}
	return err
}
