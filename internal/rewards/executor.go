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

package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/prime"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustodyWriter submits payout transfers through the custody API and looks
// them up for confirmation.
type CustodyWriter interface {
	SubmitTransfer(ctx context.Context, params prime.SubmitTransferParams) (*models.Withdrawal, error)
	WaitForConfirmation(ctx context.Context, portfolioId, walletId, idempotencyKey string, poll time.Duration) (*models.CustodyTransaction, error)
}

// BalanceReader reads on-chain token balances.
type BalanceReader interface {
	GetTokenBalance(ctx context.Context, chainId int64, token, address string) (*big.Int, error)
}

// Executor drives payouts through PENDING -> PROCESSING -> COMPLETED|FAILED.
// The PROCESSING flip is a conditional update on PENDING, so two concurrent
// Execute calls for the same payout cannot both submit a transfer.
type Executor struct {
	store       store.RewardStore
	custody     CustodyWriter
	balances    BalanceReader
	chains      map[int64]models.ChainConfig
	portfolioId string
	cfg         models.PayoutConfig
	mirror      AuditMirror
}

func NewExecutor(rewardStore store.RewardStore, custody CustodyWriter, balances BalanceReader,
	chains map[int64]models.ChainConfig, portfolioId string, cfg models.PayoutConfig, mirror AuditMirror) *Executor {
	return &Executor{
		store:       rewardStore,
		custody:     custody,
		balances:    balances,
		chains:      chains,
		portfolioId: portfolioId,
		cfg:         cfg,
		mirror:      mirror,
	}
}

// Execute settles one PENDING payout on chain. Submission and confirmation
// errors flip the payout to FAILED with the reason and are returned to the
// caller; a confirmation timeout leaves the payout PROCESSING for the
// reconciler to resolve against the custody record.
func (e *Executor) Execute(ctx context.Context, payoutId string) (*models.Payout, error) {
	payout, err := e.store.GetPayout(ctx, payoutId)
	if err != nil {
		return nil, err
	}

	chainCfg, ok := e.chains[payout.ChainId]
	if !ok || chainCfg.PayoutWalletId == "" {
		return nil, fmt.Errorf("%w: chain %d", ErrWalletNotConfigured, payout.ChainId)
	}

	idempotencyKey := uuid.New().String()
	if err := e.store.MarkPayoutProcessing(ctx, payoutId, idempotencyKey); err != nil {
		return nil, err
	}

	zap.L().Info("Executing payout",
		zap.String("payout_id", payoutId),
		zap.String("wallet", payout.Wallet),
		zap.String("type", payout.PayoutType),
		zap.String("amount_usd", payout.AmountUsd.String()),
		zap.Int64("chain_id", payout.ChainId))

	_, err = e.custody.SubmitTransfer(ctx, prime.SubmitTransferParams{
		PortfolioId:        e.portfolioId,
		WalletId:           chainCfg.PayoutWalletId,
		DestinationAddress: payout.Wallet,
		Amount:             payout.AmountUsd.String(),
		Symbol:             chainCfg.SettlementSymbol,
		IdempotencyKey:     idempotencyKey,
	})
	if err != nil {
		reason := fmt.Sprintf("transfer submission failed: %v", err)
		if failErr := e.store.FailPayout(ctx, payoutId, reason); failErr != nil {
			zap.L().Error("Failed to record payout failure",
				zap.String("payout_id", payoutId),
				zap.Error(failErr))
		}
		return nil, fmt.Errorf("payout %s submission failed: %w", payoutId, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	tx, err := e.custody.WaitForConfirmation(confirmCtx, e.portfolioId, chainCfg.PayoutWalletId, idempotencyKey, e.cfg.ConfirmPoll)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Left PROCESSING on purpose. The reconciler will settle it
			// from the custody record.
			return nil, fmt.Errorf("payout %s confirmation timed out: %w", payoutId, err)
		}
		reason := fmt.Sprintf("confirmation failed: %v", err)
		if failErr := e.store.FailPayout(ctx, payoutId, reason); failErr != nil {
			zap.L().Error("Failed to record payout failure",
				zap.String("payout_id", payoutId),
				zap.Error(failErr))
		}
		return nil, fmt.Errorf("payout %s confirmation failed: %w", payoutId, err)
	}

	if prime.IsTerminalFailure(tx.Status) {
		reason := fmt.Sprintf("custody transfer ended %s", tx.Status)
		if failErr := e.store.FailPayout(ctx, payoutId, reason); failErr != nil {
			zap.L().Error("Failed to record payout failure",
				zap.String("payout_id", payoutId),
				zap.Error(failErr))
		}
		return nil, fmt.Errorf("payout %s failed: %s", payoutId, reason)
	}

	if err := e.store.CompletePayout(ctx, payoutId, tx.TransactionId); err != nil {
		return nil, err
	}
	e.mirrorSettlement(ctx, payout, tx.TransactionId)

	zap.L().Info("Payout completed",
		zap.String("payout_id", payoutId),
		zap.String("tx_hash", tx.TransactionId))

	return e.store.GetPayout(ctx, payoutId)
}

// ExecuteBatch runs payouts sequentially and isolates failures per item.
func (e *Executor) ExecuteBatch(ctx context.Context, payoutIds []string) (succeeded, failed []string) {
	for _, id := range payoutIds {
		if _, err := e.Execute(ctx, id); err != nil {
			zap.L().Error("Batch payout item failed",
				zap.String("payout_id", id),
				zap.Error(err))
			failed = append(failed, id)
			continue
		}
		succeeded = append(succeeded, id)
	}
	return succeeded, failed
}

// Approve stamps admin approval on a PENDING payout.
func (e *Executor) Approve(ctx context.Context, payoutId string) error {
	return e.store.ApprovePayout(ctx, payoutId)
}

// Reject flips a PENDING payout to FAILED with the admin reason and releases
// the source reward. Never touches the chain.
func (e *Executor) Reject(ctx context.Context, payoutId, reason string) error {
	return e.store.RejectPayout(ctx, payoutId, reason)
}

// GetWalletBalance reads the treasury's settlement-token balance on a chain,
// in token base units.
func (e *Executor) GetWalletBalance(ctx context.Context, chainId int64) (*big.Int, error) {
	chainCfg, ok := e.chains[chainId]
	if !ok || chainCfg.TreasuryAddress == "" {
		return nil, fmt.Errorf("%w: chain %d", ErrWalletNotConfigured, chainId)
	}
	return e.balances.GetTokenBalance(ctx, chainId, chainCfg.SettlementToken, chainCfg.TreasuryAddress)
}

func (e *Executor) mirrorSettlement(ctx context.Context, payout *models.Payout, txHash string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.RecordPayoutSettled(ctx, payout, txHash); err != nil {
		zap.L().Warn("Failed to mirror payout settlement",
			zap.String("payout_id", payout.Id),
			zap.Error(err))
	}
}
