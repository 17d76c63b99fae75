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
	"math/rand"
	"strings"
	"sync"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Policy errors surfaced by the orchestrator and gates.
var (
	ErrBelowMinimum        = errors.New("swap below minimum size")
	ErrMalformedRoute      = errors.New("route metadata is malformed")
	ErrWashTradeDetected   = errors.New("wash trade detected")
	ErrDailyCapExceeded    = errors.New("daily reward cap exceeded")
	ErrWalletNotConfigured = errors.New("no payout wallet configured for chain")
)

// receiptTimeout bounds the on-chain receipt lookup so a slow RPC endpoint
// cannot stall the request.
const receiptTimeout = 30 * time.Second

// ChainReader resolves transaction receipts for swap verification.
type ChainReader interface {
	GetReceipt(ctx context.Context, chainId int64, txHash string) (*models.Receipt, error)
}

// AuditMirror receives money movements for out-of-band bookkeeping. Mirror
// failures are logged and never block the reward path.
type AuditMirror interface {
	RecordPoolContribution(ctx context.Context, swapId string, amount decimal.Decimal) error
	RecordPayoutSettled(ctx context.Context, payout *models.Payout, txHash string) error
}

// Service orchestrates the swap reward lifecycle over the store and the
// chain reader.
type Service struct {
	store  store.RewardStore
	reader ChainReader
	cfg    models.RewardsConfig
	mirror AuditMirror

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates the rewards orchestrator. mirror may be nil when the
// audit ledger is not configured. rng may be nil; a time-seeded source is
// used then.
func NewService(rewardStore store.RewardStore, reader ChainReader, cfg models.RewardsConfig, mirror AuditMirror, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		store:  rewardStore,
		reader: reader,
		cfg:    cfg,
		mirror: mirror,
		rng:    rng,
	}
}

// VerifySwapParams is the client-supplied claim for a completed swap. The
// route payload comes from the upstream quoting service and is not trusted.
type VerifySwapParams struct {
	Wallet       string
	TxHash       string
	ChainId      int64
	SwapValueUsd decimal.Decimal
	FeeUsd       decimal.Decimal
	Route        string
}

// ProcessSwap runs the full lifecycle for one claimed swap: size gate,
// idempotency check, wash-trade gate, on-chain verification, then the reward
// sequence (streak, points, pool contribution, cashback with daily cap,
// referral with daily cap). A wash-trade positive still persists the flagged
// Swap before failing so the audit trail keeps the on-chain activity.
func (s *Service) ProcessSwap(ctx context.Context, params VerifySwapParams) (*models.SwapResult, error) {
	wallet := strings.ToLower(params.Wallet)
	txHash := strings.ToLower(params.TxHash)

	if err := s.ValidateSize(params.SwapValueUsd, params.FeeUsd); err != nil {
		return nil, err
	}

	existing, err := s.store.GetSwapByTxHash(ctx, txHash)
	if err != nil && !errors.Is(err, store.ErrSwapNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.IsVerified {
			return nil, fmt.Errorf("%w: %s", store.ErrSwapAlreadyVerified, txHash)
		}
		if existing.IsWashTrade {
			return nil, fmt.Errorf("%w: %s previously flagged", ErrWashTradeDetected, txHash)
		}
	}

	route, err := extractRoute(params.Route)
	if err != nil {
		return nil, err
	}

	washDetected, err := s.DetectWashTrade(ctx, wallet, route.From.Token, route.To.Token, params.ChainId)
	if err != nil {
		return nil, err
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := s.reader.GetReceipt(receiptCtx, params.ChainId, txHash)
	if err != nil {
		return nil, err
	}

	points := params.FeeUsd.Mul(decimal.NewFromInt(100)).Floor().IntPart()

	var swap *models.Swap
	if existing != nil {
		// A re-verification attempt that trips the wash gate must not
		// store a verified record with points.
		if washDetected {
			swap, err = s.store.FlagSwapWashTrade(ctx, existing.Id, receipt.BlockNumber, receipt.BlockTime)
		} else {
			swap, err = s.store.MarkSwapVerified(ctx, existing.Id, receipt.BlockNumber, receipt.BlockTime, points)
		}
		if err != nil {
			return nil, err
		}
	} else {
		fromAmount, toAmount := routeAmounts(route)
		earned := points
		if washDetected {
			earned = 0
		}
		swap, err = s.store.CreateSwap(ctx, store.CreateSwapParams{
			Wallet:        wallet,
			TxHash:        txHash,
			ChainId:       params.ChainId,
			FromToken:     route.From.Token,
			FromAmount:    fromAmount,
			ToToken:       route.To.Token,
			ToAmount:      toAmount,
			SwapValueUsd:  params.SwapValueUsd,
			FeeUsd:        params.FeeUsd,
			PointsEarned:  earned,
			IsWashTrade:   washDetected,
			BlockNumber:   receipt.BlockNumber,
			BlockTime:     receipt.BlockTime,
			RouteMetadata: params.Route,
		})
		if err != nil {
			return nil, err
		}
	}

	if washDetected {
		zap.L().Warn("Swap flagged as wash trade, no rewards issued",
			zap.String("wallet", wallet),
			zap.String("tx_hash", txHash),
			zap.Int64("chain_id", params.ChainId))
		return nil, fmt.Errorf("%w: %s/%s on chain %d", ErrWashTradeDetected,
			route.From.Token, route.To.Token, params.ChainId)
	}

	now := time.Now().UTC()
	if err := s.store.TouchSwapStreak(ctx, wallet, now); err != nil {
		return nil, err
	}

	if points > 0 {
		_, err = s.store.CreditPoints(ctx, store.PointsParams{
			Wallet:      wallet,
			Amount:      points,
			EntryType:   models.PointsEarned,
			ReferenceId: swap.Id,
			Description: fmt.Sprintf("Points for swap %s", txHash),
		})
		if err != nil {
			return nil, err
		}
	}

	contribution := params.FeeUsd.Mul(s.cfg.PoolContributionPct).Round(4)
	if err := s.store.ContributeToPool(ctx, contribution, swap.Id); err != nil {
		return nil, err
	}
	s.mirrorPoolContribution(ctx, swap.Id, contribution)

	result := &models.SwapResult{
		SwapId:       swap.Id,
		PointsEarned: points,
	}

	batch, err := s.store.RecordSwapFee(ctx, store.SwapFeeParams{
		Wallet:     wallet,
		SwapId:     swap.Id,
		FeeUsd:     params.FeeUsd,
		ChainId:    params.ChainId,
		Interval:   s.cfg.CashbackInterval,
		Percentage: s.drawCashbackPct(),
	})
	if err != nil {
		return nil, err
	}
	if batch != nil {
		capped, err := s.applyDailyCashbackCap(ctx, wallet, batch, now)
		if err != nil {
			return nil, err
		}
		if capped != nil {
			result.CashbackTriggered = true
			result.CashbackBatchId = capped.Id
			result.CashbackUsd = capped.CashbackAmountUsd
		}
	}

	earning, err := s.processReferral(ctx, wallet, swap, now)
	if err != nil {
		return nil, err
	}
	if earning != nil {
		result.ReferralEarningId = earning.Id
	}

	user, err := s.store.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}
	result.SwapsUntilNext = s.cfg.CashbackInterval - int(user.SwapsSinceLastCashback)
	if result.SwapsUntilNext < 0 {
		result.SwapsUntilNext = 0
	}

	zap.L().Info("Swap processed",
		zap.String("swap_id", swap.Id),
		zap.String("wallet", wallet),
		zap.Int64("points", points),
		zap.Bool("cashback_triggered", result.CashbackTriggered))

	return result, nil
}

// applyDailyCashbackCap shrinks or discards a freshly created batch so the
// wallet's same-day cashback never exceeds the daily ceiling. Returns the
// surviving batch, or nil when it was discarded. The batch is created first
// and capped after so the aggregator stays free of policy.
func (s *Service) applyDailyCashbackCap(ctx context.Context, wallet string, batch *models.CashbackBatch, now time.Time) (*models.CashbackBatch, error) {
	spent, err := s.store.SumDailyCashback(ctx, wallet, now, batch.Id)
	if err != nil {
		return nil, err
	}

	room := s.cfg.DailyCapUsd.Sub(spent)
	if !room.IsPositive() {
		zap.L().Info("Cashback batch discarded by daily cap",
			zap.String("batch_id", batch.Id),
			zap.String("wallet", wallet),
			zap.String("spent_today", spent.String()))
		if err := s.store.DiscardCashbackBatch(ctx, batch.Id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if batch.CashbackAmountUsd.GreaterThan(room) {
		zap.L().Info("Cashback batch reduced by daily cap",
			zap.String("batch_id", batch.Id),
			zap.String("original", batch.CashbackAmountUsd.String()),
			zap.String("reduced", room.String()))
		if err := s.store.ReduceCashbackBatch(ctx, batch.Id, room); err != nil {
			return nil, err
		}
		batch.CashbackAmountUsd = room
	}
	return batch, nil
}

// processReferral records the referrer's cut of this swap's fee, capped to
// the remaining daily referral room. No-op when the wallet has no referrer.
func (s *Service) processReferral(ctx context.Context, wallet string, swap *models.Swap, now time.Time) (*models.ReferralEarning, error) {
	spent, err := s.store.SumDailyReferral(ctx, wallet, now)
	if err != nil {
		return nil, err
	}

	return s.store.RecordReferralEarning(ctx, store.ReferralEarningParams{
		RefereeWallet: wallet,
		SwapId:        swap.Id,
		FeeUsd:        swap.FeeUsd,
		Percentage:    s.cfg.ReferralPct,
		ChainId:       swap.ChainId,
		Milestone:     s.cfg.ReferralMilestone,
		MaxEarningUsd: s.cfg.DailyCapUsd.Sub(spent),
	})
}

// drawCashbackPct draws the per-batch cashback percentage uniformly within
// the configured range.
func (s *Service) drawCashbackPct() decimal.Decimal {
	spread, _ := s.cfg.CashbackMaxPct.Sub(s.cfg.CashbackMinPct).Float64()
	s.rngMu.Lock()
	roll := s.rng.Float64()
	s.rngMu.Unlock()
	return s.cfg.CashbackMinPct.Add(decimal.NewFromFloat(roll * spread)).Round(4)
}

func (s *Service) mirrorPoolContribution(ctx context.Context, swapId string, amount decimal.Decimal) {
	if s.mirror == nil || !amount.IsPositive() {
		return
	}
	if err := s.mirror.RecordPoolContribution(ctx, swapId, amount); err != nil {
		zap.L().Warn("Failed to mirror pool contribution",
			zap.String("swap_id", swapId),
			zap.Error(err))
	}
}
