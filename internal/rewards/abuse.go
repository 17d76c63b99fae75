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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Daily cap kinds accepted by CheckDailyCap.
const (
	CapKindCashback = "cashback"
	CapKindReferral = "referral"
)

// ValidateSize rejects swaps under the configured value or fee floor.
func (s *Service) ValidateSize(swapValueUsd, feeUsd decimal.Decimal) error {
	if swapValueUsd.LessThan(s.cfg.MinSwapUsd) {
		return fmt.Errorf("%w: value $%s under $%s", ErrBelowMinimum,
			swapValueUsd.String(), s.cfg.MinSwapUsd.String())
	}
	if feeUsd.LessThan(s.cfg.MinFeeUsd) {
		return fmt.Errorf("%w: fee $%s under $%s", ErrBelowMinimum,
			feeUsd.String(), s.cfg.MinFeeUsd.String())
	}
	return nil
}

// DetectWashTrade reports whether the wallet already has at least the
// threshold number of verified swaps in the exact reverse direction inside
// the trailing window. A heuristic; false positives are accepted.
func (s *Service) DetectWashTrade(ctx context.Context, wallet, fromToken, toToken string, chainId int64) (bool, error) {
	since := time.Now().UTC().Add(-s.cfg.WashTradeWindow)
	reversed, err := s.store.CountReversedSwapsSince(ctx, wallet, fromToken, toToken, chainId, since)
	if err != nil {
		return false, err
	}

	if reversed >= s.cfg.WashTradeThreshold {
		zap.L().Warn("Wash trade heuristic triggered",
			zap.String("wallet", wallet),
			zap.String("pair", fromToken+"/"+toToken),
			zap.Int("reversed_swaps", reversed),
			zap.Duration("window", s.cfg.WashTradeWindow))
		return true, nil
	}
	return false, nil
}

// CheckDailyCap reports whether adding proposedUsd to the wallet's same-day
// rewards of the given kind would exceed the daily ceiling. Read-only; the
// caller decides whether to reduce, reject or drop.
func (s *Service) CheckDailyCap(ctx context.Context, wallet string, proposedUsd decimal.Decimal, kind string) (bool, error) {
	now := time.Now().UTC()

	var spent decimal.Decimal
	var err error
	switch kind {
	case CapKindCashback:
		spent, err = s.store.SumDailyCashback(ctx, wallet, now, "")
	case CapKindReferral:
		spent, err = s.store.SumDailyReferral(ctx, wallet, now)
	default:
		return false, fmt.Errorf("unknown daily cap kind %q", kind)
	}
	if err != nil {
		return false, err
	}

	return spent.Add(proposedUsd).GreaterThan(s.cfg.DailyCapUsd), nil
}
