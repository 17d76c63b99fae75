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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"
	"rwaswap-rewards/internal/rewards"
	"rwaswap-rewards/internal/store"

	"go.uber.org/zap"
)

func buildClaimRequest(claimType, batchId, boxId string, chainId int64) (rewards.ClaimRequest, error) {
	switch claimType {
	case "cashback":
		if batchId == "" {
			return nil, fmt.Errorf("--batch-id is required for cashback claims")
		}
		return rewards.CashbackClaim{BatchId: batchId}, nil
	case "referral":
		if chainId == 0 {
			return nil, fmt.Errorf("--chain-id is required for referral claims")
		}
		return rewards.ReferralClaim{ChainId: chainId}, nil
	case "mysterybox":
		if boxId == "" {
			return nil, fmt.Errorf("--box-id is required for mystery box claims")
		}
		return rewards.MysteryBoxClaim{BoxId: boxId}, nil
	default:
		return nil, fmt.Errorf("unknown claim type %q (want cashback, referral or mysterybox)", claimType)
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet address (required)")
	typeFlag := flag.String("type", "", "Claim type: cashback, referral or mysterybox (required)")
	batchIdFlag := flag.String("batch-id", "", "Cashback batch id")
	boxIdFlag := flag.String("box-id", "", "Mystery box id")
	chainIdFlag := flag.Int64("chain-id", 0, "Chain id for referral claims")
	flag.Parse()

	if *walletFlag == "" || *typeFlag == "" {
		zap.L().Fatal("Missing required flags: --wallet, --type")
	}

	req, err := buildClaimRequest(*typeFlag, *batchIdFlag, *boxIdFlag, *chainIdFlag)
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Claims only move store state; settlement happens via cmd/payouts.
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	rewardsService := rewards.NewService(dbService, nil, cfg.Rewards, nil, nil)

	payout, err := rewardsService.Claim(ctx, *walletFlag, req)
	if err != nil {
		common.PrintHeader("CLAIM FAILED", common.DefaultWidth)
		switch {
		case errors.Is(err, store.ErrNotClaimable):
			fmt.Println("The referenced reward is not claimable.")
		case errors.Is(err, store.ErrNothingToClaim):
			fmt.Println("Nothing to claim.")
		default:
			fmt.Printf("Error: %v\n", err)
		}
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Claim failed", zap.Error(err))
	}

	common.PrintHeader("REWARD CLAIMED", common.DefaultWidth)
	fmt.Printf("Payout ID: %s\n", payout.Id)
	fmt.Printf("Type:      %s\n", payout.PayoutType)
	fmt.Printf("Amount:    $%s\n", payout.AmountUsd.String())
	fmt.Printf("Chain:     %d\n", payout.ChainId)
	fmt.Printf("Status:    %s\n", payout.Status)
	fmt.Println("\nThe payout is PENDING; settle it with cmd/payouts --execute.")
	common.PrintSeparator("=", common.DefaultWidth)
}
