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

	"rwaswap-rewards/internal/chain"
	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"
	"rwaswap-rewards/internal/rewards"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type verifyRequest struct {
	wallet  string
	txHash  string
	chainId int64
	value   decimal.Decimal
	fee     decimal.Decimal
	route   string
}

func parseAndValidateFlags() (*verifyRequest, error) {
	walletFlag := flag.String("wallet", "", "Wallet address (required)")
	txHashFlag := flag.String("tx-hash", "", "Swap transaction hash (required)")
	chainIdFlag := flag.Int64("chain-id", 0, "Chain id (required)")
	valueFlag := flag.String("value", "", "Swap value in USD (required)")
	feeFlag := flag.String("fee", "", "Swap fee in USD (required)")
	routeFlag := flag.String("route", "", "Route JSON from the quoting service (required)")
	flag.Parse()

	if *walletFlag == "" || *txHashFlag == "" || *chainIdFlag == 0 || *valueFlag == "" || *feeFlag == "" || *routeFlag == "" {
		return nil, fmt.Errorf("all flags are required: --wallet, --tx-hash, --chain-id, --value, --fee, --route")
	}

	value, err := decimal.NewFromString(*valueFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid value format: %w", err)
	}
	fee, err := decimal.NewFromString(*feeFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid fee format: %w", err)
	}

	return &verifyRequest{
		wallet:  *walletFlag,
		txHash:  *txHashFlag,
		chainId: *chainIdFlag,
		value:   value,
		fee:     fee,
		route:   *routeFlag,
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Verification only needs the store and the chain reader, not the
	// custody API.
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	chains, err := common.LoadChainConfig(cfg.ChainsFile)
	if err != nil {
		zap.L().Fatal("Failed to load chain config", zap.Error(err))
	}
	reader, err := chain.NewReader(common.RpcEndpoints(chains))
	if err != nil {
		zap.L().Fatal("Failed to create chain reader", zap.Error(err))
	}

	rewardsService := rewards.NewService(dbService, reader, cfg.Rewards, nil, nil)

	result, err := rewardsService.ProcessSwap(ctx, rewards.VerifySwapParams{
		Wallet:       req.wallet,
		TxHash:       req.txHash,
		ChainId:      req.chainId,
		SwapValueUsd: req.value,
		FeeUsd:       req.fee,
		Route:        req.route,
	})
	if err != nil {
		common.PrintHeader("SWAP VERIFICATION FAILED", common.DefaultWidth)
		switch {
		case errors.Is(err, rewards.ErrBelowMinimum):
			fmt.Println("Swap is below the minimum rewardable size.")
		case errors.Is(err, rewards.ErrWashTradeDetected):
			fmt.Println("Swap was flagged as a wash trade. No rewards issued.")
		case errors.Is(err, store.ErrSwapAlreadyVerified):
			fmt.Println("This transaction hash was already verified.")
		case errors.Is(err, chain.ErrReceiptNotFound):
			fmt.Println("The chain has no receipt for this transaction hash.")
		case errors.Is(err, chain.ErrTransactionReverted):
			fmt.Println("The transaction reverted on chain.")
		default:
			fmt.Printf("Error: %v\n", err)
		}
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Swap verification failed", zap.Error(err))
	}

	common.PrintHeader("SWAP VERIFIED", common.DefaultWidth)
	fmt.Printf("Swap ID:          %s\n", result.SwapId)
	fmt.Printf("Points Earned:    %d\n", result.PointsEarned)
	if result.CashbackTriggered {
		fmt.Printf("Cashback Batch:   %s ($%s)\n", result.CashbackBatchId, result.CashbackUsd.String())
	} else {
		fmt.Printf("Swaps Until Next Cashback: %d\n", result.SwapsUntilNext)
	}
	if result.ReferralEarningId != "" {
		fmt.Printf("Referral Earning: %s\n", result.ReferralEarningId)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
