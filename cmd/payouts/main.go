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
	"strings"

	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"
	"rwaswap-rewards/internal/store"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	listFlag := flag.Bool("list", false, "List payouts")
	statusFlag := flag.String("status", "", "Status filter for --list (PENDING, PROCESSING, COMPLETED, FAILED)")
	executeFlag := flag.String("execute", "", "Execute one payout by id, or a comma-separated batch")
	approveFlag := flag.String("approve", "", "Approve a PENDING payout by id")
	rejectFlag := flag.String("reject", "", "Reject a PENDING payout by id")
	reasonFlag := flag.String("reason", "", "Reason for --reject")
	balanceFlag := flag.Int64("balance", 0, "Show the treasury settlement-token balance for a chain id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Listing never touches the chain; everything else needs the full stack.
	if *listFlag {
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbService.Close()

		payouts, err := dbService.ListPayouts(ctx, strings.ToUpper(*statusFlag), 100)
		if err != nil {
			zap.L().Fatal("Failed to list payouts", zap.Error(err))
		}

		common.PrintHeader("PAYOUTS", common.WideWidth)
		if len(payouts) == 0 {
			fmt.Println("No payouts found.")
		}
		for i, payout := range payouts {
			prefix := common.BoxPrefix(i == len(payouts)-1)
			fmt.Printf("%s%s  %-11s %-10s $%-10s chain %-6d %s\n", prefix,
				payout.Id, payout.PayoutType, payout.Status,
				payout.AmountUsd.String(), payout.ChainId, payout.Wallet)
			if payout.FailureReason != "" {
				fmt.Printf("%s   reason: %s\n", common.BoxPrefix(i == len(payouts)-1), payout.FailureReason)
			}
		}
		common.PrintSeparator("=", common.WideWidth)
		return
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *executeFlag != "":
		ids := strings.Split(*executeFlag, ",")
		if len(ids) == 1 {
			payout, err := services.Executor.Execute(ctx, ids[0])
			if err != nil {
				common.PrintHeader("PAYOUT FAILED", common.DefaultWidth)
				if errors.Is(err, store.ErrPayoutNotPending) {
					fmt.Println("The payout is not PENDING; it may already be settled or in flight.")
				} else {
					fmt.Printf("Error: %v\n", err)
				}
				common.PrintSeparator("=", common.DefaultWidth)
				zap.L().Fatal("Payout execution failed", zap.Error(err))
			}
			common.PrintHeader("PAYOUT COMPLETED", common.DefaultWidth)
			fmt.Printf("Payout ID: %s\n", payout.Id)
			fmt.Printf("Tx Hash:   %s\n", payout.TxHash)
			fmt.Printf("Amount:    $%s\n", payout.AmountUsd.String())
			common.PrintSeparator("=", common.DefaultWidth)
			return
		}

		succeeded, failed := services.Executor.ExecuteBatch(ctx, ids)
		common.PrintHeader("BATCH EXECUTION", common.DefaultWidth)
		fmt.Printf("Succeeded: %d\n", len(succeeded))
		for _, id := range succeeded {
			fmt.Printf("  + %s\n", id)
		}
		fmt.Printf("Failed:    %d\n", len(failed))
		for _, id := range failed {
			fmt.Printf("  - %s\n", id)
		}
		common.PrintSeparator("=", common.DefaultWidth)

	case *approveFlag != "":
		if err := services.Executor.Approve(ctx, *approveFlag); err != nil {
			zap.L().Fatal("Failed to approve payout", zap.Error(err))
		}
		fmt.Printf("Payout %s approved.\n", *approveFlag)

	case *rejectFlag != "":
		if *reasonFlag == "" {
			zap.L().Fatal("Missing required flag: --reason")
		}
		if err := services.Executor.Reject(ctx, *rejectFlag, *reasonFlag); err != nil {
			zap.L().Fatal("Failed to reject payout", zap.Error(err))
		}
		fmt.Printf("Payout %s rejected: %s\n", *rejectFlag, *reasonFlag)

	case *balanceFlag != 0:
		balance, err := services.Executor.GetWalletBalance(ctx, *balanceFlag)
		if err != nil {
			zap.L().Fatal("Failed to read treasury balance", zap.Error(err))
		}
		chainCfg := services.Chains[*balanceFlag]
		common.PrintHeader("TREASURY BALANCE", common.DefaultWidth)
		fmt.Printf("Chain:   %s (%d)\n", chainCfg.Name, *balanceFlag)
		fmt.Printf("Token:   %s (%s)\n", chainCfg.SettlementSymbol, chainCfg.SettlementToken)
		fmt.Printf("Balance: %s base units\n", balance.String())
		common.PrintSeparator("=", common.DefaultWidth)

	default:
		zap.L().Fatal("One of --list, --execute, --approve, --reject or --balance is required")
	}
}
