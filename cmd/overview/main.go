package main

import (
	"context"
	"flag"
	"fmt"

	"rwaswap-rewards/internal/api"
	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet address (required)")
	flag.Parse()
	if *walletFlag == "" {
		zap.L().Fatal("Missing required flag: --wallet")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	apiService := api.NewRewardsService(dbService, cfg.Rewards)

	overview, err := apiService.GetRewardsOverview(ctx, *walletFlag)
	if err != nil {
		zap.L().Fatal("Failed to load rewards overview", zap.Error(err))
	}

	common.PrintHeader("REWARDS OVERVIEW", common.DefaultWidth)
	fmt.Printf("Wallet:             %s\n", overview.Wallet)
	fmt.Printf("Points Balance:     %d\n", overview.PointsBalance)
	fmt.Printf("Total Points:       %d\n", overview.TotalPointsEarned)
	fmt.Printf("Total Swaps:        %d\n", overview.TotalSwaps)
	fmt.Printf("Streak Days:        %d\n", overview.StreakDays)
	fmt.Printf("Total Cashback:     $%s\n", overview.TotalCashbackUsd.String())
	fmt.Printf("Total Referral:     $%s\n", overview.TotalReferralUsd.String())
	fmt.Printf("Claimable Cashback: $%s\n", overview.ClaimableCashbackUsd.String())
	fmt.Printf("Claimable Referral: $%s\n", overview.ClaimableReferralUsd.String())
	common.PrintSeparator("-", common.DefaultWidth)

	if len(overview.RecentEvents) == 0 {
		fmt.Println("No reward events yet.")
	} else {
		fmt.Println("Recent events:")
		for i, event := range overview.RecentEvents {
			prefix := common.BoxPrefix(i == len(overview.RecentEvents)-1)
			fmt.Printf("%s%s  %-24s %s\n", prefix,
				event.CreatedAt.Format("2006-01-02 15:04:05"),
				event.EventType, event.Description)
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
