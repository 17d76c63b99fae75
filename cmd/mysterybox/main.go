package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"rwaswap-rewards/internal/api"
	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"
	"rwaswap-rewards/internal/rewards"
	"rwaswap-rewards/internal/store"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet address (required)")
	openFlag := flag.Bool("open", false, "Open a mystery box")
	chainIdFlag := flag.Int64("chain-id", 0, "Chain id the box payout settles on (required with --open)")
	flag.Parse()

	if *walletFlag == "" {
		zap.L().Fatal("Missing required flag: --wallet")
	}
	if *openFlag && *chainIdFlag == 0 {
		zap.L().Fatal("Missing required flag: --chain-id")
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

	if *openFlag {
		rewardsService := rewards.NewService(dbService, nil, cfg.Rewards, nil, nil)
		box, err := rewardsService.OpenBox(ctx, *walletFlag, *chainIdFlag)
		if err != nil {
			common.PrintHeader("MYSTERY BOX FAILED", common.DefaultWidth)
			switch {
			case errors.Is(err, store.ErrInsufficientPoints):
				fmt.Println("Not enough points to open a box.")
			case errors.Is(err, store.ErrCooldownActive):
				fmt.Println("Box cooldown is still active.")
			case errors.Is(err, store.ErrPoolEmpty):
				fmt.Println("The reward pool is empty right now.")
			default:
				fmt.Printf("Error: %v\n", err)
			}
			common.PrintSeparator("=", common.DefaultWidth)
			zap.L().Fatal("Failed to open mystery box", zap.Error(err))
		}

		common.PrintHeader("MYSTERY BOX OPENED", common.DefaultWidth)
		fmt.Printf("Box ID:       %s\n", box.Id)
		fmt.Printf("Rarity:       %s\n", box.Rarity)
		fmt.Printf("Payout:       $%s\n", box.PayoutUsd.String())
		fmt.Printf("Points Spent: %d\n", box.PointsSpent)
		fmt.Println("\nClaim the payout with cmd/claim --type mysterybox.")
		common.PrintSeparator("=", common.DefaultWidth)
		return
	}

	apiService := api.NewRewardsService(dbService, cfg.Rewards)
	info, err := apiService.GetMysteryBoxInfo(ctx, *walletFlag)
	if err != nil {
		zap.L().Fatal("Failed to load mystery box info", zap.Error(err))
	}

	common.PrintHeader("MYSTERY BOX", common.DefaultWidth)
	fmt.Printf("Pool Balance:   $%s\n", info.PoolBalanceUsd.String())
	fmt.Printf("Box Cost:       %d points\n", info.BoxCostPoints)
	fmt.Printf("Points Balance: %d\n", info.PointsBalance)
	if info.CooldownRemaining != "" {
		fmt.Printf("Cooldown:       %s remaining\n", info.CooldownRemaining)
	}
	common.PrintSeparator("-", common.DefaultWidth)
	if len(info.RecentBoxes) == 0 {
		fmt.Println("No boxes opened yet.")
	} else {
		for i, box := range info.RecentBoxes {
			prefix := common.BoxPrefix(i == len(info.RecentBoxes)-1)
			fmt.Printf("%s%s  %-11s $%s\n", prefix,
				box.CreatedAt.Format("2006-01-02 15:04:05"), box.Rarity, box.PayoutUsd.String())
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
