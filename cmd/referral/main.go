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
	createFlag := flag.Bool("create", false, "Create (or show) the wallet's referral code")
	useFlag := flag.String("use", "", "Use someone else's referral code")
	statsFlag := flag.Bool("stats", false, "Show referral stats")
	flag.Parse()

	if *walletFlag == "" {
		zap.L().Fatal("Missing required flag: --wallet")
	}
	if !*createFlag && *useFlag == "" && !*statsFlag {
		zap.L().Fatal("One of --create, --use or --stats is required")
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

	rewardsService := rewards.NewService(dbService, nil, cfg.Rewards, nil, nil)

	switch {
	case *createFlag:
		code, err := rewardsService.CreateReferralCode(ctx, *walletFlag)
		if err != nil {
			zap.L().Fatal("Failed to create referral code", zap.Error(err))
		}
		common.PrintHeader("REFERRAL CODE", common.DefaultWidth)
		fmt.Printf("Code:   %s\n", code.Code)
		fmt.Printf("Wallet: %s\n", code.Wallet)
		common.PrintSeparator("=", common.DefaultWidth)

	case *useFlag != "":
		code, err := rewardsService.UseReferralCode(ctx, *walletFlag, *useFlag)
		if err != nil {
			common.PrintHeader("REFERRAL FAILED", common.DefaultWidth)
			switch {
			case errors.Is(err, store.ErrInvalidReferralCode):
				fmt.Println("The code is unknown or inactive.")
			case errors.Is(err, store.ErrSelfReferral):
				fmt.Println("You cannot use your own referral code.")
			case errors.Is(err, store.ErrAlreadyReferred):
				fmt.Println("This wallet already has a referrer.")
			default:
				fmt.Printf("Error: %v\n", err)
			}
			common.PrintSeparator("=", common.DefaultWidth)
			zap.L().Fatal("Failed to use referral code", zap.Error(err))
		}
		common.PrintHeader("REFERRAL CODE USED", common.DefaultWidth)
		fmt.Printf("Referrer: %s\n", code.Wallet)
		fmt.Printf("Code:     %s\n", code.Code)
		common.PrintSeparator("=", common.DefaultWidth)

	case *statsFlag:
		apiService := api.NewRewardsService(dbService, cfg.Rewards)
		stats, err := apiService.GetReferralStats(ctx, *walletFlag)
		if err != nil {
			zap.L().Fatal("Failed to load referral stats", zap.Error(err))
		}
		common.PrintHeader("REFERRAL STATS", common.DefaultWidth)
		fmt.Printf("Code:               %s (active: %t)\n", stats.Code, stats.Active)
		fmt.Printf("Referees:           %d\n", stats.TotalReferees)
		fmt.Printf("Total Earnings:     $%s\n", stats.TotalEarningsUsd.String())
		fmt.Printf("Claimable Earnings: $%s\n", stats.ClaimableEarningsUsd.String())
		fmt.Printf("Locked Earnings:    $%s\n", stats.LockedEarningsUsd.String())
		common.PrintSeparator("-", common.DefaultWidth)
		for i, earning := range stats.Earnings {
			prefix := common.BoxPrefix(i == len(stats.Earnings)-1)
			fmt.Printf("%s$%-8s %-10s from %s\n", prefix,
				earning.EarningAmountUsd.String(), earning.Status, earning.RefereeWallet)
		}
		common.PrintSeparator("=", common.DefaultWidth)
	}
}
