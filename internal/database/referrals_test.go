package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

func TestCreateAndUseReferralCode(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	code, err := service.CreateReferralCode(ctx, "0xreferrer", "swap1234")
	if err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}
	if code.Code != "SWAP1234" {
		t.Errorf("Expected code to be uppercased to SWAP1234, got %s", code.Code)
	}
	if !code.Active {
		t.Error("Expected new code to be active")
	}

	used, err := service.UseReferralCode(ctx, "0xreferee", "swap1234")
	if err != nil {
		t.Fatalf("Failed to use referral code: %v", err)
	}
	if used.Wallet != "0xreferrer" {
		t.Errorf("Expected code owner 0xreferrer, got %s", used.Wallet)
	}

	code, err = service.GetReferralCodeByWallet(ctx, "0xreferrer")
	if err != nil {
		t.Fatalf("Failed to get code by wallet: %v", err)
	}
	if code.TotalReferees != 1 {
		t.Errorf("Expected 1 referee, got %d", code.TotalReferees)
	}
}

func TestUseReferralCodeRejections(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateReferralCode(ctx, "0xreferrer", "CODE1"); err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}

	if _, err := service.UseReferralCode(ctx, "0xreferee", "UNKNOWN"); !errors.Is(err, store.ErrInvalidReferralCode) {
		t.Errorf("Expected ErrInvalidReferralCode, got %v", err)
	}
	if _, err := service.UseReferralCode(ctx, "0xreferrer", "CODE1"); !errors.Is(err, store.ErrSelfReferral) {
		t.Errorf("Expected ErrSelfReferral, got %v", err)
	}

	if _, err := service.UseReferralCode(ctx, "0xreferee", "CODE1"); err != nil {
		t.Fatalf("Failed to use referral code: %v", err)
	}
	if _, err := service.UseReferralCode(ctx, "0xreferee", "CODE1"); !errors.Is(err, store.ErrAlreadyReferred) {
		t.Errorf("Expected ErrAlreadyReferred, got %v", err)
	}
}

func TestCreateReferralCodeIdempotentPerWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	first, err := service.CreateReferralCode(ctx, "0xreferrer", "FIRST")
	if err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}

	// A second create for the same wallet returns the existing code.
	second, err := service.CreateReferralCode(ctx, "0xreferrer", "SECOND")
	if err != nil {
		t.Fatalf("Failed on second create: %v", err)
	}
	if second.Code != first.Code {
		t.Errorf("Expected existing code %s, got %s", first.Code, second.Code)
	}
}

func TestCreateReferralCodeCollision(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateReferralCode(ctx, "0xone", "SAME"); err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}

	_, err := service.CreateReferralCode(ctx, "0xtwo", "SAME")
	if !errors.Is(err, store.ErrCodeGenerationExhausted) {
		t.Errorf("Expected ErrCodeGenerationExhausted on code collision, got %v", err)
	}
}

func TestReferralEarningMilestoneUnlock(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateReferralCode(ctx, "0xreferrer", "CODE1"); err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}
	if _, err := service.UseReferralCode(ctx, "0xreferee", "CODE1"); err != nil {
		t.Fatalf("Failed to use referral code: %v", err)
	}

	params := store.ReferralEarningParams{
		RefereeWallet: "0xreferee",
		FeeUsd:        decimal.NewFromInt(10),
		Percentage:    decimal.RequireFromString("0.10"),
		ChainId:       1,
		Milestone:     2,
		MaxEarningUsd: decimal.NewFromInt(50),
	}

	// First swap: below the milestone, earning stays LOCKED.
	swap := createVerifiedSwap(t, service, "0xreferee", "0xswap1", "ETH", "USDC", "10.00")
	params.SwapId = swap.Id
	earning, err := service.RecordReferralEarning(ctx, params)
	if err != nil {
		t.Fatalf("Failed to record first earning: %v", err)
	}
	if earning.Status != models.StatusLocked {
		t.Errorf("Expected LOCKED earning below milestone, got %s", earning.Status)
	}
	if !earning.EarningAmountUsd.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected earning of 1.00, got %s", earning.EarningAmountUsd.String())
	}

	// Second swap reaches the milestone: new earning CLAIMABLE and the
	// locked one unlocks in the same transaction.
	swap = createVerifiedSwap(t, service, "0xreferee", "0xswap2", "ETH", "USDC", "10.00")
	params.SwapId = swap.Id
	earning, err = service.RecordReferralEarning(ctx, params)
	if err != nil {
		t.Fatalf("Failed to record second earning: %v", err)
	}
	if earning.Status != models.StatusClaimable {
		t.Errorf("Expected CLAIMABLE earning at milestone, got %s", earning.Status)
	}

	stats, err := service.GetReferralStats(ctx, "0xreferrer")
	if err != nil {
		t.Fatalf("Failed to get referral stats: %v", err)
	}
	if !stats.LockedEarningsUsd.IsZero() {
		t.Errorf("Expected no locked earnings after milestone, got %s", stats.LockedEarningsUsd.String())
	}
	if !stats.ClaimableEarningsUsd.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected claimable 2.00, got %s", stats.ClaimableEarningsUsd.String())
	}
	if !stats.TotalEarningsUsd.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected total 2.00, got %s", stats.TotalEarningsUsd.String())
	}
}

func TestReferralEarningWithoutReferrer(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	// The wallet exists but never used a code.
	createVerifiedSwap(t, service, "0xsolo", "0xswap1", "ETH", "USDC", "10.00")

	earning, err := service.RecordReferralEarning(ctx, store.ReferralEarningParams{
		RefereeWallet: "0xsolo",
		SwapId:        "swap-1",
		FeeUsd:        decimal.NewFromInt(10),
		Percentage:    decimal.RequireFromString("0.10"),
		ChainId:       1,
		Milestone:     2,
		MaxEarningUsd: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("Expected no error for wallet without referrer, got %v", err)
	}
	if earning != nil {
		t.Errorf("Expected nil earning for wallet without referrer, got %+v", earning)
	}
}

func TestReferralEarningCappedToRoom(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateReferralCode(ctx, "0xreferrer", "CODE1"); err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}
	if _, err := service.UseReferralCode(ctx, "0xreferee", "CODE1"); err != nil {
		t.Fatalf("Failed to use referral code: %v", err)
	}

	swap := createVerifiedSwap(t, service, "0xreferee", "0xswap1", "ETH", "USDC", "10.00")

	// 10% of $10 is $1.00, but only $0.40 of daily room remains.
	earning, err := service.RecordReferralEarning(ctx, store.ReferralEarningParams{
		RefereeWallet: "0xreferee",
		SwapId:        swap.Id,
		FeeUsd:        decimal.NewFromInt(10),
		Percentage:    decimal.RequireFromString("0.10"),
		ChainId:       1,
		Milestone:     2,
		MaxEarningUsd: decimal.RequireFromString("0.40"),
	})
	if err != nil {
		t.Fatalf("Failed to record earning: %v", err)
	}
	if !earning.EarningAmountUsd.Equal(decimal.RequireFromString("0.40")) {
		t.Errorf("Expected earning capped to 0.40, got %s", earning.EarningAmountUsd.String())
	}

	// No room at all drops the earning entirely.
	swap = createVerifiedSwap(t, service, "0xreferee", "0xswap2", "ETH", "USDC", "10.00")
	earning, err = service.RecordReferralEarning(ctx, store.ReferralEarningParams{
		RefereeWallet: "0xreferee",
		SwapId:        swap.Id,
		FeeUsd:        decimal.NewFromInt(10),
		Percentage:    decimal.RequireFromString("0.10"),
		ChainId:       1,
		Milestone:     2,
		MaxEarningUsd: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("Expected no error when cap leaves no room, got %v", err)
	}
	if earning != nil {
		t.Errorf("Expected nil earning when cap leaves no room, got %+v", earning)
	}
}

func TestSumDailyReferral(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateReferralCode(ctx, "0xreferrer", "CODE1"); err != nil {
		t.Fatalf("Failed to create referral code: %v", err)
	}
	if _, err := service.UseReferralCode(ctx, "0xreferee", "CODE1"); err != nil {
		t.Fatalf("Failed to use referral code: %v", err)
	}

	// LOCKED earnings do not count against the daily sum.
	swap := createVerifiedSwap(t, service, "0xreferee", "0xswap1", "ETH", "USDC", "10.00")
	if _, err := service.RecordReferralEarning(ctx, store.ReferralEarningParams{
		RefereeWallet: "0xreferee",
		SwapId:        swap.Id,
		FeeUsd:        decimal.NewFromInt(10),
		Percentage:    decimal.RequireFromString("0.10"),
		ChainId:       1,
		Milestone:     5,
		MaxEarningUsd: decimal.NewFromInt(50),
	}); err != nil {
		t.Fatalf("Failed to record earning: %v", err)
	}

	sum, err := service.SumDailyReferral(ctx, "0xreferee", time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to sum daily referral: %v", err)
	}
	if !sum.IsZero() {
		t.Errorf("Expected locked earnings to sum to 0, got %s", sum.String())
	}

	// A wallet with no referrer sums to zero without error.
	sum, err = service.SumDailyReferral(ctx, "0xnobody", time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to sum daily referral for unknown wallet: %v", err)
	}
	if !sum.IsZero() {
		t.Errorf("Expected 0 for unknown wallet, got %s", sum.String())
	}
}
