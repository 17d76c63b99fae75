package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

func TestCreateSwapDuplicateTxHash(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	createVerifiedSwap(t, service, "0xabc", "0xhash1", "ETH", "USDC", "1.00")

	_, err := service.CreateSwap(ctx, store.CreateSwapParams{
		Wallet:       "0xabc",
		TxHash:       "0xHASH1", // hashes are lowercased before insert
		ChainId:      1,
		FromToken:    "ETH",
		FromAmount:   decimal.NewFromInt(1),
		ToToken:      "USDC",
		ToAmount:     decimal.NewFromInt(1000),
		SwapValueUsd: decimal.NewFromInt(100),
		FeeUsd:       decimal.NewFromInt(1),
	})
	if !errors.Is(err, store.ErrDuplicateSwap) {
		t.Errorf("Expected ErrDuplicateSwap, got %v", err)
	}
}

func TestGetSwapByTxHashNotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetSwapByTxHash(context.Background(), "0xmissing")
	if !errors.Is(err, store.ErrSwapNotFound) {
		t.Errorf("Expected ErrSwapNotFound, got %v", err)
	}
}

func TestCreateSwapWashTradeFlagged(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	swap, err := service.CreateSwap(ctx, store.CreateSwapParams{
		Wallet:       "0xabc",
		TxHash:       "0xwash",
		ChainId:      1,
		FromToken:    "ETH",
		FromAmount:   decimal.NewFromInt(1),
		ToToken:      "USDC",
		ToAmount:     decimal.NewFromInt(1000),
		SwapValueUsd: decimal.NewFromInt(100),
		FeeUsd:       decimal.NewFromInt(1),
		PointsEarned: 0,
		IsWashTrade:  true,
	})
	if err != nil {
		t.Fatalf("Failed to create wash-trade swap: %v", err)
	}

	if !swap.IsWashTrade {
		t.Error("Expected swap to be flagged as wash trade")
	}
	if swap.IsVerified {
		t.Error("Wash-trade swap should not count as verified")
	}
	if swap.PointsEarned != 0 {
		t.Errorf("Expected 0 points on wash-trade swap, got %d", swap.PointsEarned)
	}

	count, err := service.CountVerifiedSwaps(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to count verified swaps: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 verified swaps, got %d", count)
	}
}

func TestMarkSwapVerifiedAlreadyVerified(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	swap := createVerifiedSwap(t, service, "0xabc", "0xhash1", "ETH", "USDC", "1.00")

	_, err := service.MarkSwapVerified(context.Background(), swap.Id, 2000, time.Now().UTC(), 100)
	if !errors.Is(err, store.ErrSwapAlreadyVerified) {
		t.Errorf("Expected ErrSwapAlreadyVerified, got %v", err)
	}
}

func TestCountReversedSwapsSince(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	// Two verified USDC -> ETH swaps are reversals of a prospective
	// ETH -> USDC trade.
	createVerifiedSwap(t, service, "0xabc", "0xrev1", "USDC", "ETH", "1.00")
	createVerifiedSwap(t, service, "0xabc", "0xrev2", "USDC", "ETH", "1.00")
	createVerifiedSwap(t, service, "0xabc", "0xsame", "ETH", "USDC", "1.00")

	since := time.Now().UTC().Add(-time.Hour)
	count, err := service.CountReversedSwapsSince(ctx, "0xabc", "ETH", "USDC", 1, since)
	if err != nil {
		t.Fatalf("Failed to count reversed swaps: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 reversed swaps, got %d", count)
	}

	// Outside the window nothing matches.
	count, err = service.CountReversedSwapsSince(ctx, "0xabc", "ETH", "USDC", 1, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to count reversed swaps: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 reversed swaps outside window, got %d", count)
	}
}

func TestFlagSwapWashTrade(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	// An unverified, unflagged record: the shape a re-verification attempt
	// finds when the first attempt stored the swap without resolving it.
	now := time.Now().UTC()
	_, err := service.db.ExecContext(ctx, queryInsertSwap,
		"swap-1", "0xabc", "0xhash1", int64(1), "ETH", "1", "USDC", "1000",
		"100", "1.00", int64(0), 0, 0, int64(0), nil, nil, "{}", now)
	if err != nil {
		t.Fatalf("Failed to seed unverified swap: %v", err)
	}

	swap, err := service.FlagSwapWashTrade(ctx, "swap-1", 1234, now)
	if err != nil {
		t.Fatalf("Failed to flag wash trade: %v", err)
	}
	if !swap.IsWashTrade {
		t.Error("Expected swap flagged as wash trade")
	}
	if swap.IsVerified {
		t.Error("Flagged swap must not count as verified")
	}
	if swap.PointsEarned != 0 {
		t.Errorf("Expected 0 points on flagged swap, got %d", swap.PointsEarned)
	}

	// Flagging again, or flagging a verified record, hits the status guard.
	if _, err := service.FlagSwapWashTrade(ctx, "swap-1", 1234, now); !errors.Is(err, store.ErrSwapAlreadyVerified) {
		t.Errorf("Expected ErrSwapAlreadyVerified on second flag, got %v", err)
	}
	verified := createVerifiedSwap(t, service, "0xabc", "0xhash2", "ETH", "USDC", "1.00")
	if _, err := service.FlagSwapWashTrade(ctx, verified.Id, 1234, now); !errors.Is(err, store.ErrSwapAlreadyVerified) {
		t.Errorf("Expected ErrSwapAlreadyVerified on verified record, got %v", err)
	}
}

func TestTouchSwapStreak(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := service.TouchSwapStreak(ctx, "0xabc", now); err != nil {
		t.Fatalf("Failed to touch streak: %v", err)
	}
	// Second swap on the same day leaves the streak unchanged.
	if err := service.TouchSwapStreak(ctx, "0xabc", now); err != nil {
		t.Fatalf("Failed to touch streak: %v", err)
	}

	user, err := service.GetUser(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.StreakDays != 1 {
		t.Errorf("Expected streak of 1, got %d", user.StreakDays)
	}
	if user.TotalSwaps != 2 {
		t.Errorf("Expected 2 total swaps, got %d", user.TotalSwaps)
	}
}

func TestTouchSwapStreakTransitions(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	day1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := service.TouchSwapStreak(ctx, "0xabc", day1); err != nil {
		t.Fatalf("Failed to touch streak: %v", err)
	}
	// The next day extends the streak.
	if err := service.TouchSwapStreak(ctx, "0xabc", day1.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("Failed to touch streak: %v", err)
	}
	user, err := service.GetUser(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.StreakDays != 2 {
		t.Errorf("Expected streak of 2 after consecutive days, got %d", user.StreakDays)
	}

	// A gap resets to 1.
	if err := service.TouchSwapStreak(ctx, "0xabc", day1.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("Failed to touch streak: %v", err)
	}
	user, err = service.GetUser(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.StreakDays != 1 {
		t.Errorf("Expected streak reset to 1 after gap, got %d", user.StreakDays)
	}
	if user.TotalSwaps != 3 {
		t.Errorf("Expected 3 total swaps, got %d", user.TotalSwaps)
	}
}

func TestTouchSwapStreakConcurrent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	// The streak is read-modify-written inside one UPDATE, so concurrent
	// swaps must not lose increments.
	now := time.Now().UTC()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := service.TouchSwapStreak(ctx, "0xabc", now); err != nil {
				t.Errorf("Failed to touch streak: %v", err)
			}
		}()
	}
	wg.Wait()

	user, err := service.GetUser(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user.TotalSwaps != 10 {
		t.Errorf("Expected 10 total swaps, got %d", user.TotalSwaps)
	}
	if user.StreakDays != 1 {
		t.Errorf("Expected streak of 1, got %d", user.StreakDays)
	}
}
