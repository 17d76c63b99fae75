package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

// GetUser returns the aggregate row for a wallet, or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, wallet string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, queryGetUser, wallet))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var cashbackStr, referralStr string
	var lastBox sql.NullTime
	err := row.Scan(&u.Wallet, &u.PointsBalance, &u.PointsVersion, &u.TotalPointsEarned,
		&u.TotalSwaps, &cashbackStr, &referralStr, &u.StreakDays, &u.LastSwapDate,
		&u.SwapsSinceLastCashback, &u.ReferralCodeId, &u.ReferredByCodeId,
		&lastBox, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.TotalCashbackUsd, err = decimal.NewFromString(cashbackStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_cashback_usd %q: %w", cashbackStr, err)
	}
	if u.TotalReferralUsd, err = decimal.NewFromString(referralStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_referral_usd %q: %w", referralStr, err)
	}
	if lastBox.Valid {
		t := lastBox.Time
		u.LastBoxOpenedAt = &t
	}
	return &u, nil
}

// ensureUser inserts the wallet row if missing. Safe to call inside or
// outside a transaction via the execer.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureUser(ctx context.Context, db execer, wallet string) error {
	if _, err := db.ExecContext(ctx, queryInsertUser, wallet); err != nil {
		return fmt.Errorf("failed to ensure user %s: %w", wallet, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// sumDecimalColumn sums a single decimal TEXT column without a float
// round-trip. USD amounts stay in decimal strings end to end.
func sumDecimalColumn(ctx context.Context, db queryer, query string, args ...any) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", raw, err)
		}
		sum = sum.Add(v)
	}
	return sum, rows.Err()
}

// TouchSwapStreak bumps total_swaps and extends or resets the daily streak.
// A swap on the day after last_swap_date extends the streak; a gap resets it
// to 1; a second swap on the same day leaves it unchanged. The streak is
// computed inside the UPDATE so concurrent swaps cannot act on a stale read.
func (s *Service) TouchSwapStreak(ctx context.Context, wallet string, when time.Time) error {
	if err := ensureUser(ctx, s.db, wallet); err != nil {
		return err
	}

	day := when.UTC().Format("2006-01-02")
	yesterday := when.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if _, err := s.db.ExecContext(ctx, queryUpdateStreak, day, yesterday, day, wallet); err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}
