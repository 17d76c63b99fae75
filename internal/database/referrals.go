package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanCode(row rowScanner) (*models.ReferralCode, error) {
	var c models.ReferralCode
	var totalStr, claimableStr string
	err := row.Scan(&c.Id, &c.Code, &c.Wallet, &c.TotalReferees, &totalStr, &claimableStr, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrInvalidReferralCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan referral code: %w", err)
	}
	if c.TotalEarningsUsd, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_earnings_usd %q: %w", totalStr, err)
	}
	if c.ClaimableEarningsUsd, err = decimal.NewFromString(claimableStr); err != nil {
		return nil, fmt.Errorf("failed to parse claimable_earnings_usd %q: %w", claimableStr, err)
	}
	return &c, nil
}

func (s *Service) GetReferralCodeByWallet(ctx context.Context, wallet string) (*models.ReferralCode, error) {
	return scanCode(s.db.QueryRowContext(ctx, queryGetCodeByWallet, wallet))
}

func (s *Service) GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	return scanCode(s.db.QueryRowContext(ctx, queryGetCodeByCode, strings.ToUpper(code)))
}

// CreateReferralCode inserts the generated code for a wallet. The unique
// constraints on (code) and (wallet) surface collisions to the caller, which
// retries generation (bounded) on code collisions.
func (s *Service) CreateReferralCode(ctx context.Context, wallet, code string) (*models.ReferralCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUser(ctx, tx, wallet); err != nil {
		return nil, err
	}

	codeId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertCode, codeId, strings.ToUpper(code), wallet, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "referral_codes.wallet") {
			// Another request created the wallet's code first; return it.
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, commitErr
			}
			return s.GetReferralCodeByWallet(ctx, wallet)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: code %s collides", store.ErrCodeGenerationExhausted, code)
		}
		return nil, fmt.Errorf("failed to insert referral code: %w", err)
	}

	if _, err := tx.ExecContext(ctx, querySetUserOwnCode, codeId, wallet); err != nil {
		return nil, fmt.Errorf("failed to link code to user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit referral code: %w", err)
	}

	zap.L().Info("Referral code created",
		zap.String("wallet", wallet),
		zap.String("code", strings.ToUpper(code)))

	return s.GetReferralCodeByWallet(ctx, wallet)
}

// UseReferralCode links a wallet to a referrer's code. Fails
// ErrInvalidReferralCode for unknown/inactive codes, ErrSelfReferral when
// the code belongs to the wallet, ErrAlreadyReferred when a referrer is set.
func (s *Service) UseReferralCode(ctx context.Context, wallet, code string) (*models.ReferralCode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rc, err := scanCode(tx.QueryRowContext(ctx, queryGetCodeByCode, strings.ToUpper(code)))
	if err != nil {
		return nil, err
	}
	if !rc.Active {
		return nil, store.ErrInvalidReferralCode
	}
	if rc.Wallet == wallet {
		return nil, store.ErrSelfReferral
	}

	if err := ensureUser(ctx, tx, wallet); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, querySetUserReferrer, rc.Id, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to set referrer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, store.ErrAlreadyReferred
	}

	if _, err := tx.ExecContext(ctx, queryIncrementReferees, rc.Id); err != nil {
		return nil, fmt.Errorf("failed to increment referee count: %w", err)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      wallet,
		EventType:   models.EventReferralUsed,
		ReferenceId: rc.Id,
		Description: fmt.Sprintf("Joined via referral code %s", rc.Code),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit referral use: %w", err)
	}

	zap.L().Info("Referral code used",
		zap.String("wallet", wallet),
		zap.String("code", rc.Code),
		zap.String("referrer", rc.Wallet))

	return rc, nil
}

// RecordReferralEarning creates the per-swap earning for the referee's
// referrer. Status is CLAIMABLE when the referee already met the milestone,
// LOCKED otherwise. When this swap is exactly the milestone-reaching one,
// all previously LOCKED earnings for the (referrer, referee) pair unlock in
// the same transaction.
//
// Returns (nil, nil) when the referee has no referrer or MaxEarningUsd
// leaves no room under the daily cap.
func (s *Service) RecordReferralEarning(ctx context.Context, params store.ReferralEarningParams) (*models.ReferralEarning, error) {
	user, err := s.GetUser(ctx, params.RefereeWallet)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if user.ReferredByCodeId == "" {
		return nil, nil
	}

	if !params.MaxEarningUsd.IsPositive() {
		zap.L().Info("Referral earning dropped: daily cap already met",
			zap.String("referee", params.RefereeWallet))
		return nil, nil
	}
	earning := params.FeeUsd.Mul(params.Percentage).Round(2)
	if earning.GreaterThan(params.MaxEarningUsd) {
		earning = params.MaxEarningUsd
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rc, err := scanCode(tx.QueryRowContext(ctx, queryGetCodeById, user.ReferredByCodeId))
	if err != nil {
		return nil, err
	}

	// The count must go through the transaction: it decides LOCKED vs
	// CLAIMABLE and the bulk unlock, and querying the pool here would
	// deadlock a single-connection pool while the tx holds it.
	var swapCount int64
	if err := tx.QueryRowContext(ctx, queryCountVerifiedSwaps, params.RefereeWallet).Scan(&swapCount); err != nil {
		return nil, fmt.Errorf("failed to count verified swaps: %w", err)
	}

	status := models.StatusLocked
	if swapCount >= params.Milestone {
		status = models.StatusClaimable
	}

	earningId := uuid.New().String()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, queryInsertEarning,
		earningId, rc.Wallet, params.RefereeWallet, rc.Id, params.SwapId,
		params.FeeUsd.String(), params.Percentage.String(), earning.String(),
		params.ChainId, status, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert referral earning: %w", err)
	}

	newTotal := rc.TotalEarningsUsd.Add(earning)
	newClaimable := rc.ClaimableEarningsUsd
	if status == models.StatusClaimable {
		newClaimable = newClaimable.Add(earning)
	}

	// Exactly the milestone-reaching swap: bulk-unlock the pair's LOCKED
	// earnings and fold them into the claimable total.
	unlocked := decimal.Zero
	if swapCount == params.Milestone {
		unlocked, err = sumDecimalColumn(ctx, tx, querySumLockedForPair, rc.Wallet, params.RefereeWallet)
		if err != nil {
			return nil, fmt.Errorf("failed to sum locked earnings: %w", err)
		}
		if unlocked.IsPositive() {
			if _, err := tx.ExecContext(ctx, queryUnlockPairEarnings, rc.Wallet, params.RefereeWallet); err != nil {
				return nil, fmt.Errorf("failed to unlock earnings: %w", err)
			}
			newClaimable = newClaimable.Add(unlocked)
		}
	}

	if _, err := tx.ExecContext(ctx, queryUpdateCodeTotals, newTotal.String(), newClaimable.String(), rc.Id); err != nil {
		return nil, fmt.Errorf("failed to update code totals: %w", err)
	}

	if err := addUserTotal(ctx, tx, queryAddUserReferralTotal, rc.Wallet,
		`SELECT total_referral_usd FROM users WHERE wallet = ?`, earning); err != nil {
		return nil, err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      rc.Wallet,
		EventType:   models.EventReferralEarning,
		AmountUsd:   earning,
		ReferenceId: earningId,
		Description: fmt.Sprintf("%s referral earning from referee %s swap", status, params.RefereeWallet),
	}); err != nil {
		return nil, err
	}

	if unlocked.IsPositive() {
		if err := appendEvent(ctx, tx, eventParams{
			Wallet:      rc.Wallet,
			EventType:   models.EventReferralUnlocked,
			AmountUsd:   unlocked,
			ReferenceId: params.RefereeWallet,
			Description: fmt.Sprintf("Unlocked $%s of earnings: referee %s reached milestone", unlocked.String(), params.RefereeWallet),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit referral earning: %w", err)
	}

	zap.L().Info("Referral earning recorded",
		zap.String("earning_id", earningId),
		zap.String("referrer", rc.Wallet),
		zap.String("referee", params.RefereeWallet),
		zap.String("amount_usd", earning.String()),
		zap.String("status", status),
		zap.String("unlocked_usd", unlocked.String()))

	return &models.ReferralEarning{
		Id:               earningId,
		ReferrerWallet:   rc.Wallet,
		RefereeWallet:    params.RefereeWallet,
		CodeId:           rc.Id,
		SwapId:           params.SwapId,
		FeeUsd:           params.FeeUsd,
		Percentage:       params.Percentage,
		EarningAmountUsd: earning,
		ChainId:          params.ChainId,
		Status:           status,
		CreatedAt:        now,
	}, nil
}

// SumDailyReferral sums the referrer's CLAIMABLE/CLAIMED/PAID earnings for
// the UTC calendar day. The referee wallet is resolved to its referrer
// first; wallets without a referrer sum to zero.
func (s *Service) SumDailyReferral(ctx context.Context, refereeWallet string, day time.Time) (decimal.Decimal, error) {
	user, err := s.GetUser(ctx, refereeWallet)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if user.ReferredByCodeId == "" {
		return decimal.Zero, nil
	}
	rc, err := scanCode(s.db.QueryRowContext(ctx, queryGetCodeById, user.ReferredByCodeId))
	if err != nil {
		return decimal.Zero, err
	}

	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	sum, err := sumDecimalColumn(ctx, s.db, querySumDailyReferral, rc.Wallet, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum daily referral: %w", err)
	}
	return sum, nil
}

func scanEarning(row rowScanner) (*models.ReferralEarning, error) {
	var e models.ReferralEarning
	var feeStr, pctStr, amountStr string
	err := row.Scan(&e.Id, &e.ReferrerWallet, &e.RefereeWallet, &e.CodeId, &e.SwapId,
		&feeStr, &pctStr, &amountStr, &e.ChainId, &e.Status, &e.PayoutId, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrEarningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan referral earning: %w", err)
	}
	if e.FeeUsd, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse fee_usd %q: %w", feeStr, err)
	}
	if e.Percentage, err = decimal.NewFromString(pctStr); err != nil {
		return nil, fmt.Errorf("failed to parse percentage %q: %w", pctStr, err)
	}
	if e.EarningAmountUsd, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse earning_amount_usd %q: %w", amountStr, err)
	}
	return &e, nil
}

func (s *Service) GetReferralStats(ctx context.Context, wallet string) (*models.ReferralStats, error) {
	rc, err := s.GetReferralCodeByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	stats := &models.ReferralStats{
		Code:                 rc.Code,
		Active:               rc.Active,
		TotalReferees:        rc.TotalReferees,
		TotalEarningsUsd:     rc.TotalEarningsUsd,
		ClaimableEarningsUsd: rc.ClaimableEarningsUsd,
	}

	rows, err := s.db.QueryContext(ctx, queryListEarnings, wallet, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	locked := decimal.Zero
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		if e.Status == models.StatusLocked {
			locked = locked.Add(e.EarningAmountUsd)
		}
		stats.Earnings = append(stats.Earnings, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earnings: %w", err)
	}
	stats.LockedEarningsUsd = locked

	return stats, nil
}
