package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordSwapFee inserts the swap's fee record, bumps the wallet's cashback
// counter, and when the counter reaches the interval consumes the newest
// unconsumed fees into a CLAIMABLE batch - all in one sql transaction. The
// fee query, not the counter, is authoritative: if fewer fees than the
// interval exist the trigger aborts without resetting the counter.
//
// Returns the created batch, or nil when no batch was triggered. The caller
// applies the daily cap afterward; the aggregator stays free of
// cross-cutting policy.
func (s *Service) RecordSwapFee(ctx context.Context, params store.SwapFeeParams) (*models.CashbackBatch, error) {
	if params.Interval <= 0 {
		params.Interval = 3
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUser(ctx, tx, params.Wallet); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	feeId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertFee,
		feeId, params.Wallet, params.SwapId, params.FeeUsd.String(), params.ChainId, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert fee: %w", err)
	}

	var counter int64
	err = tx.QueryRowContext(ctx, `SELECT swaps_since_last_cashback FROM users WHERE wallet = ?`, params.Wallet).Scan(&counter)
	if err != nil {
		return nil, fmt.Errorf("failed to read cashback counter: %w", err)
	}
	counter++

	if counter < int64(params.Interval) {
		if _, err := tx.ExecContext(ctx, queryUpdateCashbackCounter, counter, params.Wallet); err != nil {
			return nil, fmt.Errorf("failed to update cashback counter: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit fee: %w", err)
		}
		return nil, nil
	}

	// Counter reached the interval: fetch the newest unconsumed fees.
	fees, err := queryFeesTx(ctx, tx, params.Wallet, params.Interval)
	if err != nil {
		return nil, err
	}
	if len(fees) < params.Interval {
		// Counter and fee table diverged; keep the counter, skip the trigger.
		zap.L().Warn("Cashback counter reached interval but unconsumed fees are short",
			zap.String("wallet", params.Wallet),
			zap.Int64("counter", counter),
			zap.Int("fees_found", len(fees)))
		if _, err := tx.ExecContext(ctx, queryUpdateCashbackCounter, counter, params.Wallet); err != nil {
			return nil, fmt.Errorf("failed to update cashback counter: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit fee: %w", err)
		}
		return nil, nil
	}

	totalFees := decimal.Zero
	for _, f := range fees {
		totalFees = totalFees.Add(f.FeeUsd)
	}
	cashback := totalFees.Mul(params.Percentage).Round(2)

	batchId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertBatch,
		batchId, params.Wallet, totalFees.String(), params.Percentage.String(),
		cashback.String(), params.ChainId, models.StatusClaimable, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert cashback batch: %w", err)
	}

	for _, f := range fees {
		result, err := tx.ExecContext(ctx, queryConsumeFee, batchId, f.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to consume fee %s: %w", f.Id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return nil, fmt.Errorf("fee %s already consumed - %w", f.Id, store.ErrConcurrentModification)
		}
	}

	if _, err := tx.ExecContext(ctx, queryUpdateCashbackCounter, 0, params.Wallet); err != nil {
		return nil, fmt.Errorf("failed to reset cashback counter: %w", err)
	}

	if err := addUserTotal(ctx, tx, queryAddUserCashbackTotal, params.Wallet, `SELECT total_cashback_usd FROM users WHERE wallet = ?`, cashback); err != nil {
		return nil, err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      params.Wallet,
		EventType:   models.EventCashbackBatch,
		AmountUsd:   cashback,
		ReferenceId: batchId,
		Description: fmt.Sprintf("Cashback batch from %d fees totaling $%s at %s%%", len(fees), totalFees.String(), params.Percentage.Mul(decimal.NewFromInt(100)).String()),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cashback batch: %w", err)
	}

	zap.L().Info("Cashback batch created",
		zap.String("batch_id", batchId),
		zap.String("wallet", params.Wallet),
		zap.String("total_fees_usd", totalFees.String()),
		zap.String("cashback_usd", cashback.String()))

	return s.GetCashbackBatch(ctx, batchId)
}

func queryFeesTx(ctx context.Context, tx *sql.Tx, wallet string, limit int) ([]models.Fee, error) {
	rows, err := tx.QueryContext(ctx, queryGetUnconsumedFees, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed fees: %w", err)
	}
	defer rows.Close()

	var fees []models.Fee
	for rows.Next() {
		var f models.Fee
		var feeStr string
		if err := rows.Scan(&f.Id, &f.Wallet, &f.SwapId, &feeStr, &f.ChainId,
			&f.UsedForCashback, &f.BatchId, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee: %w", err)
		}
		if f.FeeUsd, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("failed to parse fee_usd %q: %w", feeStr, err)
		}
		fees = append(fees, f)
	}
	return fees, rows.Err()
}

// addUserTotal adds delta to a decimal total column read-modify-write inside
// the enclosing transaction.
func addUserTotal(ctx context.Context, tx *sql.Tx, updateQuery, wallet, selectQuery string, delta decimal.Decimal) error {
	var currentStr string
	if err := tx.QueryRowContext(ctx, selectQuery, wallet).Scan(&currentStr); err != nil {
		return fmt.Errorf("failed to read user total: %w", err)
	}
	current, err := decimal.NewFromString(currentStr)
	if err != nil {
		return fmt.Errorf("failed to parse user total %q: %w", currentStr, err)
	}
	if _, err := tx.ExecContext(ctx, updateQuery, current.Add(delta).String(), wallet); err != nil {
		return fmt.Errorf("failed to update user total: %w", err)
	}
	return nil
}

func scanBatch(row rowScanner) (*models.CashbackBatch, error) {
	var b models.CashbackBatch
	var totalStr, pctStr, amountStr string
	var claimedAt, paidAt sql.NullTime
	err := row.Scan(&b.Id, &b.Wallet, &totalStr, &pctStr, &amountStr,
		&b.ChainId, &b.Status, &b.PayoutId, &claimedAt, &paidAt, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cashback batch: %w", err)
	}
	if b.TotalFeesUsd, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_fees_usd %q: %w", totalStr, err)
	}
	if b.CashbackPercentage, err = decimal.NewFromString(pctStr); err != nil {
		return nil, fmt.Errorf("failed to parse cashback_percentage %q: %w", pctStr, err)
	}
	if b.CashbackAmountUsd, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse cashback_amount_usd %q: %w", amountStr, err)
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		b.ClaimedAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	return &b, nil
}

func (s *Service) GetCashbackBatch(ctx context.Context, batchId string) (*models.CashbackBatch, error) {
	return scanBatch(s.db.QueryRowContext(ctx, queryGetBatch, batchId))
}

// ReduceCashbackBatch shrinks a CLAIMABLE batch to fit the daily cap.
func (s *Service) ReduceCashbackBatch(ctx context.Context, batchId string, newAmount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	batch, err := scanBatch(tx.QueryRowContext(ctx, queryGetBatch, batchId))
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, queryReduceBatch, newAmount.String(), batchId)
	if err != nil {
		return fmt.Errorf("failed to reduce batch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotClaimable
	}

	if err := addUserTotal(ctx, tx, queryAddUserCashbackTotal, batch.Wallet,
		`SELECT total_cashback_usd FROM users WHERE wallet = ?`, newAmount.Sub(batch.CashbackAmountUsd)); err != nil {
		return err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      batch.Wallet,
		EventType:   models.EventCashbackCapped,
		AmountUsd:   newAmount,
		ReferenceId: batchId,
		Description: fmt.Sprintf("Cashback reduced from $%s to $%s by daily cap", batch.CashbackAmountUsd.String(), newAmount.String()),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch reduction: %w", err)
	}
	return nil
}

// DiscardCashbackBatch drops a batch whose amount is fully over the daily
// cap. The consumed fees stay consumed (they triggered a batch once); only
// their batch link is cleared.
func (s *Service) DiscardCashbackBatch(ctx context.Context, batchId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	batch, err := scanBatch(tx.QueryRowContext(ctx, queryGetBatch, batchId))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, queryClearFeeBatch, batchId); err != nil {
		return fmt.Errorf("failed to clear fee batch links: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryDeleteBatch, batchId)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotClaimable
	}

	if err := addUserTotal(ctx, tx, queryAddUserCashbackTotal, batch.Wallet,
		`SELECT total_cashback_usd FROM users WHERE wallet = ?`, batch.CashbackAmountUsd.Neg()); err != nil {
		return err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      batch.Wallet,
		EventType:   models.EventCashbackCapped,
		AmountUsd:   decimal.Zero,
		ReferenceId: batchId,
		Description: fmt.Sprintf("Cashback batch of $%s discarded: daily cap already met", batch.CashbackAmountUsd.String()),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch discard: %w", err)
	}

	zap.L().Info("Cashback batch discarded by daily cap",
		zap.String("batch_id", batchId),
		zap.String("wallet", batch.Wallet),
		zap.String("amount_usd", batch.CashbackAmountUsd.String()))
	return nil
}

// SumDailyCashback sums CLAIMABLE/CLAIMED/PAID batch amounts for the UTC
// calendar day. excludeBatchId keeps a just-created batch out of its own cap
// check.
func (s *Service) SumDailyCashback(ctx context.Context, wallet string, day time.Time, excludeBatchId string) (decimal.Decimal, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	sum, err := sumDecimalColumn(ctx, s.db, querySumDailyCashback, wallet, start, end, excludeBatchId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum daily cashback: %w", err)
	}
	return sum, nil
}

func (s *Service) GetCashbackProgress(ctx context.Context, wallet string) (*models.CashbackProgress, error) {
	progress := &models.CashbackProgress{Wallet: wallet}

	user, err := s.GetUser(ctx, wallet)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}
	if user != nil {
		progress.SwapsSinceLast = user.SwapsSinceLastCashback
	}

	pendingFees, err := sumDecimalColumn(ctx, s.db, querySumUnconsumedFees, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to sum unconsumed fees: %w", err)
	}
	progress.PendingFeesUsd = pendingFees

	rows, err := s.db.QueryContext(ctx, queryListClaimableBatches, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable batches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		progress.ClaimableBatches = append(progress.ClaimableBatches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return progress, nil
}
