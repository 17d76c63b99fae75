package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanPayout(row rowScanner) (*models.Payout, error) {
	var p models.Payout
	var amountStr string
	var approvedAt, paidAt sql.NullTime
	err := row.Scan(&p.Id, &p.Wallet, &p.PayoutType, &amountStr, &p.ChainId, &p.TokenAddress,
		&p.Status, &p.TxHash, &p.IdempotencyKey, &p.ReferenceId, &p.FailureReason,
		&approvedAt, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout: %w", err)
	}
	if p.AmountUsd, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse payout amount %q: %w", amountStr, err)
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

func insertPayoutTx(ctx context.Context, tx *sql.Tx, wallet, payoutType string, amount decimal.Decimal, chainId int64, referenceId string) (string, error) {
	payoutId := uuid.New().String()
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, queryInsertPayout,
		payoutId, wallet, payoutType, amount.String(), chainId, "",
		models.PayoutPending, referenceId, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert payout: %w", err)
	}
	return payoutId, nil
}

// ClaimCashback flips a CLAIMABLE batch to CLAIMED and creates the PENDING
// payout in the same transaction - the source flip and the payout insert are
// one atomic pairing.
func (s *Service) ClaimCashback(ctx context.Context, wallet, batchId string) (*models.Payout, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	batch, err := scanBatch(tx.QueryRowContext(ctx, queryGetBatch, batchId))
	if err != nil {
		return nil, err
	}
	if batch.Wallet != wallet {
		return nil, store.ErrBatchNotFound
	}
	if batch.Status != models.StatusClaimable {
		return nil, fmt.Errorf("%w: batch %s is %s", store.ErrNotClaimable, batchId, batch.Status)
	}

	payoutId, err := insertPayoutTx(ctx, tx, wallet, models.PayoutCashback, batch.CashbackAmountUsd, batch.ChainId, batchId)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, queryClaimBatch, payoutId, time.Now().UTC(), batchId)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("batch %s changed under claim - %w", batchId, store.ErrConcurrentModification)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      wallet,
		EventType:   models.EventRewardClaimed,
		AmountUsd:   batch.CashbackAmountUsd,
		ReferenceId: payoutId,
		Description: fmt.Sprintf("Cashback batch %s claimed", batchId),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cashback claim: %w", err)
	}

	zap.L().Info("Cashback claimed",
		zap.String("wallet", wallet),
		zap.String("batch_id", batchId),
		zap.String("payout_id", payoutId),
		zap.String("amount_usd", batch.CashbackAmountUsd.String()))

	return s.GetPayout(ctx, payoutId)
}

// ClaimReferral claims every CLAIMABLE earning for the wallet on one chain.
// A payout settles a single chain id; earnings on other chains stay
// untouched for a future claim.
func (s *Service) ClaimReferral(ctx context.Context, wallet string, chainId int64) (*models.Payout, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryListClaimableEarnings, wallet, chainId)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable earnings: %w", err)
	}

	total := decimal.Zero
	count := 0
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		total = total.Add(e.EarningAmountUsd)
		count++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating earnings: %w", err)
	}
	rows.Close()

	if count == 0 {
		return nil, fmt.Errorf("%w: no claimable referral earnings on chain %d", store.ErrNothingToClaim, chainId)
	}

	payoutId, err := insertPayoutTx(ctx, tx, wallet, models.PayoutReferral, total, chainId, fmt.Sprintf("%d earnings", count))
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, queryClaimEarnings, payoutId, wallet, chainId); err != nil {
		return nil, fmt.Errorf("failed to claim earnings: %w", err)
	}

	// Shrink the code's claimable running total.
	rc, err := scanCode(tx.QueryRowContext(ctx, queryGetCodeByWallet, wallet))
	if err != nil {
		return nil, err
	}
	newClaimable := rc.ClaimableEarningsUsd.Sub(total)
	if newClaimable.IsNegative() {
		newClaimable = decimal.Zero
	}
	if _, err := tx.ExecContext(ctx, queryUpdateCodeTotals, rc.TotalEarningsUsd.String(), newClaimable.String(), rc.Id); err != nil {
		return nil, fmt.Errorf("failed to update code totals: %w", err)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      wallet,
		EventType:   models.EventRewardClaimed,
		AmountUsd:   total,
		ReferenceId: payoutId,
		Description: fmt.Sprintf("%d referral earnings claimed on chain %d", count, chainId),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit referral claim: %w", err)
	}

	zap.L().Info("Referral earnings claimed",
		zap.String("wallet", wallet),
		zap.Int64("chain_id", chainId),
		zap.Int("earnings", count),
		zap.String("amount_usd", total.String()))

	return s.GetPayout(ctx, payoutId)
}

// ClaimMysteryBox creates the payout for an OPENED box that has no payout
// yet. The box stays OPENED until the payout completes, then flips to PAID.
func (s *Service) ClaimMysteryBox(ctx context.Context, wallet, boxId string) (*models.Payout, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	box, err := scanBox(tx.QueryRowContext(ctx, queryGetBox, boxId))
	if err != nil {
		return nil, err
	}
	if box.Wallet != wallet {
		return nil, store.ErrBoxNotFound
	}
	if box.Status != models.StatusOpened || box.PayoutId != "" {
		return nil, fmt.Errorf("%w: box %s already claimed", store.ErrNotClaimable, boxId)
	}

	payoutId, err := insertPayoutTx(ctx, tx, wallet, models.PayoutMysteryBox, box.PayoutUsd, box.ChainId, boxId)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, querySetBoxPayout, payoutId, boxId)
	if err != nil {
		return nil, fmt.Errorf("failed to link box payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("box %s changed under claim - %w", boxId, store.ErrConcurrentModification)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      wallet,
		EventType:   models.EventRewardClaimed,
		AmountUsd:   box.PayoutUsd,
		ReferenceId: payoutId,
		Description: fmt.Sprintf("Mystery box %s claimed", boxId),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit box claim: %w", err)
	}

	return s.GetPayout(ctx, payoutId)
}

func (s *Service) GetPayout(ctx context.Context, payoutId string) (*models.Payout, error) {
	return scanPayout(s.db.QueryRowContext(ctx, queryGetPayout, payoutId))
}

// ListPayouts returns payouts filtered by status; empty status lists all.
func (s *Service) ListPayouts(ctx context.Context, status string, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, queryListAllPayouts, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, queryListPayoutsByStatus, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}

// MarkPayoutProcessing flips PENDING -> PROCESSING. The conditional UPDATE
// is the double-spend guard: zero rows affected means the payout was not
// PENDING, so a concurrent Execute already took it.
func (s *Service) MarkPayoutProcessing(ctx context.Context, payoutId, idempotencyKey string) error {
	result, err := s.db.ExecContext(ctx, queryMarkPayoutProcessing, idempotencyKey, payoutId)
	if err != nil {
		return fmt.Errorf("failed to mark payout processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetPayout(ctx, payoutId); err != nil {
			return err
		}
		return store.ErrPayoutNotPending
	}
	return nil
}

// CompletePayout flips PROCESSING -> COMPLETED and settles the source
// record (batch/earnings/box -> PAID) in the same transaction.
func (s *Service) CompletePayout(ctx context.Context, payoutId, txHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payout, err := scanPayout(tx.QueryRowContext(ctx, queryGetPayout, payoutId))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryCompletePayout, txHash, now, payoutId)
	if err != nil {
		return fmt.Errorf("failed to complete payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrPayoutNotProcessing
	}

	if err := settleSource(ctx, tx, payout, now); err != nil {
		return err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      payout.Wallet,
		EventType:   models.EventPayoutCompleted,
		AmountUsd:   payout.AmountUsd,
		ReferenceId: payoutId,
		Description: fmt.Sprintf("%s payout of $%s settled in tx %s", payout.PayoutType, payout.AmountUsd.String(), txHash),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout completion: %w", err)
	}

	zap.L().Info("Payout completed",
		zap.String("payout_id", payoutId),
		zap.String("wallet", payout.Wallet),
		zap.String("tx_hash", txHash),
		zap.String("amount_usd", payout.AmountUsd.String()))
	return nil
}

func settleSource(ctx context.Context, tx *sql.Tx, payout *models.Payout, now time.Time) error {
	var err error
	switch payout.PayoutType {
	case models.PayoutCashback:
		_, err = tx.ExecContext(ctx, queryMarkBatchPaid, now, payout.Id)
	case models.PayoutReferral:
		_, err = tx.ExecContext(ctx, queryMarkEarningsPaid, payout.Id)
	case models.PayoutMysteryBox:
		_, err = tx.ExecContext(ctx, queryMarkBoxPaid, payout.Id)
	default:
		return fmt.Errorf("unknown payout type %q", payout.PayoutType)
	}
	if err != nil {
		return fmt.Errorf("failed to settle payout source: %w", err)
	}
	return nil
}

func releaseSource(ctx context.Context, tx *sql.Tx, payout *models.Payout) error {
	var err error
	switch payout.PayoutType {
	case models.PayoutCashback:
		_, err = tx.ExecContext(ctx, queryReleaseBatch, payout.Id)
	case models.PayoutReferral:
		_, err = tx.ExecContext(ctx, queryReleaseEarnings, payout.Id)
	case models.PayoutMysteryBox:
		_, err = tx.ExecContext(ctx, queryReleaseBox, payout.Id)
	default:
		return fmt.Errorf("unknown payout type %q", payout.PayoutType)
	}
	if err != nil {
		return fmt.Errorf("failed to release payout source: %w", err)
	}
	return nil
}

// FailPayout flips PENDING/PROCESSING -> FAILED with the reason and
// releases the source record back to CLAIMABLE so a fresh claim can retry.
// FAILED is terminal for this payout record.
func (s *Service) FailPayout(ctx context.Context, payoutId, reason string) error {
	return s.failPayout(ctx, payoutId, reason, queryFailPayout)
}

// RejectPayout is the admin path: PENDING only, chain untouched.
func (s *Service) RejectPayout(ctx context.Context, payoutId, reason string) error {
	return s.failPayout(ctx, payoutId, reason, queryRejectPayout)
}

func (s *Service) failPayout(ctx context.Context, payoutId, reason, query string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payout, err := scanPayout(tx.QueryRowContext(ctx, queryGetPayout, payoutId))
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, query, reason, payoutId)
	if err != nil {
		return fmt.Errorf("failed to fail payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrPayoutNotPending
	}

	if err := releaseSource(ctx, tx, payout); err != nil {
		return err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      payout.Wallet,
		EventType:   models.EventPayoutFailed,
		AmountUsd:   payout.AmountUsd,
		ReferenceId: payoutId,
		Description: fmt.Sprintf("%s payout failed: %s", payout.PayoutType, reason),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payout failure: %w", err)
	}

	zap.L().Warn("Payout failed",
		zap.String("payout_id", payoutId),
		zap.String("wallet", payout.Wallet),
		zap.String("reason", reason))
	return nil
}

// ApprovePayout stamps admin approval on a PENDING payout.
func (s *Service) ApprovePayout(ctx context.Context, payoutId string) error {
	result, err := s.db.ExecContext(ctx, queryApprovePayout, time.Now().UTC(), payoutId)
	if err != nil {
		return fmt.Errorf("failed to approve payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetPayout(ctx, payoutId); err != nil {
			return err
		}
		return store.ErrPayoutNotPending
	}
	return nil
}
