package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreditPoints appends an earned entry and updates the cached balance as one
// atomic unit. Modeled on the subledger transaction flow: read balance with
// version, insert ledger row with balance_after, conditional balance update.
func (s *Service) CreditPoints(ctx context.Context, params store.PointsParams) (*models.PointsLedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", params.Amount)
	}
	return s.movePoints(ctx, params, params.Amount)
}

// DebitPoints appends a spent entry. Fails ErrInsufficientPoints if the
// wallet's balance cannot cover the amount.
func (s *Service) DebitPoints(ctx context.Context, params store.PointsParams) (*models.PointsLedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", params.Amount)
	}
	return s.movePoints(ctx, params, -params.Amount)
}

func (s *Service) movePoints(ctx context.Context, params store.PointsParams, signed int64) (*models.PointsLedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUser(ctx, tx, params.Wallet); err != nil {
		return nil, err
	}

	var balance, version int64
	err = tx.QueryRowContext(ctx, queryGetPointsBalance, params.Wallet).Scan(&balance, &version)
	if err != nil {
		return nil, fmt.Errorf("failed to get points balance: %w", err)
	}

	balanceAfter := balance + signed
	if balanceAfter < 0 {
		return nil, fmt.Errorf("%w: balance %d, requested %d", store.ErrInsufficientPoints, balance, -signed)
	}

	entry := &models.PointsLedgerEntry{
		Id:           uuid.New().String(),
		Wallet:       params.Wallet,
		Amount:       signed,
		BalanceAfter: balanceAfter,
		EntryType:    params.EntryType,
		ReferenceId:  params.ReferenceId,
		Description:  params.Description,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		entry.Id, entry.Wallet, entry.Amount, entry.BalanceAfter,
		entry.EntryType, entry.ReferenceId, entry.Description, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	earnedDelta := int64(0)
	if signed > 0 {
		earnedDelta = signed
	}

	result, err := tx.ExecContext(ctx, queryUpdatePointsBalance, balanceAfter, earnedDelta, params.Wallet, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update points balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("points balance update failed - %w", store.ErrConcurrentModification)
	}

	eventType := models.EventPointsCredited
	if signed < 0 {
		eventType = models.EventPointsDebited
	}
	if err := appendEvent(ctx, tx, eventParams{
		Wallet:       params.Wallet,
		EventType:    eventType,
		Points:       signed,
		ReferenceId:  params.ReferenceId,
		BalanceAfter: fmt.Sprintf("%d", balanceAfter),
		Description:  params.Description,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit points movement: %w", err)
	}

	zap.L().Info("Points ledger updated",
		zap.String("wallet", params.Wallet),
		zap.Int64("amount", signed),
		zap.Int64("balance_after", balanceAfter),
		zap.String("type", params.EntryType))

	return entry, nil
}

// GetPointsBalance returns the cached balance, 0 for unknown wallets.
func (s *Service) GetPointsBalance(ctx context.Context, wallet string) (int64, error) {
	var balance, version int64
	err := s.db.QueryRowContext(ctx, queryGetPointsBalance, wallet).Scan(&balance, &version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get points balance: %w", err)
	}
	return balance, nil
}

// GetPointsLedger returns entries newest-first.
func (s *Service) GetPointsLedger(ctx context.Context, wallet string, limit int) ([]models.PointsLedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, queryGetPointsLedger, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get points ledger: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.PointsLedgerEntry
	for rows.Next() {
		var e models.PointsLedgerEntry
		if err := rows.Scan(&e.Id, &e.Wallet, &e.Amount, &e.BalanceAfter,
			&e.EntryType, &e.ReferenceId, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}
