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

func scanPool(row rowScanner) (*models.RewardPool, error) {
	var p models.RewardPool
	var balanceStr, contribStr, paidStr string
	err := row.Scan(&p.Id, &balanceStr, &contribStr, &paidStr, &p.Version, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward pool: %w", err)
	}
	if p.BalanceUsd, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse pool balance %q: %w", balanceStr, err)
	}
	if p.TotalContributedUsd, err = decimal.NewFromString(contribStr); err != nil {
		return nil, fmt.Errorf("failed to parse pool contributed %q: %w", contribStr, err)
	}
	if p.TotalPaidOutUsd, err = decimal.NewFromString(paidStr); err != nil {
		return nil, fmt.Errorf("failed to parse pool paid out %q: %w", paidStr, err)
	}
	return &p, nil
}

// GetRewardPool reads the singleton row. The row is seeded by InitSchema, so
// every access path finds it.
func (s *Service) GetRewardPool(ctx context.Context) (*models.RewardPool, error) {
	return scanPool(s.db.QueryRowContext(ctx, queryGetPool, poolRowId))
}

// ContributeToPool adds a fee share to the pool balance and contributed
// total under the pool's version guard, preserving
// balance = contributed - paidOut.
func (s *Service) ContributeToPool(ctx context.Context, amount decimal.Decimal, swapId string) error {
	if !amount.IsPositive() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pool, err := scanPool(tx.QueryRowContext(ctx, queryGetPool, poolRowId))
	if err != nil {
		return err
	}

	newBalance := pool.BalanceUsd.Add(amount)
	newContrib := pool.TotalContributedUsd.Add(amount)

	result, err := tx.ExecContext(ctx, queryUpdatePool,
		newBalance.String(), newContrib.String(), pool.TotalPaidOutUsd.String(),
		poolRowId, pool.Version)
	if err != nil {
		return fmt.Errorf("failed to update pool: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pool update failed - %w", store.ErrConcurrentModification)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:       poolRowId,
		EventType:    models.EventPoolContribution,
		AmountUsd:    amount,
		ReferenceId:  swapId,
		BalanceAfter: newBalance.String(),
		Description:  fmt.Sprintf("Pool contribution of $%s from swap fee", amount.String()),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pool contribution: %w", err)
	}
	return nil
}

// OpenMysteryBox performs the full open as one atomic unit: cooldown and
// points checks, ledger debit, pool decrement with the payout clamped to the
// pool balance, box insert, last-open stamp, audit event. The clamp means
// the effective payout can be less than the drawn nominal when the pool is
// thin; the pool invariant wins.
func (s *Service) OpenMysteryBox(ctx context.Context, params store.OpenBoxParams) (*models.MysteryBox, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx, queryGetUser, params.Wallet))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if user.LastBoxOpenedAt != nil && now.Sub(*user.LastBoxOpenedAt) < params.Cooldown {
		return nil, fmt.Errorf("%w: next open at %s", store.ErrCooldownActive,
			user.LastBoxOpenedAt.Add(params.Cooldown).Format(time.RFC3339))
	}
	if user.PointsBalance < params.CostPoints {
		return nil, fmt.Errorf("%w: balance %d, cost %d", store.ErrInsufficientPoints,
			user.PointsBalance, params.CostPoints)
	}

	pool, err := scanPool(tx.QueryRowContext(ctx, queryGetPool, poolRowId))
	if err != nil {
		return nil, err
	}
	if !pool.BalanceUsd.IsPositive() {
		return nil, store.ErrPoolEmpty
	}

	payout := params.NominalUsd
	if payout.GreaterThan(pool.BalanceUsd) {
		payout = pool.BalanceUsd
	}

	// Debit points: ledger entry + cached balance under the version guard.
	balanceAfter := user.PointsBalance - params.CostPoints
	boxId := uuid.New().String()

	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New().String(), params.Wallet, -params.CostPoints, balanceAfter,
		models.PointsSpent, boxId, "Mystery box opened", now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdatePointsBalance, balanceAfter, 0, params.Wallet, user.PointsVersion)
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

	// Decrement the pool under its own version guard.
	newPoolBalance := pool.BalanceUsd.Sub(payout)
	newPaidOut := pool.TotalPaidOutUsd.Add(payout)
	result, err = tx.ExecContext(ctx, queryUpdatePool,
		newPoolBalance.String(), pool.TotalContributedUsd.String(), newPaidOut.String(),
		poolRowId, pool.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}
	rows, err = result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("pool update failed - %w", store.ErrConcurrentModification)
	}

	_, err = tx.ExecContext(ctx, queryInsertBox,
		boxId, params.Wallet, params.CostPoints, params.Rarity, payout.String(),
		models.StatusOpened, params.ChainId, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert mystery box: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryStampBoxOpen, now, params.Wallet); err != nil {
		return nil, fmt.Errorf("failed to stamp box open time: %w", err)
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:       params.Wallet,
		EventType:    models.EventMysteryBoxOpened,
		AmountUsd:    payout,
		Points:       -params.CostPoints,
		ReferenceId:  boxId,
		BalanceAfter: fmt.Sprintf("%d", balanceAfter),
		Description:  fmt.Sprintf("%s mystery box paid $%s for %d points", params.Rarity, payout.String(), params.CostPoints),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit mystery box open: %w", err)
	}

	zap.L().Info("Mystery box opened",
		zap.String("box_id", boxId),
		zap.String("wallet", params.Wallet),
		zap.String("rarity", params.Rarity),
		zap.String("payout_usd", payout.String()),
		zap.String("pool_balance", newPoolBalance.String()))

	return &models.MysteryBox{
		Id:          boxId,
		Wallet:      params.Wallet,
		PointsSpent: params.CostPoints,
		Rarity:      params.Rarity,
		PayoutUsd:   payout,
		Status:      models.StatusOpened,
		ChainId:     params.ChainId,
		CreatedAt:   now,
	}, nil
}

func scanBox(row rowScanner) (*models.MysteryBox, error) {
	var b models.MysteryBox
	var payoutStr string
	err := row.Scan(&b.Id, &b.Wallet, &b.PointsSpent, &b.Rarity, &payoutStr,
		&b.Status, &b.ChainId, &b.PayoutId, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrBoxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mystery box: %w", err)
	}
	if b.PayoutUsd, err = decimal.NewFromString(payoutStr); err != nil {
		return nil, fmt.Errorf("failed to parse payout_usd %q: %w", payoutStr, err)
	}
	return &b, nil
}

func (s *Service) ListMysteryBoxes(ctx context.Context, wallet string, limit int) ([]models.MysteryBox, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, queryListBoxes, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mystery boxes: %w", err)
	}
	defer rows.Close()

	var boxes []models.MysteryBox
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mystery boxes: %w", err)
	}
	return boxes, nil
}
