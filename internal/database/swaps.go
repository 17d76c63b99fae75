package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanSwap(row rowScanner) (*models.Swap, error) {
	var sw models.Swap
	var fromAmt, toAmt, valueStr, feeStr string
	var blockTime, verifiedAt sql.NullTime
	err := row.Scan(&sw.Id, &sw.Wallet, &sw.TxHash, &sw.ChainId, &sw.FromToken, &fromAmt,
		&sw.ToToken, &toAmt, &valueStr, &feeStr, &sw.PointsEarned, &sw.IsVerified,
		&sw.IsWashTrade, &sw.BlockNumber, &blockTime, &verifiedAt, &sw.RouteMetadata, &sw.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan swap: %w", err)
	}

	if sw.FromAmount, err = decimal.NewFromString(fromAmt); err != nil {
		return nil, fmt.Errorf("failed to parse from_amount %q: %w", fromAmt, err)
	}
	if sw.ToAmount, err = decimal.NewFromString(toAmt); err != nil {
		return nil, fmt.Errorf("failed to parse to_amount %q: %w", toAmt, err)
	}
	if sw.SwapValueUsd, err = decimal.NewFromString(valueStr); err != nil {
		return nil, fmt.Errorf("failed to parse swap_value_usd %q: %w", valueStr, err)
	}
	if sw.FeeUsd, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse fee_usd %q: %w", feeStr, err)
	}
	if blockTime.Valid {
		sw.BlockTime = blockTime.Time
	}
	if verifiedAt.Valid {
		sw.VerifiedAt = verifiedAt.Time
	}
	return &sw, nil
}

// GetSwapByTxHash returns the swap for a transaction hash, or ErrSwapNotFound.
func (s *Service) GetSwapByTxHash(ctx context.Context, txHash string) (*models.Swap, error) {
	return scanSwap(s.db.QueryRowContext(ctx, queryGetSwapByTxHash, strings.ToLower(txHash)))
}

// CreateSwap persists a swap record. The unique tx_hash index is the
// idempotency anchor: a second insert for the same hash fails with
// ErrDuplicateSwap instead of creating a second record.
func (s *Service) CreateSwap(ctx context.Context, params store.CreateSwapParams) (*models.Swap, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUser(ctx, tx, params.Wallet); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	verified := !params.IsWashTrade
	swapId := uuid.New().String()

	var verifiedAt any
	if verified || params.IsWashTrade {
		verifiedAt = now
	}

	_, err = tx.ExecContext(ctx, queryInsertSwap,
		swapId, params.Wallet, strings.ToLower(params.TxHash), params.ChainId,
		params.FromToken, params.FromAmount.String(), params.ToToken, params.ToAmount.String(),
		params.SwapValueUsd.String(), params.FeeUsd.String(), params.PointsEarned,
		boolToInt(verified), boolToInt(params.IsWashTrade),
		params.BlockNumber, params.BlockTime, verifiedAt, params.RouteMetadata, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: tx_hash %s already recorded", store.ErrDuplicateSwap, params.TxHash)
		}
		return nil, fmt.Errorf("failed to insert swap: %w", err)
	}

	eventType := models.EventSwapVerified
	desc := fmt.Sprintf("Swap %s verified on chain %d", params.TxHash, params.ChainId)
	if params.IsWashTrade {
		eventType = models.EventWashTradeFlagged
		desc = fmt.Sprintf("Swap %s flagged as wash trade, rewards denied", params.TxHash)
	}
	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      params.Wallet,
		EventType:   eventType,
		AmountUsd:   params.SwapValueUsd,
		Points:      params.PointsEarned,
		ReferenceId: swapId,
		Description: desc,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit swap: %w", err)
	}

	zap.L().Info("Swap recorded",
		zap.String("swap_id", swapId),
		zap.String("wallet", params.Wallet),
		zap.String("tx_hash", params.TxHash),
		zap.Int64("chain_id", params.ChainId),
		zap.Bool("wash_trade", params.IsWashTrade))

	return s.GetSwapByTxHash(ctx, params.TxHash)
}

// MarkSwapVerified re-verifies an existing unverified record in place.
func (s *Service) MarkSwapVerified(ctx context.Context, swapId string, blockNumber int64, blockTime time.Time, points int64) (*models.Swap, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryMarkSwapVerified, blockNumber, blockTime, now, points, swapId)
	if err != nil {
		return nil, fmt.Errorf("failed to mark swap verified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, store.ErrSwapAlreadyVerified
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+querySwapColumns+` FROM swaps WHERE id = ?`, swapId)
	return scanSwap(row)
}

// FlagSwapWashTrade marks an existing unverified record as a wash trade:
// points zeroed, is_verified stays 0. Mirrors the CreateSwap wash path so a
// re-verification attempt that trips the gate leaves the same audit trail.
func (s *Service) FlagSwapWashTrade(ctx context.Context, swapId string, blockNumber int64, blockTime time.Time) (*models.Swap, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryFlagSwapWashTrade, blockNumber, blockTime, now, swapId)
	if err != nil {
		return nil, fmt.Errorf("failed to flag wash trade: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, store.ErrSwapAlreadyVerified
	}

	swap, err := scanSwap(tx.QueryRowContext(ctx, `SELECT `+querySwapColumns+` FROM swaps WHERE id = ?`, swapId))
	if err != nil {
		return nil, err
	}

	if err := appendEvent(ctx, tx, eventParams{
		Wallet:      swap.Wallet,
		EventType:   models.EventWashTradeFlagged,
		AmountUsd:   swap.SwapValueUsd,
		ReferenceId: swapId,
		Description: fmt.Sprintf("Swap %s flagged as wash trade, rewards denied", swap.TxHash),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit wash trade flag: %w", err)
	}

	zap.L().Warn("Existing swap flagged as wash trade",
		zap.String("swap_id", swapId),
		zap.String("wallet", swap.Wallet),
		zap.String("tx_hash", swap.TxHash))

	return swap, nil
}

// CountVerifiedSwaps returns the referee milestone counter: verified,
// non-wash swaps for the wallet.
func (s *Service) CountVerifiedSwaps(ctx context.Context, wallet string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountVerifiedSwaps, wallet).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count verified swaps: %w", err)
	}
	return count, nil
}

// CountReversedSwapsSince counts verified swaps whose direction is exactly
// the reverse of the given token pair inside the window. The caller passes
// the pair it is about to trade; the query matches prior swaps going the
// other way.
func (s *Service) CountReversedSwapsSince(ctx context.Context, wallet, fromToken, toToken string, chainId int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, queryCountReversedSwaps, wallet, chainId, toToken, fromToken, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reversed swaps: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
