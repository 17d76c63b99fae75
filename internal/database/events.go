package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rwaswap-rewards/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// eventParams describes one audit record. appendEvent runs inside the same
// sql transaction as the mutation it describes, so the event log order
// matches commit order.
type eventParams struct {
	Wallet       string
	EventType    string
	AmountUsd    decimal.Decimal
	Points       int64
	ReferenceId  string
	BalanceAfter string
	Description  string
}

func appendEvent(ctx context.Context, tx *sql.Tx, p eventParams) error {
	_, err := tx.ExecContext(ctx, queryInsertEvent,
		uuid.New().String(), p.Wallet, p.EventType, p.AmountUsd.String(), p.Points,
		p.ReferenceId, p.BalanceAfter, p.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append reward event: %w", err)
	}
	return nil
}

func (s *Service) ListRewardEvents(ctx context.Context, wallet string, limit int) ([]models.RewardEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, queryListEvents, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward events: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var events []models.RewardEvent
	for rows.Next() {
		var e models.RewardEvent
		var amountStr string
		if err := rows.Scan(&e.Id, &e.Wallet, &e.EventType, &amountStr, &e.Points,
			&e.ReferenceId, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reward event: %w", err)
		}
		e.AmountUsd, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event amount %q: %w", amountStr, err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward events: %w", err)
	}

	return events, nil
}
