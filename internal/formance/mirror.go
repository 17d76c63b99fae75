package formance

import (
	"context"
	"errors"
	"fmt"

	"rwaswap-rewards/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Numscript templates. All USD amounts are posted in cents (USD/2). The
// metadata is set inside the script so each Formance transaction is
// self-describing.

const numscriptPoolContribution = `vars {
  number $amount
  string $swap_id
}

send [USD/2 $amount] (
  source = @treasury:fees allowing unbounded overdraft
  destination = @rewards:pool
)

set_tx_meta("event_type", "pool_contribution")
set_tx_meta("swap_id", $swap_id)
`

const numscriptPayoutSettled = `vars {
  number $amount
  account $wallet
  string $payout_id
  string $payout_type
  string $tx_hash
}

send [USD/2 $amount] (
  source = @treasury:payouts allowing unbounded overdraft
  destination = @users:$wallet
)

set_tx_meta("event_type", "payout_settled")
set_tx_meta("payout_id", $payout_id)
set_tx_meta("payout_type", $payout_type)
set_tx_meta("tx_hash", $tx_hash)
`

// Mirror posts reward money movements into a Formance Stack ledger for
// financial audit. It never sits on the critical path: callers log and
// continue on mirror errors.
type Mirror struct {
	client *v3.Formance
	ledger string
}

// NewMirror connects to the stack and creates the ledger if missing.
func NewMirror(ctx context.Context, cfg models.FormanceConfig) (*Mirror, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "rwaswap-rewards"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &Mirror{client: client, ledger: cfg.LedgerName}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}
	return m, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (m *Mirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "rwaswap-rewards",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// RecordPoolContribution mirrors a fee share moving into the reward pool.
// Reference is the swap id, so retried posts deduplicate on the stack side.
func (m *Mirror) RecordPoolContribution(ctx context.Context, swapId string, amount decimal.Decimal) error {
	ref := "pool-contribution-" + swapId
	_, err := m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: m.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: &ref,
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptPoolContribution,
				Vars: map[string]string{
					"amount":  amount.Shift(2).BigInt().String(),
					"swap_id": swapId,
				},
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			return nil // already mirrored
		}
		return fmt.Errorf("error mirroring pool contribution: %w", err)
	}
	return nil
}

// RecordPayoutSettled mirrors a completed payout leaving the treasury.
func (m *Mirror) RecordPayoutSettled(ctx context.Context, payout *models.Payout, txHash string) error {
	ref := "payout-" + payout.Id
	_, err := m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: m.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: &ref,
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptPayoutSettled,
				Vars: map[string]string{
					"amount":      payout.AmountUsd.Shift(2).BigInt().String(),
					"wallet":      payout.Wallet,
					"payout_id":   payout.Id,
					"payout_type": payout.PayoutType,
					"tx_hash":     txHash,
				},
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			return nil // already mirrored
		}
		return fmt.Errorf("error mirroring payout settlement: %w", err)
	}
	return nil
}

// isConflictError checks whether a Formance SDK error is a CONFLICT
// (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}
