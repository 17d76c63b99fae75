/**
 * Copyright 2025 Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"rwaswap-rewards/internal/database"
	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/prime"
	"rwaswap-rewards/internal/store"

	"github.com/shopspring/decimal"
)

// fakeCustody satisfies CustodyWriter with scripted outcomes.
type fakeCustody struct {
	submitErr  error
	confirmErr error
	status     string
	txId       string
	submitted  []prime.SubmitTransferParams
}

func (f *fakeCustody) SubmitTransfer(ctx context.Context, params prime.SubmitTransferParams) (*models.Withdrawal, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, params)
	return &models.Withdrawal{
		ActivityId:     "activity-1",
		Amount:         params.Amount,
		Asset:          params.Symbol,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

func (f *fakeCustody) WaitForConfirmation(ctx context.Context, portfolioId, walletId, idempotencyKey string, poll time.Duration) (*models.CustodyTransaction, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &models.CustodyTransaction{
		Id:             "custody-tx-1",
		IdempotencyKey: idempotencyKey,
		Status:         f.status,
		TransactionId:  f.txId,
	}, nil
}

func testChains() map[int64]models.ChainConfig {
	return map[int64]models.ChainConfig{
		1: {
			ChainId:          1,
			Name:             "ethereum",
			SettlementSymbol: "USDC",
			SettlementToken:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			PayoutWalletId:   "wallet-1",
			TreasuryAddress:  "0xtreasury",
		},
	}
}

func setupExecutorTest(t *testing.T, custody *fakeCustody) (*Executor, *database.Service, *models.Payout, func()) {
	t.Helper()

	_, dbService, cleanup := setupRewardsTest(t, testConfig())
	ctx := context.Background()

	batch, err := dbService.RecordSwapFee(ctx, store.SwapFeeParams{
		Wallet:     "0xabc",
		SwapId:     "swap-1",
		FeeUsd:     decimal.NewFromInt(10),
		ChainId:    1,
		Interval:   1,
		Percentage: decimal.RequireFromString("0.50"),
	})
	if err != nil || batch == nil {
		t.Fatalf("Failed to create claimable batch: %v", err)
	}
	payout, err := dbService.ClaimCashback(ctx, "0xabc", batch.Id)
	if err != nil {
		t.Fatalf("Failed to claim batch: %v", err)
	}

	executor := NewExecutor(dbService, custody, nil, testChains(), "portfolio-1",
		models.PayoutConfig{ConfirmTimeout: time.Second, ConfirmPoll: time.Millisecond}, nil)

	return executor, dbService, payout, cleanup
}

func TestExecutePayoutCompleted(t *testing.T) {
	custody := &fakeCustody{status: "TRANSACTION_DONE", txId: "0xsettled"}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	result, err := executor.Execute(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to execute payout: %v", err)
	}
	if result.Status != models.PayoutCompleted {
		t.Errorf("Expected COMPLETED payout, got %s", result.Status)
	}
	if result.TxHash != "0xsettled" {
		t.Errorf("Expected harvested tx hash 0xsettled, got %s", result.TxHash)
	}

	if len(custody.submitted) != 1 {
		t.Fatalf("Expected 1 submitted transfer, got %d", len(custody.submitted))
	}
	submitted := custody.submitted[0]
	if submitted.WalletId != "wallet-1" {
		t.Errorf("Expected source wallet wallet-1, got %s", submitted.WalletId)
	}
	if submitted.Symbol != "USDC" {
		t.Errorf("Expected settlement in USDC, got %s", submitted.Symbol)
	}
	if submitted.DestinationAddress != payout.Wallet {
		t.Errorf("Expected destination %s, got %s", payout.Wallet, submitted.DestinationAddress)
	}
	if submitted.IdempotencyKey != result.IdempotencyKey {
		t.Error("Expected the stored idempotency key to match the submitted one")
	}

	// The source batch settles.
	batch, err := dbService.GetCashbackBatch(ctx, payout.ReferenceId)
	if err != nil {
		t.Fatalf("Failed to get batch: %v", err)
	}
	if batch.Status != models.StatusPaid {
		t.Errorf("Expected PAID batch, got %s", batch.Status)
	}
}

func TestExecutePayoutSubmissionFailure(t *testing.T) {
	submitErr := errors.New("custody unavailable")
	custody := &fakeCustody{submitErr: submitErr}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	if _, err := executor.Execute(ctx, payout.Id); !errors.Is(err, submitErr) {
		t.Fatalf("Expected submission error to propagate, got %v", err)
	}

	failed, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if failed.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED payout after submission error, got %s", failed.Status)
	}

	// The batch is released for a fresh claim.
	batch, err := dbService.GetCashbackBatch(ctx, payout.ReferenceId)
	if err != nil {
		t.Fatalf("Failed to get batch: %v", err)
	}
	if batch.Status != models.StatusClaimable {
		t.Errorf("Expected released batch CLAIMABLE, got %s", batch.Status)
	}
}

func TestExecutePayoutConfirmationTimeout(t *testing.T) {
	custody := &fakeCustody{confirmErr: context.DeadlineExceeded}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	if _, err := executor.Execute(ctx, payout.Id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected timeout error, got %v", err)
	}

	// The payout stays PROCESSING for the reconciler.
	stuck, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if stuck.Status != models.PayoutProcessing {
		t.Errorf("Expected payout left PROCESSING after timeout, got %s", stuck.Status)
	}
	if stuck.IdempotencyKey == "" {
		t.Error("Expected stored idempotency key for the reconciler")
	}
}

func TestExecutePayoutTerminalCustodyFailure(t *testing.T) {
	custody := &fakeCustody{status: "TRANSACTION_REJECTED"}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	if _, err := executor.Execute(ctx, payout.Id); err == nil {
		t.Fatal("Expected error for rejected custody transfer")
	}

	failed, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if failed.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED payout, got %s", failed.Status)
	}
}

func TestExecutePayoutUnconfiguredChain(t *testing.T) {
	custody := &fakeCustody{status: "TRANSACTION_DONE", txId: "0xsettled"}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	executor.chains = map[int64]models.ChainConfig{}

	if _, err := executor.Execute(ctx, payout.Id); !errors.Is(err, ErrWalletNotConfigured) {
		t.Fatalf("Expected ErrWalletNotConfigured, got %v", err)
	}

	// Nothing was submitted and the payout is untouched.
	if len(custody.submitted) != 0 {
		t.Errorf("Expected no submission, got %d", len(custody.submitted))
	}
	pending, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if pending.Status != models.PayoutPending {
		t.Errorf("Expected payout to stay PENDING, got %s", pending.Status)
	}
}

func TestExecuteBatchIsolatesFailures(t *testing.T) {
	custody := &fakeCustody{status: "TRANSACTION_DONE", txId: "0xsettled"}
	executor, _, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()

	succeeded, failed := executor.ExecuteBatch(context.Background(), []string{payout.Id, "missing"})
	if len(succeeded) != 1 || succeeded[0] != payout.Id {
		t.Errorf("Expected %s to succeed, got %v", payout.Id, succeeded)
	}
	if len(failed) != 1 || failed[0] != "missing" {
		t.Errorf("Expected missing payout to fail, got %v", failed)
	}
}

func TestRejectPayoutReleasesSource(t *testing.T) {
	custody := &fakeCustody{}
	executor, dbService, payout, cleanup := setupExecutorTest(t, custody)
	defer cleanup()
	ctx := context.Background()

	if err := executor.Reject(ctx, payout.Id, "compliance hold"); err != nil {
		t.Fatalf("Failed to reject payout: %v", err)
	}

	rejected, err := dbService.GetPayout(ctx, payout.Id)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if rejected.Status != models.PayoutFailed {
		t.Errorf("Expected FAILED payout after reject, got %s", rejected.Status)
	}
	if rejected.FailureReason != "compliance hold" {
		t.Errorf("Expected reject reason to persist, got %q", rejected.FailureReason)
	}
	if len(custody.submitted) != 0 {
		t.Error("Reject must never touch custody")
	}
}
