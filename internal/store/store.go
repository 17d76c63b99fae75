package store

import (
	"context"
	"errors"
	"time"

	"rwaswap-rewards/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	// Not found
	ErrSwapNotFound    = errors.New("swap not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrPayoutNotFound  = errors.New("payout not found")
	ErrBatchNotFound   = errors.New("cashback batch not found")
	ErrEarningNotFound = errors.New("referral earning not found")
	ErrBoxNotFound     = errors.New("mystery box not found")

	// Conflict
	ErrDuplicateSwap          = errors.New("duplicate swap transaction hash")
	ErrSwapAlreadyVerified    = errors.New("swap already verified")
	ErrPayoutNotPending       = errors.New("payout is not pending")
	ErrPayoutNotProcessing    = errors.New("payout is not processing")
	ErrNotClaimable           = errors.New("reward is not claimable")
	ErrAlreadyReferred        = errors.New("wallet already has a referrer")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Validation
	ErrInvalidReferralCode     = errors.New("invalid or inactive referral code")
	ErrSelfReferral            = errors.New("cannot use own referral code")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")

	// Policy
	ErrInsufficientPoints = errors.New("insufficient points balance")
	ErrPoolEmpty          = errors.New("reward pool is empty")
	ErrCooldownActive     = errors.New("mystery box cooldown active")
	ErrNothingToClaim     = errors.New("nothing to claim")
)

// CreateSwapParams persists a swap on its first verification attempt.
// Wash-trade swaps are stored flagged so the audit trail keeps every
// legitimate on-chain transaction even when rewards are denied.
type CreateSwapParams struct {
	Wallet        string
	TxHash        string
	ChainId       int64
	FromToken     string
	FromAmount    decimal.Decimal
	ToToken       string
	ToAmount      decimal.Decimal
	SwapValueUsd  decimal.Decimal
	FeeUsd        decimal.Decimal
	PointsEarned  int64
	IsWashTrade   bool
	BlockNumber   int64
	BlockTime     time.Time
	RouteMetadata string
}

// PointsParams describes a single ledger movement. Amount is always
// positive; Credit/Debit determine the sign.
type PointsParams struct {
	Wallet      string
	Amount      int64
	EntryType   string
	ReferenceId string
	Description string
}

// SwapFeeParams drives the cashback aggregation trigger.
type SwapFeeParams struct {
	Wallet     string
	SwapId     string
	FeeUsd     decimal.Decimal
	ChainId    int64
	Interval   int             // fees per batch, normally 3
	Percentage decimal.Decimal // cashback percentage drawn by the caller
}

// ReferralEarningParams records a referee swap against the referrer.
// MaxEarningUsd caps the persisted earning (daily-cap room computed by the
// orchestrator); zero or negative means no room and the call is a no-op.
type ReferralEarningParams struct {
	RefereeWallet string
	SwapId        string
	FeeUsd        decimal.Decimal
	Percentage    decimal.Decimal
	ChainId       int64
	Milestone     int64
	MaxEarningUsd decimal.Decimal
}

// OpenBoxParams persists a mystery box open. The rarity and nominal payout
// are drawn by the caller; the store clamps the payout to the pool balance
// inside the same transaction that debits it.
type OpenBoxParams struct {
	Wallet     string
	CostPoints int64
	Rarity     string
	NominalUsd decimal.Decimal
	ChainId    int64
	Cooldown   time.Duration
}

// RewardStore defines the contract the persistence backend must satisfy.
type RewardStore interface {
	// --- Users ---
	GetUser(ctx context.Context, wallet string) (*models.User, error)
	TouchSwapStreak(ctx context.Context, wallet string, when time.Time) error

	// --- Swaps ---
	GetSwapByTxHash(ctx context.Context, txHash string) (*models.Swap, error)
	CreateSwap(ctx context.Context, params CreateSwapParams) (*models.Swap, error)
	MarkSwapVerified(ctx context.Context, swapId string, blockNumber int64, blockTime time.Time, points int64) (*models.Swap, error)
	FlagSwapWashTrade(ctx context.Context, swapId string, blockNumber int64, blockTime time.Time) (*models.Swap, error)
	CountVerifiedSwaps(ctx context.Context, wallet string) (int64, error)
	CountReversedSwapsSince(ctx context.Context, wallet, fromToken, toToken string, chainId int64, since time.Time) (int, error)

	// --- Points ledger ---
	CreditPoints(ctx context.Context, params PointsParams) (*models.PointsLedgerEntry, error)
	DebitPoints(ctx context.Context, params PointsParams) (*models.PointsLedgerEntry, error)
	GetPointsBalance(ctx context.Context, wallet string) (int64, error)
	GetPointsLedger(ctx context.Context, wallet string, limit int) ([]models.PointsLedgerEntry, error)

	// --- Cashback ---
	RecordSwapFee(ctx context.Context, params SwapFeeParams) (*models.CashbackBatch, error)
	GetCashbackBatch(ctx context.Context, batchId string) (*models.CashbackBatch, error)
	ReduceCashbackBatch(ctx context.Context, batchId string, newAmount decimal.Decimal) error
	DiscardCashbackBatch(ctx context.Context, batchId string) error
	SumDailyCashback(ctx context.Context, wallet string, day time.Time, excludeBatchId string) (decimal.Decimal, error)
	GetCashbackProgress(ctx context.Context, wallet string) (*models.CashbackProgress, error)

	// --- Referrals ---
	GetReferralCodeByWallet(ctx context.Context, wallet string) (*models.ReferralCode, error)
	GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	CreateReferralCode(ctx context.Context, wallet, code string) (*models.ReferralCode, error)
	UseReferralCode(ctx context.Context, wallet, code string) (*models.ReferralCode, error)
	RecordReferralEarning(ctx context.Context, params ReferralEarningParams) (*models.ReferralEarning, error)
	SumDailyReferral(ctx context.Context, refereeWallet string, day time.Time) (decimal.Decimal, error)
	GetReferralStats(ctx context.Context, wallet string) (*models.ReferralStats, error)

	// --- Mystery box pool ---
	GetRewardPool(ctx context.Context) (*models.RewardPool, error)
	ContributeToPool(ctx context.Context, amount decimal.Decimal, swapId string) error
	OpenMysteryBox(ctx context.Context, params OpenBoxParams) (*models.MysteryBox, error)
	ListMysteryBoxes(ctx context.Context, wallet string, limit int) ([]models.MysteryBox, error)

	// --- Claims & payouts ---
	ClaimCashback(ctx context.Context, wallet, batchId string) (*models.Payout, error)
	ClaimReferral(ctx context.Context, wallet string, chainId int64) (*models.Payout, error)
	ClaimMysteryBox(ctx context.Context, wallet, boxId string) (*models.Payout, error)
	GetPayout(ctx context.Context, payoutId string) (*models.Payout, error)
	ListPayouts(ctx context.Context, status string, limit int) ([]models.Payout, error)
	MarkPayoutProcessing(ctx context.Context, payoutId, idempotencyKey string) error
	CompletePayout(ctx context.Context, payoutId, txHash string) error
	FailPayout(ctx context.Context, payoutId, reason string) error
	ApprovePayout(ctx context.Context, payoutId string) error
	RejectPayout(ctx context.Context, payoutId, reason string) error

	// --- Events ---
	ListRewardEvents(ctx context.Context, wallet string, limit int) ([]models.RewardEvent, error)

	// --- Lifecycle ---
	Close()
}
