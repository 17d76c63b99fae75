package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Swap statuses are carried as two flags rather than an enum: a swap is
// created on the first verification attempt and only ever mutated to flip
// is_verified / is_wash_trade. Never deleted.
type Swap struct {
	Id            string          `db:"id"`
	Wallet        string          `db:"wallet"`
	TxHash        string          `db:"tx_hash"`
	ChainId       int64           `db:"chain_id"`
	FromToken     string          `db:"from_token"`
	FromAmount    decimal.Decimal `db:"from_amount"`
	ToToken       string          `db:"to_token"`
	ToAmount      decimal.Decimal `db:"to_amount"`
	SwapValueUsd  decimal.Decimal `db:"swap_value_usd"`
	FeeUsd        decimal.Decimal `db:"fee_usd"`
	PointsEarned  int64           `db:"points_earned"`
	IsVerified    bool            `db:"is_verified"`
	IsWashTrade   bool            `db:"is_wash_trade"`
	BlockNumber   int64           `db:"block_number"`
	BlockTime     time.Time       `db:"block_time"`
	VerifiedAt    time.Time       `db:"verified_at"`
	RouteMetadata string          `db:"route_metadata"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Fee is one per verified swap. A fee is consumed by at most one
// CashbackBatch (used_for_cashback + batch_id flip together).
type Fee struct {
	Id              string          `db:"id"`
	Wallet          string          `db:"wallet"`
	SwapId          string          `db:"swap_id"`
	FeeUsd          decimal.Decimal `db:"fee_usd"`
	ChainId         int64           `db:"chain_id"`
	UsedForCashback bool            `db:"used_for_cashback"`
	BatchId         string          `db:"batch_id"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Points ledger entry types
const (
	PointsEarned     = "earned"
	PointsSpent      = "spent"
	PointsAdjustment = "adjustment"
)

// PointsLedgerEntry is the append-only source of truth for point balances.
// The cached balance on users is denormalized for O(1) reads.
type PointsLedgerEntry struct {
	Id           string    `db:"id"`
	Wallet       string    `db:"wallet"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	EntryType    string    `db:"entry_type"`
	ReferenceId  string    `db:"reference_id"`
	Description  string    `db:"description"`
	CreatedAt    time.Time `db:"created_at"`
}

// Reward statuses shared by batches, earnings and boxes.
// StatusPending exists in the model for forward-compatibility; the current
// trigger logic creates batches and unlocked earnings directly as CLAIMABLE.
const (
	StatusPending   = "PENDING"
	StatusLocked    = "LOCKED"
	StatusClaimable = "CLAIMABLE"
	StatusClaimed   = "CLAIMED"
	StatusPaid      = "PAID"
	StatusOpened    = "OPENED"
)

// CashbackBatch aggregates exactly 3 consumed fees into one claimable reward.
type CashbackBatch struct {
	Id                 string          `db:"id"`
	Wallet             string          `db:"wallet"`
	TotalFeesUsd       decimal.Decimal `db:"total_fees_usd"`
	CashbackPercentage decimal.Decimal `db:"cashback_percentage"`
	CashbackAmountUsd  decimal.Decimal `db:"cashback_amount_usd"`
	ChainId            int64           `db:"chain_id"`
	Status             string          `db:"status"`
	PayoutId           string          `db:"payout_id"`
	ClaimedAt          *time.Time      `db:"claimed_at"`
	PaidAt             *time.Time      `db:"paid_at"`
	CreatedAt          time.Time       `db:"created_at"`
}

// ReferralCode: one per wallet, unique code string.
type ReferralCode struct {
	Id                   string          `db:"id"`
	Code                 string          `db:"code"`
	Wallet               string          `db:"wallet"`
	TotalReferees        int64           `db:"total_referees"`
	TotalEarningsUsd     decimal.Decimal `db:"total_earnings_usd"`
	ClaimableEarningsUsd decimal.Decimal `db:"claimable_earnings_usd"`
	Active               bool            `db:"active"`
	CreatedAt            time.Time       `db:"created_at"`
}

// ReferralEarning transitions LOCKED -> CLAIMABLE all-at-once for a
// (referrer, referee) pair the moment the referee reaches the milestone.
type ReferralEarning struct {
	Id               string          `db:"id"`
	ReferrerWallet   string          `db:"referrer_wallet"`
	RefereeWallet    string          `db:"referee_wallet"`
	CodeId           string          `db:"code_id"`
	SwapId           string          `db:"swap_id"`
	FeeUsd           decimal.Decimal `db:"fee_usd"`
	Percentage       decimal.Decimal `db:"percentage"`
	EarningAmountUsd decimal.Decimal `db:"earning_amount_usd"`
	ChainId          int64           `db:"chain_id"`
	Status           string          `db:"status"`
	PayoutId         string          `db:"payout_id"`
	CreatedAt        time.Time       `db:"created_at"`
}

// Mystery box rarities
const (
	RarityCommon    = "COMMON"
	RarityRare      = "RARE"
	RarityUltraRare = "ULTRA_RARE"
)

type MysteryBox struct {
	Id          string          `db:"id"`
	Wallet      string          `db:"wallet"`
	PointsSpent int64           `db:"points_spent"`
	Rarity      string          `db:"rarity"`
	PayoutUsd   decimal.Decimal `db:"payout_usd"`
	Status      string          `db:"status"`
	ChainId     int64           `db:"chain_id"`
	PayoutId    string          `db:"payout_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

// RewardPool is a singleton row (id = "reward-pool") with its own version
// column. Invariant: BalanceUsd = TotalContributedUsd - TotalPaidOutUsd.
type RewardPool struct {
	Id                  string          `db:"id"`
	BalanceUsd          decimal.Decimal `db:"balance_usd"`
	TotalContributedUsd decimal.Decimal `db:"total_contributed_usd"`
	TotalPaidOutUsd     decimal.Decimal `db:"total_paid_out_usd"`
	Version             int64           `db:"version"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// Payout types and statuses
const (
	PayoutCashback   = "CASHBACK"
	PayoutReferral   = "REFERRAL"
	PayoutMysteryBox = "MYSTERY_BOX"

	PayoutPending    = "PENDING"
	PayoutProcessing = "PROCESSING"
	PayoutCompleted  = "COMPLETED"
	PayoutFailed     = "FAILED"
)

// Payout tracks an on-chain settlement through
// PENDING -> PROCESSING -> COMPLETED | FAILED. Transitions are one-way;
// FAILED is terminal for the record (the source reward is released so a
// fresh claim can retry).
type Payout struct {
	Id             string          `db:"id"`
	Wallet         string          `db:"wallet"`
	PayoutType     string          `db:"payout_type"`
	AmountUsd      decimal.Decimal `db:"amount_usd"`
	ChainId        int64           `db:"chain_id"`
	TokenAddress   string          `db:"token_address"`
	Status         string          `db:"status"`
	TxHash         string          `db:"tx_hash"`
	IdempotencyKey string          `db:"idempotency_key"`
	ReferenceId    string          `db:"reference_id"`
	FailureReason  string          `db:"failure_reason"`
	ApprovedAt     *time.Time      `db:"approved_at"`
	PaidAt         *time.Time      `db:"paid_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// User is the per-wallet aggregate / read model. The points ledger is the
// source of truth for PointsBalance; the column here is a cache guarded by
// PointsVersion.
type User struct {
	Wallet                 string          `db:"wallet"`
	PointsBalance          int64           `db:"points_balance"`
	PointsVersion          int64           `db:"points_version"`
	TotalPointsEarned      int64           `db:"total_points_earned"`
	TotalSwaps             int64           `db:"total_swaps"`
	TotalCashbackUsd       decimal.Decimal `db:"total_cashback_usd"`
	TotalReferralUsd       decimal.Decimal `db:"total_referral_usd"`
	StreakDays             int64           `db:"streak_days"`
	LastSwapDate           string          `db:"last_swap_date"`
	SwapsSinceLastCashback int64           `db:"swaps_since_last_cashback"`
	ReferralCodeId         string          `db:"referral_code_id"`
	ReferredByCodeId       string          `db:"referred_by_code_id"`
	LastBoxOpenedAt        *time.Time      `db:"last_box_opened_at"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

// Reward event types
const (
	EventSwapVerified     = "SWAP_VERIFIED"
	EventWashTradeFlagged = "WASH_TRADE_FLAGGED"
	EventPointsCredited   = "POINTS_CREDITED"
	EventPointsDebited    = "POINTS_DEBITED"
	EventPoolContribution = "POOL_CONTRIBUTION"
	EventCashbackBatch    = "CASHBACK_BATCH_CREATED"
	EventCashbackCapped   = "CASHBACK_CAPPED"
	EventReferralEarning  = "REFERRAL_EARNING"
	EventReferralUnlocked = "REFERRAL_UNLOCKED"
	EventReferralUsed     = "REFERRAL_CODE_USED"
	EventMysteryBoxOpened = "MYSTERY_BOX_OPENED"
	EventRewardClaimed    = "REWARD_CLAIMED"
	EventPayoutCompleted  = "PAYOUT_COMPLETED"
	EventPayoutFailed     = "PAYOUT_FAILED"
)

// RewardEvent is the immutable audit trail. Events are appended inside the
// same sql transaction as the mutation they describe, so creation order
// matches commit order for deterministic replay.
type RewardEvent struct {
	Id           string          `db:"id"`
	Wallet       string          `db:"wallet"`
	EventType    string          `db:"event_type"`
	AmountUsd    decimal.Decimal `db:"amount_usd"`
	Points       int64           `db:"points"`
	ReferenceId  string          `db:"reference_id"`
	BalanceAfter string          `db:"balance_after"`
	Description  string          `db:"description"`
	CreatedAt    time.Time       `db:"created_at"`
}
