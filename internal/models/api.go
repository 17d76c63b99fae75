package models

import "github.com/shopspring/decimal"

// SwapResult summarizes what a verified swap earned.
type SwapResult struct {
	SwapId            string
	PointsEarned      int64
	CashbackTriggered bool
	CashbackBatchId   string
	CashbackUsd       decimal.Decimal
	ReferralEarningId string
	SwapsUntilNext    int
}

// RewardsOverview is the per-wallet read model for the UI.
type RewardsOverview struct {
	Wallet               string
	PointsBalance        int64
	TotalPointsEarned    int64
	TotalSwaps           int64
	StreakDays           int64
	TotalCashbackUsd     decimal.Decimal
	TotalReferralUsd     decimal.Decimal
	ClaimableCashbackUsd decimal.Decimal
	ClaimableReferralUsd decimal.Decimal
	RecentEvents         []RewardEvent
}

// CashbackProgress reports where the wallet sits in the 3-swap cadence.
type CashbackProgress struct {
	Wallet           string
	SwapsSinceLast   int64
	SwapsUntilNext   int
	PendingFeesUsd   decimal.Decimal
	ClaimableBatches []CashbackBatch
}

// ReferralStats is the referrer-facing read model.
type ReferralStats struct {
	Code                 string
	Active               bool
	TotalReferees        int64
	TotalEarningsUsd     decimal.Decimal
	ClaimableEarningsUsd decimal.Decimal
	LockedEarningsUsd    decimal.Decimal
	Earnings             []ReferralEarning
}

// MysteryBoxInfo is the box-facing read model.
type MysteryBoxInfo struct {
	PoolBalanceUsd    decimal.Decimal
	BoxCostPoints     int64
	PointsBalance     int64
	CooldownRemaining string
	RecentBoxes       []MysteryBox
}
