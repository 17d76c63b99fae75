package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Rewards    RewardsConfig
	Payout     PayoutConfig
	Reconciler ReconcilerConfig
	Formance   FormanceConfig
	ChainsFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// RewardsConfig holds the reward policy knobs. Defaults are set in
// config.Load; all USD values are decimals.
type RewardsConfig struct {
	MinSwapUsd          decimal.Decimal
	MinFeeUsd           decimal.Decimal
	CashbackMinPct      decimal.Decimal
	CashbackMaxPct      decimal.Decimal
	CashbackInterval    int
	DailyCapUsd         decimal.Decimal
	ReferralPct         decimal.Decimal
	ReferralMilestone   int64
	BoxCostPoints       int64
	BoxCooldown         time.Duration
	PoolContributionPct decimal.Decimal
	WashTradeWindow     time.Duration
	WashTradeThreshold  int
}

// PayoutConfig holds settlement settings for the payout executor.
type PayoutConfig struct {
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
}

// ReconcilerConfig holds settings for the stuck-payout reconciler.
type ReconcilerConfig struct {
	PollingInterval time.Duration
	GracePeriod     time.Duration
	ExpiryPeriod    time.Duration
}

// FormanceConfig holds the optional audit-mirror ledger settings.
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}
