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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"rwaswap-rewards/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	boxCooldown, err := getEnvDuration("BOX_COOLDOWN", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	washWindow, err := getEnvDuration("WASH_TRADE_WINDOW", time.Hour)
	if err != nil {
		return nil, err
	}

	confirmTimeout, err := getEnvDuration("PAYOUT_CONFIRM_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	confirmPoll, err := getEnvDuration("PAYOUT_CONFIRM_POLL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	reconcilerInterval, err := getEnvDuration("RECONCILER_POLLING_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	reconcilerGrace, err := getEnvDuration("RECONCILER_GRACE_PERIOD", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	reconcilerExpiry, err := getEnvDuration("RECONCILER_EXPIRY_PERIOD", time.Hour)
	if err != nil {
		return nil, err
	}

	minSwapUsd, err := getEnvDecimal("MIN_SWAP_USD", "10")
	if err != nil {
		return nil, err
	}

	minFeeUsd, err := getEnvDecimal("MIN_FEE_USD", "0.01")
	if err != nil {
		return nil, err
	}

	cashbackMinPct, err := getEnvDecimal("CASHBACK_MIN_PCT", "0.05")
	if err != nil {
		return nil, err
	}

	cashbackMaxPct, err := getEnvDecimal("CASHBACK_MAX_PCT", "0.10")
	if err != nil {
		return nil, err
	}

	dailyCapUsd, err := getEnvDecimal("DAILY_CAP_USD", "50")
	if err != nil {
		return nil, err
	}

	referralPct, err := getEnvDecimal("REFERRAL_PCT", "0.10")
	if err != nil {
		return nil, err
	}

	poolContributionPct, err := getEnvDecimal("POOL_CONTRIBUTION_PCT", "0.05")
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "rewards.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Rewards: models.RewardsConfig{
			MinSwapUsd:          minSwapUsd,
			MinFeeUsd:           minFeeUsd,
			CashbackMinPct:      cashbackMinPct,
			CashbackMaxPct:      cashbackMaxPct,
			CashbackInterval:    getEnvInt("CASHBACK_INTERVAL", 3),
			DailyCapUsd:         dailyCapUsd,
			ReferralPct:         referralPct,
			ReferralMilestone:   int64(getEnvInt("REFERRAL_MILESTONE", 2)),
			BoxCostPoints:       int64(getEnvInt("BOX_COST_POINTS", 100)),
			BoxCooldown:         boxCooldown,
			PoolContributionPct: poolContributionPct,
			WashTradeWindow:     washWindow,
			WashTradeThreshold:  getEnvInt("WASH_TRADE_THRESHOLD", 2),
		},
		Payout: models.PayoutConfig{
			ConfirmTimeout: confirmTimeout,
			ConfirmPoll:    confirmPoll,
		},
		Reconciler: models.ReconcilerConfig{
			PollingInterval: reconcilerInterval,
			GracePeriod:     reconcilerGrace,
			ExpiryPeriod:    reconcilerExpiry,
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "rwaswap-rewards"),
		},
		ChainsFile: getEnvString("CHAINS_FILE", "chains.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvString(key, defaultValue)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, raw, err)
	}
	return value, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
