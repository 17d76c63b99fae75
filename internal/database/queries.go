/**
 * Copyright 2025-present Coinbase Global, Inc.
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

package database

const (
	// User queries
	queryGetUser = `
		SELECT wallet, points_balance, points_version, total_points_earned, total_swaps,
		       total_cashback_usd, total_referral_usd, streak_days, last_swap_date,
		       swaps_since_last_cashback, referral_code_id, referred_by_code_id,
		       last_box_opened_at, created_at, updated_at
		FROM users
		WHERE wallet = ?`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (wallet) VALUES (?)`

	// All SET expressions read the pre-update row, so the CASE decides the
	// streak and stamps the date in one atomic statement.
	queryUpdateStreak = `
		UPDATE users
		SET total_swaps = total_swaps + 1,
		    streak_days = CASE
		        WHEN last_swap_date = ? THEN streak_days
		        WHEN last_swap_date = ? THEN streak_days + 1
		        ELSE 1
		    END,
		    last_swap_date = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	// Swap queries
	querySwapColumns = `
		id, wallet, tx_hash, chain_id, from_token, from_amount, to_token, to_amount,
		swap_value_usd, fee_usd, points_earned, is_verified, is_wash_trade,
		block_number, block_time, verified_at, route_metadata, created_at`

	queryGetSwapByTxHash = `
		SELECT ` + querySwapColumns + `
		FROM swaps
		WHERE tx_hash = ?`

	queryInsertSwap = `
		INSERT INTO swaps (
			id, wallet, tx_hash, chain_id, from_token, from_amount, to_token, to_amount,
			swap_value_usd, fee_usd, points_earned, is_verified, is_wash_trade,
			block_number, block_time, verified_at, route_metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryMarkSwapVerified = `
		UPDATE swaps
		SET is_verified = 1, block_number = ?, block_time = ?, verified_at = ?, points_earned = ?
		WHERE id = ? AND is_verified = 0`

	queryFlagSwapWashTrade = `
		UPDATE swaps
		SET is_wash_trade = 1, points_earned = 0, block_number = ?, block_time = ?, verified_at = ?
		WHERE id = ? AND is_verified = 0 AND is_wash_trade = 0`

	queryCountVerifiedSwaps = `
		SELECT COUNT(*)
		FROM swaps
		WHERE wallet = ? AND is_verified = 1 AND is_wash_trade = 0`

	queryCountReversedSwaps = `
		SELECT COUNT(*)
		FROM swaps
		WHERE wallet = ? AND chain_id = ? AND from_token = ? AND to_token = ?
		  AND is_verified = 1 AND verified_at >= ?`

	// Points queries
	queryGetPointsBalance = `
		SELECT points_balance, points_version
		FROM users
		WHERE wallet = ?`

	queryUpdatePointsBalance = `
		UPDATE users
		SET points_balance = ?, points_version = points_version + 1,
		    total_points_earned = total_points_earned + ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ? AND points_version = ?`

	queryInsertLedgerEntry = `
		INSERT INTO points_ledger (id, wallet, amount, balance_after, entry_type, reference_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPointsLedger = `
		SELECT id, wallet, amount, balance_after, entry_type, reference_id, description, created_at
		FROM points_ledger
		WHERE wallet = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	// Fee / cashback queries
	queryInsertFee = `
		INSERT INTO fees (id, wallet, swap_id, fee_usd, chain_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetUnconsumedFees = `
		SELECT id, wallet, swap_id, fee_usd, chain_id, used_for_cashback, batch_id, created_at
		FROM fees
		WHERE wallet = ? AND used_for_cashback = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	queryConsumeFee = `
		UPDATE fees
		SET used_for_cashback = 1, batch_id = ?
		WHERE id = ? AND used_for_cashback = 0`

	queryClearFeeBatch = `
		UPDATE fees SET batch_id = '' WHERE batch_id = ?`

	queryUpdateCashbackCounter = `
		UPDATE users
		SET swaps_since_last_cashback = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	queryAddUserCashbackTotal = `
		UPDATE users
		SET total_cashback_usd = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	queryBatchColumns = `
		id, wallet, total_fees_usd, cashback_percentage, cashback_amount_usd,
		chain_id, status, payout_id, claimed_at, paid_at, created_at`

	queryInsertBatch = `
		INSERT INTO cashback_batches (
			id, wallet, total_fees_usd, cashback_percentage, cashback_amount_usd,
			chain_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBatch = `
		SELECT ` + queryBatchColumns + `
		FROM cashback_batches
		WHERE id = ?`

	queryReduceBatch = `
		UPDATE cashback_batches
		SET cashback_amount_usd = ?
		WHERE id = ? AND status = 'CLAIMABLE'`

	queryDeleteBatch = `
		DELETE FROM cashback_batches WHERE id = ? AND status = 'CLAIMABLE'`

	querySumDailyCashback = `
		SELECT cashback_amount_usd
		FROM cashback_batches
		WHERE wallet = ? AND status IN ('CLAIMABLE', 'CLAIMED', 'PAID')
		  AND created_at >= ? AND created_at < ? AND id != ?`

	queryListClaimableBatches = `
		SELECT ` + queryBatchColumns + `
		FROM cashback_batches
		WHERE wallet = ? AND status = 'CLAIMABLE'
		ORDER BY created_at DESC`

	querySumUnconsumedFees = `
		SELECT fee_usd
		FROM fees
		WHERE wallet = ? AND used_for_cashback = 0`

	// Referral queries
	queryCodeColumns = `
		id, code, wallet, total_referees, total_earnings_usd, claimable_earnings_usd, active, created_at`

	queryGetCodeByWallet = `
		SELECT ` + queryCodeColumns + `
		FROM referral_codes
		WHERE wallet = ?`

	queryGetCodeByCode = `
		SELECT ` + queryCodeColumns + `
		FROM referral_codes
		WHERE code = ?`

	queryGetCodeById = `
		SELECT ` + queryCodeColumns + `
		FROM referral_codes
		WHERE id = ?`

	queryInsertCode = `
		INSERT INTO referral_codes (id, code, wallet, created_at)
		VALUES (?, ?, ?, ?)`

	querySetUserOwnCode = `
		UPDATE users
		SET referral_code_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	querySetUserReferrer = `
		UPDATE users
		SET referred_by_code_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ? AND referred_by_code_id = ''`

	queryIncrementReferees = `
		UPDATE referral_codes
		SET total_referees = total_referees + 1
		WHERE id = ?`

	queryUpdateCodeTotals = `
		UPDATE referral_codes
		SET total_earnings_usd = ?, claimable_earnings_usd = ?
		WHERE id = ?`

	queryEarningColumns = `
		id, referrer_wallet, referee_wallet, code_id, swap_id, fee_usd, percentage,
		earning_amount_usd, chain_id, status, payout_id, created_at`

	queryInsertEarning = `
		INSERT INTO referral_earnings (
			id, referrer_wallet, referee_wallet, code_id, swap_id, fee_usd, percentage,
			earning_amount_usd, chain_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySumLockedForPair = `
		SELECT earning_amount_usd
		FROM referral_earnings
		WHERE referrer_wallet = ? AND referee_wallet = ? AND status = 'LOCKED'`

	queryUnlockPairEarnings = `
		UPDATE referral_earnings
		SET status = 'CLAIMABLE'
		WHERE referrer_wallet = ? AND referee_wallet = ? AND status = 'LOCKED'`

	querySumDailyReferral = `
		SELECT earning_amount_usd
		FROM referral_earnings
		WHERE referrer_wallet = ? AND status IN ('CLAIMABLE', 'CLAIMED', 'PAID')
		  AND created_at >= ? AND created_at < ?`

	queryListEarnings = `
		SELECT ` + queryEarningColumns + `
		FROM referral_earnings
		WHERE referrer_wallet = ?
		ORDER BY created_at DESC
		LIMIT ?`

	queryListClaimableEarnings = `
		SELECT ` + queryEarningColumns + `
		FROM referral_earnings
		WHERE referrer_wallet = ? AND chain_id = ? AND status = 'CLAIMABLE'
		ORDER BY created_at`

	queryClaimEarnings = `
		UPDATE referral_earnings
		SET status = 'CLAIMED', payout_id = ?
		WHERE referrer_wallet = ? AND chain_id = ? AND status = 'CLAIMABLE'`

	queryAddUserReferralTotal = `
		UPDATE users
		SET total_referral_usd = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	// Reward pool queries
	queryGetPool = `
		SELECT id, balance_usd, total_contributed_usd, total_paid_out_usd, version, updated_at
		FROM reward_pool
		WHERE id = ?`

	queryUpdatePool = `
		UPDATE reward_pool
		SET balance_usd = ?, total_contributed_usd = ?, total_paid_out_usd = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	// Mystery box queries
	queryInsertBox = `
		INSERT INTO mystery_boxes (id, wallet, points_spent, rarity, payout_usd, status, chain_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBox = `
		SELECT id, wallet, points_spent, rarity, payout_usd, status, chain_id, payout_id, created_at
		FROM mystery_boxes
		WHERE id = ?`

	queryListBoxes = `
		SELECT id, wallet, points_spent, rarity, payout_usd, status, chain_id, payout_id, created_at
		FROM mystery_boxes
		WHERE wallet = ?
		ORDER BY created_at DESC
		LIMIT ?`

	querySetBoxPayout = `
		UPDATE mystery_boxes
		SET payout_id = ?
		WHERE id = ? AND payout_id = ''`

	queryStampBoxOpen = `
		UPDATE users
		SET last_box_opened_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet = ?`

	// Payout queries
	queryPayoutColumns = `
		id, wallet, payout_type, amount_usd, chain_id, token_address, status, tx_hash,
		idempotency_key, reference_id, failure_reason, approved_at, paid_at, created_at, updated_at`

	queryInsertPayout = `
		INSERT INTO payouts (
			id, wallet, payout_type, amount_usd, chain_id, token_address, status,
			reference_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayout = `
		SELECT ` + queryPayoutColumns + `
		FROM payouts
		WHERE id = ?`

	queryListPayoutsByStatus = `
		SELECT ` + queryPayoutColumns + `
		FROM payouts
		WHERE status = ?
		ORDER BY created_at
		LIMIT ?`

	queryListAllPayouts = `
		SELECT ` + queryPayoutColumns + `
		FROM payouts
		ORDER BY created_at DESC
		LIMIT ?`

	// The status guard in the WHERE clause is the non-reentrancy anchor:
	// zero rows affected means someone else already moved the payout on.
	queryMarkPayoutProcessing = `
		UPDATE payouts
		SET status = 'PROCESSING', idempotency_key = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'PENDING'`

	queryCompletePayout = `
		UPDATE payouts
		SET status = 'COMPLETED', tx_hash = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'PROCESSING'`

	queryFailPayout = `
		UPDATE payouts
		SET status = 'FAILED', failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('PENDING', 'PROCESSING')`

	queryApprovePayout = `
		UPDATE payouts
		SET approved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'PENDING'`

	queryRejectPayout = `
		UPDATE payouts
		SET status = 'FAILED', failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'PENDING'`

	// Source-record settlement on payout completion / release on failure.
	queryMarkBatchPaid = `
		UPDATE cashback_batches SET status = 'PAID', paid_at = ? WHERE payout_id = ?`

	queryReleaseBatch = `
		UPDATE cashback_batches SET status = 'CLAIMABLE', payout_id = '', claimed_at = NULL WHERE payout_id = ?`

	queryClaimBatch = `
		UPDATE cashback_batches
		SET status = 'CLAIMED', payout_id = ?, claimed_at = ?
		WHERE id = ? AND status = 'CLAIMABLE'`

	queryMarkEarningsPaid = `
		UPDATE referral_earnings SET status = 'PAID' WHERE payout_id = ?`

	queryReleaseEarnings = `
		UPDATE referral_earnings SET status = 'CLAIMABLE', payout_id = '' WHERE payout_id = ?`

	queryMarkBoxPaid = `
		UPDATE mystery_boxes SET status = 'PAID' WHERE payout_id = ?`

	queryReleaseBox = `
		UPDATE mystery_boxes SET payout_id = '' WHERE payout_id = ?`

	// Event queries
	queryInsertEvent = `
		INSERT INTO reward_events (id, wallet, event_type, amount_usd, points, reference_id, balance_after, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListEvents = `
		SELECT id, wallet, event_type, amount_usd, points, reference_id, balance_after, description, created_at
		FROM reward_events
		WHERE wallet = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`
)
