package rewards

import (
	"context"
	"fmt"
	"strings"

	"rwaswap-rewards/internal/models"
)

// ClaimRequest selects which reward a wallet is converting into a payout.
// One concrete type per reward kind; the orchestrator type-switches.
type ClaimRequest interface {
	claimRequest()
}

// CashbackClaim claims a single CLAIMABLE cashback batch.
type CashbackClaim struct {
	BatchId string
}

// ReferralClaim claims every CLAIMABLE referral earning settling on one
// chain. Earnings on other chains are left for a future claim.
type ReferralClaim struct {
	ChainId int64
}

// MysteryBoxClaim claims an OPENED mystery box payout.
type MysteryBoxClaim struct {
	BoxId string
}

func (CashbackClaim) claimRequest()   {}
func (ReferralClaim) claimRequest()   {}
func (MysteryBoxClaim) claimRequest() {}

// Claim converts a claimable reward into a PENDING payout. The source
// record flips to CLAIMED and the payout is created in one store
// transaction, so a crash can never leave a claimed reward without its
// payout or vice versa.
func (s *Service) Claim(ctx context.Context, wallet string, req ClaimRequest) (*models.Payout, error) {
	wallet = strings.ToLower(wallet)

	switch r := req.(type) {
	case CashbackClaim:
		return s.store.ClaimCashback(ctx, wallet, r.BatchId)
	case ReferralClaim:
		return s.store.ClaimReferral(ctx, wallet, r.ChainId)
	case MysteryBoxClaim:
		return s.store.ClaimMysteryBox(ctx, wallet, r.BoxId)
	default:
		return nil, fmt.Errorf("unknown claim request type %T", req)
	}
}
