package rewards

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/store"
)

const (
	referralCodeLength   = 8
	referralCodeCharset  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I
	referralCodeAttempts = 10
)

// generateReferralCode draws a fixed-length code from a crypto-grade source.
// Ambiguous characters are excluded since codes are shared by hand.
func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = referralCodeCharset[int(b)%len(referralCodeCharset)]
	}
	return string(buf), nil
}

// CreateReferralCode returns the wallet's existing code or generates a new
// one, retrying on code collisions up to a small bound.
func (s *Service) CreateReferralCode(ctx context.Context, wallet string) (*models.ReferralCode, error) {
	wallet = strings.ToLower(wallet)

	existing, err := s.store.GetReferralCodeByWallet(ctx, wallet)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrInvalidReferralCode) {
		return nil, err
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, err
		}

		created, err := s.store.CreateReferralCode(ctx, wallet, code)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrCodeGenerationExhausted) {
			continue // code collision, draw again
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: %d attempts", store.ErrCodeGenerationExhausted, referralCodeAttempts)
}

// UseReferralCode binds the wallet to a referrer's code.
func (s *Service) UseReferralCode(ctx context.Context, wallet, code string) (*models.ReferralCode, error) {
	return s.store.UseReferralCode(ctx, strings.ToLower(wallet), code)
}
