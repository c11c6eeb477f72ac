package botledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeCode canonicalizes a promo code: codes are case-insensitive and
// stored upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem activates a promo code for the user: the code is marked used by
// userID and the user moves to the code's tier with a fresh quota table.
// History is kept. The check and both writes form one transaction, so a code
// can be redeemed at most once even under concurrent attempts.
func (l *Ledger) Redeem(ctx context.Context, code, userID string) (TierInfo, error) {
	code = NormalizeCode(code)
	if err := checkUser("redeem", userID); err != nil {
		return TierInfo{}, err
	}
	if code == "" {
		return TierInfo{}, wrapErr("redeem", userID, "", ErrInvalidCode)
	}

	var tier string
	err := l.store.Update(ctx, Scope{UserID: userID, PromoCode: code}, func(tx Tx) error {
		tier = ""
		promo, ok, err := tx.Promo(code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPromoNotFound
		}
		if promo.Used {
			return ErrPromoAlreadyUsed
		}
		def, err := l.tiers.Lookup(promo.Tier)
		if err != nil {
			return err
		}

		acc, _, err := l.loadOrSeed(tx, userID)
		if err != nil {
			return err
		}
		grant(&acc, promo.Tier, def)

		promo.Used = true
		promo.UsedBy = UserID(userID)
		if err := tx.PutPromo(code, promo); err != nil {
			return err
		}
		tier = promo.Tier
		return tx.PutAccount(userID, acc)
	})

	l.meter.OnRedeem(RedeemEvent{Code: code, UserID: userID, Tier: tier, Success: err == nil, Error: err})
	if err != nil {
		return TierInfo{}, wrapErr("redeem", userID, "", err)
	}
	return l.tiers.Info(tier)
}

// CreatePromo registers an unused code granting tier.
func (l *Ledger) CreatePromo(ctx context.Context, code, tier string) error {
	code = NormalizeCode(code)
	if code == "" {
		return fmt.Errorf("botledger: create promo: %w", ErrInvalidCode)
	}
	if _, err := l.tiers.Lookup(tier); err != nil {
		return fmt.Errorf("botledger: create promo %s: %w", code, err)
	}

	err := l.store.Update(ctx, Scope{PromoCode: code}, func(tx Tx) error {
		_, exists, err := tx.Promo(code)
		if err != nil {
			return err
		}
		if exists {
			return ErrPromoExists
		}
		return tx.PutPromo(code, PromoCode{Tier: tier})
	})
	if err != nil {
		return fmt.Errorf("botledger: create promo %s: %w", code, err)
	}
	return nil
}

// GeneratePromos creates n fresh codes for tier, shaped like BASIC1A2B3C4D.
// A negative n is an error; zero yields no codes.
func (l *Ledger) GeneratePromos(ctx context.Context, tier string, n int) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("botledger: generate promos: invalid count %d", n)
	}
	codes := make([]string, 0, n)
	for len(codes) < n {
		suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		code := NormalizeCode(tier + suffix)

		err := l.CreatePromo(ctx, code, tier)
		if errors.Is(err, ErrPromoExists) {
			continue
		}
		if err != nil {
			return codes, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Promo returns the stored record of a code.
func (l *Ledger) Promo(ctx context.Context, code string) (PromoCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return PromoCode{}, fmt.Errorf("botledger: promo: %w", ErrInvalidCode)
	}

	var (
		promo PromoCode
		found bool
	)
	err := l.store.View(ctx, Scope{PromoCode: code}, func(tx Tx) error {
		p, ok, err := tx.Promo(code)
		promo, found = p, ok
		return err
	})
	if err != nil {
		return PromoCode{}, fmt.Errorf("botledger: promo %s: %w", code, err)
	}
	if !found {
		return PromoCode{}, fmt.Errorf("botledger: promo %s: %w", code, ErrPromoNotFound)
	}
	return promo, nil
}
