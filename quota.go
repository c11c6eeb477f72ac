package botledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Account returns a copy of the user's account, creating and persisting it
// on the default tier if the user has never been seen.
func (l *Ledger) Account(ctx context.Context, userID string) (Account, error) {
	acc, err := l.account(ctx, userID)
	if err != nil {
		return Account{}, wrapErr("account", userID, "", err)
	}
	return acc, nil
}

// HasQuota reports whether the user has at least one request left for model.
// Unknown model keys have no quota. A first-time user is provisioned.
func (l *Ledger) HasQuota(ctx context.Context, userID, model string) (bool, error) {
	acc, err := l.account(ctx, userID)
	if err != nil {
		return false, wrapErr("has_quota", userID, model, err)
	}
	return acc.Limits[model] > 0, nil
}

// Remaining returns the requests left for model. A first-time user is provisioned.
func (l *Ledger) Remaining(ctx context.Context, userID, model string) (int64, error) {
	acc, err := l.account(ctx, userID)
	if err != nil {
		return 0, wrapErr("remaining", userID, model, err)
	}
	return acc.Limits[model], nil
}

func (l *Ledger) account(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, ErrInvalidUserID
	}

	var (
		acc   Account
		found bool
	)
	err := l.store.View(ctx, UserScope(userID), func(tx Tx) error {
		a, ok, err := tx.Account(userID)
		acc, found = a, ok
		return err
	})
	if err != nil {
		return Account{}, err
	}
	if found {
		return acc, nil
	}

	// Lazy provisioning. Another caller may have created the account
	// between View and Update; loadOrSeed keeps theirs.
	err = l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		a, created, err := l.loadOrSeed(tx, userID)
		if err != nil {
			return err
		}
		acc = a
		if created {
			return tx.PutAccount(userID, a)
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

// TryDecrement spends one request of model and returns what is left.
// It fails with ErrAccountNotFound for unseen users, ErrModelKeyUnknown when
// the account has no counter for model, and ErrQuotaExhausted at zero.
// Counters never go below zero.
func (l *Ledger) TryDecrement(ctx context.Context, userID, model string) (int64, error) {
	if err := checkUser("decrement", userID); err != nil {
		return 0, err
	}

	var remaining int64
	err := l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		acc, ok, err := tx.Account(userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAccountNotFound
		}
		n, ok := acc.Limits[model]
		if !ok {
			return ErrModelKeyUnknown
		}
		if n <= 0 {
			return ErrQuotaExhausted
		}
		acc.Limits[model] = n - 1
		remaining = n - 1
		return tx.PutAccount(userID, acc)
	})
	if err != nil {
		return 0, wrapErr("decrement", userID, model, err)
	}

	l.meter.OnSpend(SpendEvent{UserID: userID, Model: model, Remaining: remaining})
	return remaining, nil
}

// Decrement spends one request of model. It returns false, without error,
// when the user has no account, no counter for model, or nothing left.
// Only store failures are reported as errors.
func (l *Ledger) Decrement(ctx context.Context, userID, model string) (bool, error) {
	_, err := l.TryDecrement(ctx, userID, model)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrModelKeyUnknown),
		errors.Is(err, ErrQuotaExhausted):
		return false, nil
	default:
		return false, err
	}
}

// Reserve atomically checks and spends one request of model, provisioning a
// first-time user. It returns ErrQuotaExhausted when nothing is left.
// A reservation must be finished with Commit or Rollback.
func (l *Ledger) Reserve(ctx context.Context, userID, model string) (Reservation, error) {
	if err := checkUser("reserve", userID); err != nil {
		return Reservation{}, err
	}

	var (
		remaining int64
		exhausted bool
	)
	err := l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		remaining, exhausted = 0, false
		acc, created, err := l.loadOrSeed(tx, userID)
		if err != nil {
			return err
		}
		n := acc.Limits[model]
		if n <= 0 {
			exhausted = true
			if created {
				return tx.PutAccount(userID, acc)
			}
			return nil
		}
		acc.Limits[model] = n - 1
		remaining = n - 1
		return tx.PutAccount(userID, acc)
	})
	if err != nil {
		return Reservation{}, wrapErr("reserve", userID, model, err)
	}
	if exhausted {
		return Reservation{}, wrapErr("reserve", userID, model, ErrQuotaExhausted)
	}

	return Reservation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Model:     model,
		Remaining: remaining,
	}, nil
}

// Commit finalizes a reservation. The quota was already taken by Reserve.
func (l *Ledger) Commit(_ context.Context, res Reservation) error {
	l.meter.OnSpend(SpendEvent{UserID: res.UserID, Model: res.Model, Remaining: res.Remaining})
	return nil
}

// Rollback returns the request held by a reservation.
func (l *Ledger) Rollback(ctx context.Context, res Reservation) error {
	var remaining int64
	refunded := false
	err := l.store.Update(ctx, UserScope(res.UserID), func(tx Tx) error {
		refunded = false
		acc, ok, err := tx.Account(res.UserID)
		if err != nil || !ok {
			return err
		}
		if acc.Limits == nil {
			acc.Limits = make(map[string]int64)
		}
		acc.Limits[res.Model]++
		remaining = acc.Limits[res.Model]
		refunded = true
		return tx.PutAccount(res.UserID, acc)
	})
	if err != nil {
		return wrapErr("rollback", res.UserID, res.Model, err)
	}
	if refunded {
		l.meter.OnSpend(SpendEvent{UserID: res.UserID, Model: res.Model, Remaining: remaining, Refund: true})
	}
	return nil
}
