package botledger

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrAccountNotFound  = errors.New("botledger: account not found")
	ErrInvalidUserID    = errors.New("botledger: empty user id")
	ErrModelKeyUnknown  = errors.New("botledger: model key unknown")
	ErrPromoNotFound    = errors.New("botledger: promo code not found")
	ErrPromoAlreadyUsed = errors.New("botledger: promo code already used")
	ErrPromoExists      = errors.New("botledger: promo code already exists")
	ErrTierUnknown      = errors.New("botledger: tier unknown")
	ErrQuotaExhausted   = errors.New("botledger: quota exhausted")
	ErrInvalidCode      = errors.New("botledger: invalid promo code")
	ErrStoreIO          = errors.New("botledger: store i/o failure")
	ErrOutOfScope       = errors.New("botledger: key outside transaction scope")

	ErrGeneratorUnavailable = errors.New("botledger: generator unavailable")
	ErrRateLimited          = errors.New("botledger: rate limited")
	ErrAuthFailed           = errors.New("botledger: authentication failed")
	ErrInvalidRequest       = errors.New("botledger: invalid request")
)

// LedgerError wraps an error with the operation context.
type LedgerError struct {
	Op     string
	UserID string
	Model  string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("botledger: %s user=%s: %v", e.Op, e.UserID, e.Err)
	}
	return fmt.Sprintf("botledger: %s user=%s model=%s: %v", e.Op, e.UserID, e.Model, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// IsStoreFailure returns true if the error came from durable storage.
// Such errors must abort the caller's action: the ledger could not record it.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreIO)
}

// StoreError wraps err with ErrStoreIO unless it already carries it.
func StoreError(op string, err error) error {
	if err == nil || errors.Is(err, ErrStoreIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreIO, op, err)
}
