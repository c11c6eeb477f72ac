package botledger

import "time"

// Meter observes ledger events for monitoring/logging.
type Meter interface {
	// OnSpend is called when quota is spent or refunded.
	OnSpend(event SpendEvent)

	// OnRedeem is called for every promo redemption attempt.
	OnRedeem(event RedeemEvent)

	// OnResult is called when a generator returns through Ledger.Generate.
	OnResult(event ResultEvent)
}

// SpendEvent describes a quota movement.
type SpendEvent struct {
	UserID    string
	Model     string
	Remaining int64
	Refund    bool
}

// RedeemEvent describes a promo redemption attempt.
type RedeemEvent struct {
	Code    string
	UserID  string
	Tier    string
	Success bool
	Error   error
}

// ResultEvent describes the outcome of a generator call.
type ResultEvent struct {
	Generator string
	UserID    string
	Model     string
	Success   bool
	Duration  time.Duration
	Remaining int64
	Error     error
}

type noopMeter struct{}

func (noopMeter) OnSpend(SpendEvent)   {}
func (noopMeter) OnRedeem(RedeemEvent) {}
func (noopMeter) OnResult(ResultEvent) {}
