// Package prom exports ledger events as Prometheus metrics.
package prom

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ineyio/botledger"
)

// Meter records ledger events into Prometheus collectors.
type Meter struct {
	Spend            *prometheus.CounterVec
	Redeem           *prometheus.CounterVec
	GenerateDuration *prometheus.HistogramVec
}

var _ botledger.Meter = (*Meter)(nil)

// Option configures Meter.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	namespace  string
}

// WithRegisterer sets where collectors are registered
// (default prometheus.DefaultRegisterer).
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithNamespace sets the metric name prefix (default "botledger").
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// New creates a Meter and registers its collectors.
// It panics if they are already registered, like promauto.
func New(opts ...Option) *Meter {
	o := options{
		registerer: prometheus.DefaultRegisterer,
		namespace:  "botledger",
	}
	for _, opt := range opts {
		opt(&o)
	}
	f := promauto.With(o.registerer)

	return &Meter{
		Spend: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "spend_total",
				Help:      "Quota movements by model",
			},
			[]string{"model", "kind"}, // spend, refund
		),
		Redeem: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "redeem_total",
				Help:      "Promo code redemption attempts",
			},
			[]string{"tier", "outcome"}, // ok, not_found, used, error
		),
		GenerateDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "generate_duration_seconds",
				Help:      "Generator call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"generator", "model", "outcome"},
		),
	}
}

func (m *Meter) OnSpend(e botledger.SpendEvent) {
	kind := "spend"
	if e.Refund {
		kind = "refund"
	}
	m.Spend.WithLabelValues(e.Model, kind).Inc()
}

func (m *Meter) OnRedeem(e botledger.RedeemEvent) {
	m.Redeem.WithLabelValues(e.Tier, redeemOutcome(e)).Inc()
}

func (m *Meter) OnResult(e botledger.ResultEvent) {
	outcome := "ok"
	if !e.Success {
		outcome = "error"
	}
	m.GenerateDuration.WithLabelValues(e.Generator, e.Model, outcome).Observe(e.Duration.Seconds())
}

func redeemOutcome(e botledger.RedeemEvent) string {
	switch {
	case e.Success:
		return "ok"
	case errors.Is(e.Error, botledger.ErrPromoNotFound):
		return "not_found"
	case errors.Is(e.Error, botledger.ErrPromoAlreadyUsed):
		return "used"
	default:
		return "error"
	}
}
