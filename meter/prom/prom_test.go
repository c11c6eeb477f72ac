package prom_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/meter/prom"
)

func TestMeter_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := prom.New(prom.WithRegisterer(reg))

	m.OnSpend(botledger.SpendEvent{UserID: "1", Model: "text", Remaining: 4})
	m.OnSpend(botledger.SpendEvent{UserID: "1", Model: "text", Remaining: 3})
	m.OnSpend(botledger.SpendEvent{UserID: "1", Model: "text", Remaining: 4, Refund: true})

	m.OnRedeem(botledger.RedeemEvent{Code: "PRO1", UserID: "1", Tier: "pro", Success: true})
	m.OnRedeem(botledger.RedeemEvent{Code: "PRO1", UserID: "2", Error: botledger.ErrPromoAlreadyUsed})
	m.OnRedeem(botledger.RedeemEvent{Code: "NOPE", UserID: "2", Error: botledger.ErrPromoNotFound})

	m.OnResult(botledger.ResultEvent{Generator: "mock", Model: "text", Success: true, Duration: 200 * time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Spend.WithLabelValues("text", "spend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Spend.WithLabelValues("text", "refund")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redeem.WithLabelValues("pro", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redeem.WithLabelValues("", "used")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redeem.WithLabelValues("", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerateDuration, "botledger_generate_duration_seconds"))
}

func TestMeter_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := prom.New(prom.WithRegisterer(reg), prom.WithNamespace("bot"))

	m.OnSpend(botledger.SpendEvent{Model: "gemini"})

	assert.Equal(t, 1, testutil.CollectAndCount(m.Spend, "bot_spend_total"))
}
