package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/meter"
)

func TestLogMeter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := meter.NewLogMeter(logger)

	m.OnSpend(botledger.SpendEvent{UserID: "7", Model: "text", Remaining: 4, Refund: true})
	m.OnRedeem(botledger.RedeemEvent{Code: "PRO1", UserID: "7", Tier: "pro", Success: true})
	m.OnResult(botledger.ResultEvent{
		Generator: "mock",
		UserID:    "7",
		Model:     "text",
		Duration:  time.Second,
		Error:     errors.New("boom"),
	})

	out := buf.String()
	assert.Contains(t, out, "msg=refund")
	assert.Contains(t, out, "remaining=4")
	assert.Contains(t, out, "msg=redeem")
	assert.Contains(t, out, "tier=pro")
	assert.Contains(t, out, "msg=result_error")
	assert.Contains(t, out, "error=boom")
}

func TestNewLogMeter_NilLogger(t *testing.T) {
	m := meter.NewLogMeter(nil)
	assert.NotNil(t, m.Logger)
}

func TestNoopMeter(t *testing.T) {
	var m botledger.Meter = &meter.NoopMeter{}
	m.OnSpend(botledger.SpendEvent{})
	m.OnRedeem(botledger.RedeemEvent{})
	m.OnResult(botledger.ResultEvent{})
}
