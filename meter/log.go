package meter

import (
	"log/slog"

	"github.com/ineyio/botledger"
)

// LogMeter logs ledger events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ botledger.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnSpend(e botledger.SpendEvent) {
	msg := "spend"
	if e.Refund {
		msg = "refund"
	}
	m.Logger.Debug(msg,
		"user", e.UserID,
		"model", e.Model,
		"remaining", e.Remaining,
	)
}

func (m *LogMeter) OnRedeem(e botledger.RedeemEvent) {
	if e.Success {
		m.Logger.Info("redeem",
			"code", e.Code,
			"user", e.UserID,
			"tier", e.Tier,
		)
	} else {
		m.Logger.Warn("redeem_error",
			"code", e.Code,
			"user", e.UserID,
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnResult(e botledger.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"generator", e.Generator,
			"user", e.UserID,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"remaining", e.Remaining,
		)
	} else {
		m.Logger.Warn("result_error",
			"generator", e.Generator,
			"user", e.UserID,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}
