package meter

import "github.com/ineyio/botledger"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ botledger.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnSpend(botledger.SpendEvent)   {}
func (m *NoopMeter) OnRedeem(botledger.RedeemEvent) {}
func (m *NoopMeter) OnResult(botledger.ResultEvent) {}
