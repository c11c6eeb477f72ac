package botledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bl "github.com/ineyio/botledger"
	"github.com/ineyio/botledger/meter"
	"github.com/ineyio/botledger/store/memory"
)

func newTestLedger(t *testing.T, opts ...bl.Option) *bl.Ledger {
	t.Helper()
	opts = append([]bl.Option{bl.WithMeter(&meter.NoopMeter{})}, opts...)
	l, err := bl.NewLedger(memory.New(), opts...)
	require.NoError(t, err)
	return l
}

// recordingMeter keeps every event it sees.
type recordingMeter struct {
	mu      sync.Mutex
	spends  []bl.SpendEvent
	redeems []bl.RedeemEvent
	results []bl.ResultEvent
}

func (m *recordingMeter) OnSpend(e bl.SpendEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spends = append(m.spends, e)
}

func (m *recordingMeter) OnRedeem(e bl.RedeemEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redeems = append(m.redeems, e)
}

func (m *recordingMeter) OnResult(e bl.ResultEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, e)
}

func TestNewLedger_Validation(t *testing.T) {
	_, err := bl.NewLedger(nil)
	assert.Error(t, err)

	_, err = bl.NewLedger(memory.New(), bl.WithDefaultTier("gold"))
	assert.ErrorIs(t, err, bl.ErrTierUnknown)

	_, err = bl.NewLedger(memory.New(), bl.WithHistoryLimit(7))
	assert.Error(t, err)

	_, err = bl.NewLedger(memory.New(), bl.WithHistoryLimit(0))
	assert.Error(t, err)
}

func TestAccount_ProvisionsFreeTier(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acc, err := l.Account(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, bl.TierFree, acc.Tier)
	assert.Equal(t, bl.DefaultTiers()[bl.TierFree].Limits, acc.Limits)
	assert.Empty(t, acc.History)

	// Provisioning persisted the account.
	snap, err := l.Store().(bl.Exporter).Export(ctx)
	require.NoError(t, err)
	assert.Contains(t, snap.Users, "1001")
}

func TestAccount_ReturnsCopy(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	acc, err := l.Account(ctx, "1")
	require.NoError(t, err)
	acc.Limits["text"] = 1000

	n, err := l.Remaining(ctx, "1", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestEmptyUserIDRejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Account(ctx, "")
	assert.ErrorIs(t, err, bl.ErrInvalidUserID)
	_, err = l.Decrement(ctx, "", "text")
	assert.ErrorIs(t, err, bl.ErrInvalidUserID)
	_, err = l.Redeem(ctx, "CODE", "")
	assert.ErrorIs(t, err, bl.ErrInvalidUserID)
}

func TestHasQuota(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.HasQuota(ctx, "1", "text")
	require.NoError(t, err)
	assert.True(t, ok)

	// Free tier has zero dev requests and no sd3 key at all.
	ok, err = l.HasQuota(ctx, "1", "dev")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.HasQuota(ctx, "1", "sd3")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.HasQuota(ctx, "1", "no-such-model")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecrement_ToZero(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Account(ctx, "1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ok, err := l.Decrement(ctx, "1", "text")
		require.NoError(t, err)
		assert.True(t, ok, "decrement %d", i)
	}

	ok, err := l.HasQuota(ctx, "1", "text")
	require.NoError(t, err)
	assert.False(t, ok)

	// Clamped at zero.
	ok, err = l.Decrement(ctx, "1", "text")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := l.Remaining(ctx, "1", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDecrement_UnknownUserOrModel(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.Decrement(ctx, "ghost", "text")
	require.NoError(t, err)
	assert.False(t, ok)

	// Decrement does not provision.
	snap, err := l.Store().(bl.Exporter).Export(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snap.Users, "ghost")

	_, err = l.Account(ctx, "1")
	require.NoError(t, err)
	ok, err = l.Decrement(ctx, "1", "sd3")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.TryDecrement(ctx, "1", "sd3")
	assert.ErrorIs(t, err, bl.ErrModelKeyUnknown)
	_, err = l.TryDecrement(ctx, "ghost", "text")
	assert.ErrorIs(t, err, bl.ErrAccountNotFound)

	var le *bl.LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "decrement", le.Op)
	assert.Equal(t, "ghost", le.UserID)
}

func TestDecrement_EmitsSpend(t *testing.T) {
	m := &recordingMeter{}
	l := newTestLedger(t, bl.WithMeter(m))
	ctx := context.Background()

	_, err := l.Account(ctx, "1")
	require.NoError(t, err)
	left, err := l.TryDecrement(ctx, "1", "gemini")
	require.NoError(t, err)
	assert.Equal(t, int64(2), left)

	require.Len(t, m.spends, 1)
	assert.Equal(t, bl.SpendEvent{UserID: "1", Model: "gemini", Remaining: 2}, m.spends[0])
}

func TestReserve_RollbackRestores(t *testing.T) {
	m := &recordingMeter{}
	l := newTestLedger(t, bl.WithMeter(m))
	ctx := context.Background()

	res, err := l.Reserve(ctx, "1", "claude_opus")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Remaining)
	assert.NotEmpty(t, res.ID)

	_, err = l.Reserve(ctx, "1", "claude_opus")
	assert.ErrorIs(t, err, bl.ErrQuotaExhausted)

	require.NoError(t, l.Rollback(ctx, res))
	n, err := l.Remaining(ctx, "1", "claude_opus")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, m.spends, 1)
	assert.True(t, m.spends[0].Refund)
}

func TestReserve_Concurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve(ctx, "1", "llama")
			if err == nil {
				successCount.Add(1)
				assert.NoError(t, l.Commit(ctx, res))
			} else {
				assert.ErrorIs(t, err, bl.ErrQuotaExhausted)
			}
		}()
	}
	wg.Wait()

	// Free tier grants 4 llama requests.
	assert.Equal(t, int64(4), successCount.Load())
	n, err := l.Remaining(ctx, "1", "llama")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDecrement_ConcurrentUsers(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := range 10 {
		user := fmt.Sprint(u)
		_, err := l.Account(ctx, user)
		require.NoError(t, err)
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Decrement(ctx, user, "text")
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for u := range 10 {
		n, err := l.Remaining(ctx, fmt.Sprint(u), "text")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	}
}

func TestApplyTier(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.AppendHistory(ctx, "1", "text", "hi", "hello"))
	_, err := l.Decrement(ctx, "1", "text")
	require.NoError(t, err)

	require.NoError(t, l.ApplyTier(ctx, "1", bl.TierUltra))

	acc, err := l.Account(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, bl.TierUltra, acc.Tier)
	assert.Equal(t, int64(250), acc.Limits["text"])
	assert.Len(t, acc.History["text"], 2)

	// The account holds a copy of the tier table.
	_, err = l.Decrement(ctx, "1", "text")
	require.NoError(t, err)
	info, err := l.DescribeTier(bl.TierUltra)
	require.NoError(t, err)
	assert.Equal(t, int64(250), info.Limits["text"])

	err = l.ApplyTier(ctx, "1", "gold")
	assert.ErrorIs(t, err, bl.ErrTierUnknown)
}

func TestApplyTier_Unlimited(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.ApplyTier(ctx, "1", bl.TierUnlimited))
	for _, m := range l.Catalog() {
		n, err := l.Remaining(ctx, "1", m.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(bl.UnlimitedQuota), n, m.Key)
	}
}

func TestApplyTier_UnlimitedCoversCustomCatalog(t *testing.T) {
	catalog := append(bl.DefaultCatalog(), bl.ModelSpec{Key: "mistral", Name: "Mistral", Kind: bl.KindText})
	l := newTestLedger(t, bl.WithCatalog(catalog))
	ctx := context.Background()

	require.NoError(t, l.ApplyTier(ctx, "1", bl.TierUnlimited))
	n, err := l.Remaining(ctx, "1", "mistral")
	require.NoError(t, err)
	assert.Equal(t, int64(bl.UnlimitedQuota), n)

	// Paid tiers keep their fixed tables.
	require.NoError(t, l.ApplyTier(ctx, "2", bl.TierPro))
	n, err = l.Remaining(ctx, "2", "mistral")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTierNames(t *testing.T) {
	l := newTestLedger(t)
	assert.Equal(t, []string{"free", "basic", "pro", "ultra", "unlimited"}, l.TierNames())

	_, err := l.DescribeTier("gold")
	assert.ErrorIs(t, err, bl.ErrTierUnknown)
}

func TestCustomTiers(t *testing.T) {
	tiers := bl.Tiers{
		"trial": {Name: "Trial", Price: "0", Limits: map[string]int64{"text": 1}},
		"vip":   {Name: "VIP", Price: "1 RUB", Limits: map[string]int64{"text": 9}},
	}
	l := newTestLedger(t, bl.WithTiers(tiers), bl.WithDefaultTier("trial"))
	ctx := context.Background()

	// The ledger copied the table.
	tiers["trial"].Limits["text"] = 100

	n, err := l.Remaining(ctx, "1", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"trial", "vip"}, l.TierNames())
}
