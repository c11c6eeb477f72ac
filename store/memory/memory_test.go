package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/store/memory"
)

func TestUpdate_CommitsWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.Update(ctx, botledger.Scope{UserID: "1", PromoCode: "P"}, func(tx botledger.Tx) error {
		_, ok, err := tx.Account("1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, tx.PutAccount("1", botledger.Account{Tier: "free", Limits: map[string]int64{"text": 1}}))
		require.NoError(t, tx.PutPromo("P", botledger.PromoCode{Tier: "pro"}))

		// Reads see the transaction's own writes.
		acc, ok, err := tx.Account("1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), acc.Limits["text"])
		return nil
	})
	require.NoError(t, err)

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "free", snap.Users["1"].Tier)
	assert.Equal(t, "pro", snap.Promocodes["P"].Tier)
}

func TestUpdate_ErrorDiscardsWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, botledger.UserScope("1"), func(tx botledger.Tx) error {
		require.NoError(t, tx.PutAccount("1", botledger.Account{Tier: "free"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Users)
}

func TestScopeEnforced(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.Update(ctx, botledger.UserScope("1"), func(tx botledger.Tx) error {
		_, _, err := tx.Account("2")
		assert.ErrorIs(t, err, botledger.ErrOutOfScope)
		assert.ErrorIs(t, tx.PutPromo("P", botledger.PromoCode{}), botledger.ErrOutOfScope)
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, botledger.UserScope("1"), func(tx botledger.Tx) error {
		return tx.PutAccount("1", botledger.Account{})
	})
	assert.Error(t, err)
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	fail := false
	var persisted []botledger.Snapshot
	s := memory.New(memory.WithPersister(func(snap botledger.Snapshot) error {
		if fail {
			return errors.New("disk full")
		}
		persisted = append(persisted, snap.Clone())
		return nil
	}))
	ctx := context.Background()

	put := func(n int64) error {
		return s.Update(ctx, botledger.UserScope("1"), func(tx botledger.Tx) error {
			return tx.PutAccount("1", botledger.Account{Tier: "free", Limits: map[string]int64{"text": n}})
		})
	}

	require.NoError(t, put(5))
	require.Len(t, persisted, 1)

	fail = true
	err := put(4)
	assert.ErrorIs(t, err, botledger.ErrStoreIO)
	assert.True(t, botledger.IsStoreFailure(err))

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Users["1"].Limits["text"])
}

func TestReadsReturnCopies(t *testing.T) {
	snap := botledger.NewSnapshot()
	snap.Users["1"] = botledger.Account{Tier: "free", Limits: map[string]int64{"text": 5}}
	s := memory.New(memory.WithSnapshot(snap))
	ctx := context.Background()

	// The store copied the initial snapshot.
	snap.Users["1"].Limits["text"] = 0

	err := s.View(ctx, botledger.UserScope("1"), func(tx botledger.Tx) error {
		acc, ok, err := tx.Account("1")
		require.True(t, ok)
		acc.Limits["text"] = 99
		return err
	})
	require.NoError(t, err)

	out, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Users["1"].Limits["text"])
}

func TestImport(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	snap := botledger.NewSnapshot()
	snap.Users["1"] = botledger.Account{Tier: "pro"}
	snap.Promocodes["X"] = botledger.PromoCode{Tier: "pro", Used: true, UsedBy: "1"}
	require.NoError(t, s.Import(ctx, snap))

	out, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, out)
}

func TestCancelledContext(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, botledger.UserScope("1"), func(botledger.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
