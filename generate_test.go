package botledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bl "github.com/ineyio/botledger"
	"github.com/ineyio/botledger/generator/mock"
)

func TestGenerate_TextRecordsHistory(t *testing.T) {
	m := &recordingMeter{}
	l := newTestLedger(t, bl.WithMeter(m))
	ctx := context.Background()

	var seen bl.GenerateRequest
	gen := mock.New(mock.WithResponseFunc(func(req bl.GenerateRequest) (bl.GenerateResponse, error) {
		seen = req
		return bl.GenerateResponse{Content: "hello back"}, nil
	}))

	res, err := l.Generate(ctx, "1", "text", "hello", gen)
	require.NoError(t, err)
	assert.Equal(t, "hello back", res.Response.Content)
	assert.Equal(t, int64(4), res.Remaining)

	assert.Equal(t, bl.KindText, seen.Kind)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, bl.RoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "hello", seen.Messages[1].Content)

	msgs, err := l.History(ctx, "1", "text")
	require.NoError(t, err)
	assert.Equal(t, []bl.Message{
		{Role: bl.RoleUser, Content: "hello"},
		{Role: bl.RoleAssistant, Content: "hello back"},
	}, msgs)

	// The next call carries the history.
	_, err = l.Generate(ctx, "1", "text", "again", gen)
	require.NoError(t, err)
	assert.Len(t, seen.Messages, 4)

	require.Len(t, m.results, 2)
	assert.True(t, m.results[0].Success)
	assert.Equal(t, "mock", m.results[0].Generator)
	require.Len(t, m.spends, 2)
}

func TestGenerate_ImageSkipsHistory(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	gen := mock.New()

	res, err := l.Generate(ctx, "1", "schnell", "a cat", gen)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response.Image)
	assert.Equal(t, int64(1), res.Remaining)

	msgs, err := l.History(ctx, "1", "schnell")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGenerate_RefundsOnFailure(t *testing.T) {
	m := &recordingMeter{}
	l := newTestLedger(t, bl.WithMeter(m))
	ctx := context.Background()
	boom := errors.New("upstream down")

	_, err := l.Generate(ctx, "1", "claude_opus", "hi", mock.New(mock.WithError(boom)))
	assert.ErrorIs(t, err, boom)

	var le *bl.LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "generate", le.Op)

	n, err := l.Remaining(ctx, "1", "claude_opus")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs, err := l.History(ctx, "1", "claude_opus")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.Len(t, m.results, 1)
	assert.False(t, m.results[0].Success)
	assert.ErrorIs(t, m.results[0].Error, boom)
}

func TestGenerate_RefundsOnCancel(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())

	gen := mock.New(mock.WithResponseFunc(func(bl.GenerateRequest) (bl.GenerateResponse, error) {
		cancel()
		return bl.GenerateResponse{}, context.Canceled
	}))

	_, err := l.Generate(ctx, "1", "text", "hi", gen)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := l.Remaining(context.Background(), "1", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestGenerate_Exhausted(t *testing.T) {
	l := newTestLedger(t)
	gen := mock.New()

	_, err := l.Generate(context.Background(), "1", "dev", "a dog", gen)
	assert.ErrorIs(t, err, bl.ErrQuotaExhausted)
	assert.Equal(t, int64(0), gen.CallCount())
}
