package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/generator/mock"
)

func TestGenerator_Defaults(t *testing.T) {
	g := mock.New(mock.WithReply("pong"))

	resp, err := g.Generate(context.Background(), botledger.GenerateRequest{Model: "text", Kind: botledger.KindText})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "text", resp.Model)

	resp, err = g.Generate(context.Background(), botledger.GenerateRequest{Model: "schnell", Kind: botledger.KindImage})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Image)
	assert.Empty(t, resp.Content)

	assert.Equal(t, int64(2), g.CallCount())
	assert.Equal(t, "mock", g.Name())
}

func TestGenerator_FailAfter(t *testing.T) {
	g := mock.New(mock.WithFailAfter(1))

	_, err := g.Generate(context.Background(), botledger.GenerateRequest{})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), botledger.GenerateRequest{})
	assert.ErrorIs(t, err, botledger.ErrGeneratorUnavailable)
}

func TestGenerator_StaticError(t *testing.T) {
	boom := errors.New("boom")
	_, err := mock.New(mock.WithError(boom)).Generate(context.Background(), botledger.GenerateRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestGenerator_LatencyHonorsContext(t *testing.T) {
	g := mock.New(mock.WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, botledger.GenerateRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
