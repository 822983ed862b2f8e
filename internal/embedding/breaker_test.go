package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{MaxFailures: 2}, zerolog.Nop())
	ctx := context.Background()
	boom := errors.New("boom")

	fail := func() ([]float64, error) { return nil, boom }

	_, err := b.Execute(ctx, fail)
	assert.ErrorIs(t, err, boom)
	_, err = b.Execute(ctx, fail)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, "open", b.State())

	// Open circuit fails fast without calling fn.
	called := false
	_, err = b.Execute(ctx, func() ([]float64, error) {
		called = true
		return []float64{1}, nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, called)
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{}, zerolog.Nop())

	vector, err := b.Execute(context.Background(), func() ([]float64, error) {
		return []float64{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vector)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHonoursCancelledContext(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Execute(ctx, func() ([]float64, error) {
		return []float64{1}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
