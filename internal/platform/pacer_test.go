package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerZeroSpacingIsNoop(t *testing.T) {
	p := newPacer(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerSpacesConsecutiveCalls(t *testing.T) {
	p := newPacer(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background())) // first call is free
	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPacerIdleResetsSpacing(t *testing.T) {
	p := newPacer(20 * time.Millisecond)

	require.NoError(t, p.Wait(context.Background()))
	time.Sleep(40 * time.Millisecond)

	// Spacing already elapsed while idle; the next call must not block.
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestPacerRespectsContextCancellation(t *testing.T) {
	p := newPacer(time.Minute)

	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
