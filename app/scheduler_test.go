package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"combolift/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(5*time.Millisecond, func(context.Context) { calls.Add(1) })

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)

	s.Stop()
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	s.Stop()
}

func TestScheduler_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	s := NewScheduler(time.Hour, func(context.Context) { calls.Add(1) })

	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	s.Stop()
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_RejectsBadSetup(t *testing.T) {
	err := NewScheduler(0, func(context.Context) {}).Start(context.Background())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	err = NewScheduler(time.Second, nil).Start(context.Background())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
