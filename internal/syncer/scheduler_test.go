package syncer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSyncer counts calls and holds each one until released
type blockingSyncer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
}

func (b *blockingSyncer) Sync(ctx context.Context) error {
	b.calls.Add(1)
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return b.err
}

func TestScheduler_CoalescesTriggers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := newBlockingSyncer()
	scheduler := NewScheduler(syncer, 0)
	go scheduler.Run(ctx)

	require.True(t, scheduler.Trigger())
	<-syncer.started
	assert.True(t, scheduler.GetStatus().Running)

	// One request queues behind the running cycle, the rest are dropped
	assert.True(t, scheduler.Trigger())
	for i := 0; i < 5; i++ {
		assert.False(t, scheduler.Trigger())
	}
	assert.True(t, scheduler.GetStatus().Pending)

	close(syncer.release)
	require.Eventually(t, func() bool {
		return syncer.calls.Load() == 2 && !scheduler.GetStatus().Running
	}, time.Second, 5*time.Millisecond)

	assert.Never(t, func() bool { return syncer.calls.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	status := scheduler.GetStatus()
	assert.False(t, status.Pending)
	assert.NotNil(t, status.LastFinished)
	assert.Empty(t, status.LastError)
}

func TestScheduler_RecordsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := newBlockingSyncer()
	syncer.err = errors.New("central unreachable")
	close(syncer.release)

	scheduler := NewScheduler(syncer, 0)
	go scheduler.Run(ctx)

	require.True(t, scheduler.Trigger())
	require.Eventually(t, func() bool {
		return scheduler.GetStatus().LastFinished != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "central unreachable", scheduler.GetStatus().LastError)
}

func TestScheduler_Interval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := newBlockingSyncer()
	close(syncer.release)

	scheduler := NewScheduler(syncer, 10*time.Millisecond)
	assert.Equal(t, "10ms", scheduler.GetStatus().Interval)
	go scheduler.Run(ctx)

	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}
