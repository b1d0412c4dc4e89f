package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewTickerScheduler(10 * time.Millisecond)
	require.NoError(t, s.Start(context.Background(), func(time.Time) { runs.Add(1) }))
	require.NoError(t, s.Start(context.Background(), func(time.Time) { t.Error("second Start must not register a job") }))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	require.NoError(t, s.Stop(context.Background()))
}

func TestTickerSchedulerNeverOverlaps(t *testing.T) {
	t.Parallel()

	var active, maxActive atomic.Int32
	s := NewTickerScheduler(time.Millisecond)
	require.NoError(t, s.Start(context.Background(), func(time.Time) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	}))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestTickerSchedulerRejectsBadInterval(t *testing.T) {
	t.Parallel()

	require.Error(t, NewTickerScheduler(0).Start(context.Background(), func(time.Time) {}))
	require.NoError(t, NewTickerScheduler(0).Start(context.Background(), nil))
}
