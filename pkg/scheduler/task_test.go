package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScreenRadar/pkg/engine"
)

type countingChecker struct {
	calls int32
	block chan struct{}
}

func (c *countingChecker) CheckAll(ctx context.Context) (engine.Summary, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.block != nil {
		<-c.block
	}
	return engine.Summary{Checked: 1}, nil
}

func TestRunOnce(t *testing.T) {
	c := &countingChecker{}
	s := NewScheduler(c, nil, "", zerolog.Nop())
	assert.Equal(t, DefaultSchedule, s.schedule)

	s.RunOnce()
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.calls))
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	c := &countingChecker{block: make(chan struct{})}
	s := NewScheduler(c, nil, "", zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.RunOnce()
		close(done)
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&c.calls) == 1 }, time.Second, time.Millisecond)

	s.RunOnce()
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.calls))

	close(c.block)
	<-done
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&countingChecker{}, nil, "not a schedule", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&countingChecker{}, nil, "@every 1h", zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop()
}

type panickingChecker struct {
	calls int32
}

func (c *panickingChecker) CheckAll(context.Context) (engine.Summary, error) {
	atomic.AddInt32(&c.calls, 1)
	panic("decimal: cannot create a Decimal from +Inf")
}

func TestPanickingPassIsRecovered(t *testing.T) {
	c := &panickingChecker{}
	s := NewScheduler(c, nil, "@every 1h", zerolog.Nop())

	assert.NotPanics(t, s.RunOnce)
	assert.NotPanics(t, s.RunOnce, "the running flag is reset after a panic")
	assert.Equal(t, int32(2), atomic.LoadInt32(&c.calls))

	require.NoError(t, s.Start())
	defer s.Stop()
	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	assert.NotPanics(t, entries[0].WrappedJob.Run)
	assert.Equal(t, int32(3), atomic.LoadInt32(&c.calls))
}
