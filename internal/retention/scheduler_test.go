package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeDeleter struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
	panics  bool
}

func (f *fakeDeleter) DeleteWebhookLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.panics {
		panic("boom")
	}
	return f.deleted, f.err
}

func (f *fakeDeleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler(&fakeDeleter{}, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultMaxAge, s.maxAge)
	assert.False(t, s.Running())

	_, err = NewScheduler(nil, logging.NewNop())
	assert.ErrorContains(t, err, "deleter cannot be nil")

	_, err = NewScheduler(&fakeDeleter{}, nil)
	assert.ErrorContains(t, err, "logger cannot be nil")

	s, err = NewScheduler(&fakeDeleter{}, logging.NewNop(), WithInterval(time.Hour), WithMaxAge(0))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.interval)
	assert.Equal(t, DefaultMaxAge, s.maxAge)
}

func TestRunOnce_UsesThirtyDayCutoff(t *testing.T) {
	d := &fakeDeleter{deleted: 7}
	tl := logging.NewTestLogger()
	s, err := NewScheduler(d, tl.Logger)
	require.NoError(t, err)
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.Len(t, d.cutoffs, 1)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), d.cutoffs[0])
	tl.AssertField(t, "cleaned up old webhook logs", "deleted", int64(7))
}

func TestRunOnce_Error(t *testing.T) {
	s, err := NewScheduler(&fakeDeleter{err: errors.New("db down")}, logging.NewNop())
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestScheduler_StartStop(t *testing.T) {
	d := &fakeDeleter{}
	s, err := NewScheduler(d, logging.NewNop(), WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	assert.ErrorContains(t, s.Start(), "already running")

	assert.Eventually(t, func() bool { return d.calls() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	require.NoError(t, s.Stop())

	after := d.calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, d.calls())

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
}

func TestScheduler_SurvivesPanickingSweep(t *testing.T) {
	d := &fakeDeleter{panics: true}
	tl := logging.NewTestLogger()
	s, err := NewScheduler(d, tl.Logger, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return d.calls() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
	require.NoError(t, s.Stop())
	tl.AssertLogged(t, zapcore.ErrorLevel, "retention sweep panicked")
}
