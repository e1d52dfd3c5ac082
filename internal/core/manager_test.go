package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(ttl time.Duration, max int) (*SessionManager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewSessionManager(ttl, max)
	m.now = clock.Now
	return m, clock
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(time.Hour, 10)

	s, err := m.Create()
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID())
	assert.NoError(t, err, "session ids are uuids")

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_Expiry(t *testing.T) {
	m, clock := newTestManager(time.Hour, 10)
	s, err := m.Create()
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = m.Get(s.ID())
	require.NoError(t, err, "activity extends the session")

	clock.Advance(59 * time.Minute)
	_, err = m.Get(s.ID())
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Count())
}

func TestSessionManager_Limit(t *testing.T) {
	m, clock := newTestManager(time.Hour, 2)

	_, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)

	clock.Advance(2 * time.Hour)
	_, err = m.Create()
	require.NoError(t, err, "expired sessions are swept to make room")
	assert.Equal(t, 1, m.Count())
}

func TestSessionManager_GetOrCreate(t *testing.T) {
	m, _ := newTestManager(time.Hour, 10)

	s, created, err := m.GetOrCreate("")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.GetOrCreate(s.ID())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, again)

	other, created, err := m.GetOrCreate("stale-id")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, s.ID(), other.ID())
}

func TestSessionManager_Delete(t *testing.T) {
	m, _ := newTestManager(time.Hour, 10)
	s, err := m.Create()
	require.NoError(t, err)

	m.Delete(s.ID())
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_JanitorStops(t *testing.T) {
	m, clock := newTestManager(time.Minute, 10)
	_, err := m.Create()
	require.NoError(t, err)
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	m.StartJanitor(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
}

func TestSession_ConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	s := twoFileSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				s.Reconcile(ctx)
			case 1:
				_ = s.Choose(ctx, "amount", CustomizeOption, "total")
			case 2:
				_, _ = s.Apply(ctx)
			default:
				_, _ = s.ExportTable(ctx)
			}
		}(i)
	}
	wg.Wait()

	view := s.Reconcile(ctx)
	assert.NotEmpty(t, view.Groups)
}
