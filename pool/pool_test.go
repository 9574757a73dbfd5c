package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/testutil"
)

func newTestPool(clock *testutil.Clock, capacity int) *Pool {
	return New(func(o *Options) {
		o.Capacity = capacity
		o.Now = clock.Now
	})
}

func TestPool_CreateGetDelete(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 2)

	sess, err := p.Create("AI safety", core.Protocol{}, testutil.Participants(2))
	require.NoError(t, err)
	assert.Equal(t, core.PhaseInitialization, sess.Phase())
	assert.Equal(t, core.DefaultProtocol, sess.Protocol())

	got, err := p.Get(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	var hooked []EvictReason
	p.OnEvict(func(s *core.Session, r EvictReason) { hooked = append(hooked, r) })

	require.NoError(t, p.Delete(sess.ID()))
	assert.True(t, sess.Closed())
	assert.Equal(t, []EvictReason{ReasonDeleted}, hooked)

	_, err = p.Get(sess.ID())
	require.ErrorIs(t, err, core.ErrSessionNotFound)
	require.ErrorIs(t, p.Delete(sess.ID()), core.ErrSessionNotFound)
}

func TestPool_CreateRequiresParticipants(t *testing.T) {
	p := New()
	_, err := p.Create("t", core.DefaultProtocol, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestPool_CapacityExceeded(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 2)

	for range 2 {
		_, err := p.Create("t", core.DefaultProtocol, testutil.Participants(1))
		require.NoError(t, err)
	}
	_, err := p.Create("t", core.DefaultProtocol, testutil.Participants(1))
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, 2, p.Len())
}

func TestPool_EvictsIdleAtCapacity(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 2)

	old, err := p.Create("old", core.DefaultProtocol, testutil.Participants(1))
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	fresh, err := p.Create("fresh", core.DefaultProtocol, testutil.Participants(1))
	require.NoError(t, err)

	var evicted []string
	p.OnEvict(func(s *core.Session, r EvictReason) {
		assert.Equal(t, ReasonIdle, r)
		evicted = append(evicted, s.ID())
	})

	clock.Advance(11 * time.Minute)
	_, err = p.Get(fresh.ID())
	require.NoError(t, err)

	third, err := p.Create("third", core.DefaultProtocol, testutil.Participants(1))
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID()}, evicted)
	assert.True(t, old.Closed())
	assert.NotEqual(t, old.ID(), third.ID())
	assert.Equal(t, 2, p.Len())

	_, err = old.RecordStatement(core.Statement{ParticipantID: "p1", Content: "late"})
	require.ErrorIs(t, err, core.ErrSessionClosed)
}

func TestPool_Sweep(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 5)
	a, _ := p.Create("a", core.DefaultProtocol, testutil.Participants(1))
	clock.Advance(DefaultIdleTimeout)
	b, _ := p.Create("b", core.DefaultProtocol, testutil.Participants(1))

	assert.Equal(t, 0, p.Sweep())
	clock.Advance(time.Second)
	assert.Equal(t, 1, p.Sweep())

	_, err := p.Peek(a.ID())
	require.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = p.Peek(b.ID())
	require.NoError(t, err)
}

func TestPool_PeekDoesNotTouch(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 1)
	sess, _ := p.Create("a", core.DefaultProtocol, testutil.Participants(1))
	created := sess.LastActivity()

	clock.Advance(time.Minute)
	_, err := p.Peek(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, created, sess.LastActivity())

	_, err = p.Get(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), sess.LastActivity())
}

func TestPool_Stats(t *testing.T) {
	clock := testutil.NewClock()
	p := newTestPool(clock, 3)
	sess, _ := p.Create("AI safety", core.DefaultProtocol, testutil.Participants(2))
	clock.Advance(5 * time.Second)
	_, err := sess.RecordStatement(core.Statement{ParticipantID: "p1", Content: "hi"})
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, sess.ID(), stats[0].ID)
	assert.Equal(t, 1, stats[0].Size)
	assert.Equal(t, 2, stats[0].Participants)
	assert.Equal(t, 7*time.Second, stats[0].Age)
	assert.Equal(t, 2*time.Second, stats[0].Idle)
}

func TestPool_NeverExceedsCapacityConcurrently(t *testing.T) {
	p := New(func(o *Options) { o.Capacity = 4 })

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Create(fmt.Sprintf("topic %d", i), core.DefaultProtocol, testutil.Participants(1))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				full++
				return
			}
			ok++
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
	assert.Equal(t, 16, full)
	assert.Equal(t, 4, p.Len())
}

func TestPool_IDsNotReused(t *testing.T) {
	ids := []string{"dup", "dup", "other"}
	i := 0
	p := New(func(o *Options) {
		o.NewID = func() string { id := ids[i]; i++; return id }
	})

	a, err := p.Create("a", core.DefaultProtocol, testutil.Participants(1))
	require.NoError(t, err)
	b, err := p.Create("b", core.DefaultProtocol, testutil.Participants(1))
	require.NoError(t, err)
	assert.Equal(t, "dup", a.ID())
	assert.Equal(t, "other", b.ID())
}
