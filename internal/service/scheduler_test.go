package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/storefront-sync/internal/errs"
	"github.com/and161185/storefront-sync/internal/model"
)

type countingSync struct {
	mu       sync.Mutex
	seen     []uuid.UUID
	errFor   map[uuid.UUID]error
	inFlight int32
	peak     int32
}

func (c *countingSync) Sync(_ context.Context, id uuid.UUID, _ int) (model.SyncRun, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, id)
	return model.SyncRun{}, c.errFor[id]
}

func accountsFixture(n int) []*model.Account {
	out := make([]*model.Account, n)
	for i := range out {
		out[i] = &model.Account{ID: uuid.Must(uuid.NewV4()), IsActive: true, Status: model.StatusOffline}
	}
	return out
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()
	accs := accountsFixture(5)
	accs[3].IsActive = false
	accs[4].Status = model.StatusSyncing

	cs := &countingSync{errFor: map[uuid.UUID]error{
		accs[1].ID: errs.ErrSyncInProgress,
		accs[2].ID: errs.E(errs.KindPrivacy, 0, "PRIVATE_PROFILE", "", nil),
	}}
	s := NewScheduler(newFakeAccounts(accs...), cs, time.Minute, 2, nil)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.ElementsMatch(t, []uuid.UUID{accs[0].ID, accs[1].ID, accs[2].ID}, cs.seen)
	require.LessOrEqual(t, atomic.LoadInt32(&cs.peak), int32(2))
}

func TestScheduler_RunOnceListError(t *testing.T) {
	t.Parallel()
	accounts := newFakeAccounts()
	accounts.listErr = errors.New("db down")
	s := NewScheduler(accounts, &countingSync{}, time.Minute, 1, nil)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
}

func TestScheduler_RunDisabled(t *testing.T) {
	t.Parallel()
	cs := &countingSync{}
	s := NewScheduler(newFakeAccounts(accountsFixture(1)...), cs, 0, 1, nil)
	require.NoError(t, s.Run(context.Background()))
	require.Empty(t, cs.seen)
}

func TestScheduler_RunTicksUntilCancelled(t *testing.T) {
	t.Parallel()
	cs := &countingSync{}
	s := NewScheduler(newFakeAccounts(accountsFixture(1)...), cs, 10*time.Millisecond, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		return len(cs.seen) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
