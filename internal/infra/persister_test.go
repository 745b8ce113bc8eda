package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// blockingStore lets the test hold Save until released
type blockingStore struct {
	mu      sync.Mutex
	saved   []domain.Snapshot
	release chan struct{}
	err     error
}

func (s *blockingStore) Load(context.Context) (*domain.Snapshot, error) { return nil, nil }
func (s *blockingStore) Close() error                                   { return nil }

func (s *blockingStore) Save(_ context.Context, snap domain.Snapshot) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, snap)
	return nil
}

func (s *blockingStore) Saved() []domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Snapshot(nil), s.saved...)
}

func TestPersister_SubmitNeverBlocks(t *testing.T) {
	p := NewPersister(&blockingStore{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Submit(domain.Snapshot{EmergencyUnlockCount: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked without a running writer")
	}

	snap := <-p.slot
	assert.Equal(t, 999, snap.EmergencyUnlockCount, "only the newest snapshot is kept")
}

func TestPersister_CoalescesWhileWriting(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	p := NewPersister(store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.Submit(domain.Snapshot{EmergencyUnlockCount: 1})
	// Give the writer time to pick up the first snapshot and block in Save.
	require.Eventually(t, func() bool { return len(p.slot) == 0 }, time.Second, time.Millisecond)

	for i := 2; i <= 10; i++ {
		p.Submit(domain.Snapshot{EmergencyUnlockCount: i})
	}
	close(store.release)

	require.Eventually(t, func() bool { return len(store.Saved()) == 2 }, time.Second, time.Millisecond)
	saved := store.Saved()
	assert.Equal(t, 1, saved[0].EmergencyUnlockCount)
	assert.Equal(t, 10, saved[1].EmergencyUnlockCount)

	cancel()
	<-p.Done()
}

func TestPersister_FlushesOnShutdown(t *testing.T) {
	store := &blockingStore{}
	p := NewPersister(store, zap.NewNop())
	p.Submit(domain.Snapshot{EmergencyUnlockCount: 7})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	saved := store.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, 7, saved[0].EmergencyUnlockCount)
}

func TestPersister_ReportsErrors(t *testing.T) {
	store := &blockingStore{err: errors.New("disk full")}
	p := NewPersister(store, zap.NewNop())

	var got error
	p.OnError = func(err error) { got = err }
	p.save(domain.Snapshot{})

	assert.EqualError(t, got, "disk full")
}
