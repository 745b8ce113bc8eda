package infra

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

const persistTimeout = 5 * time.Second

// Persister writes snapshots in the background. Only the newest pending
// snapshot is kept, so Submit never blocks and bursts collapse into one write.
type Persister struct {
	store  domain.StateStore
	logger *zap.Logger
	slot   chan domain.Snapshot
	done   chan struct{}

	// OnError, if set, is called after every failed save.
	OnError func(error)
	// OnSaved, if set, is called after every successful save.
	OnSaved func(domain.Snapshot)
}

// NewPersister creates a persister for store.
func NewPersister(store domain.StateStore, logger *zap.Logger) *Persister {
	return &Persister{
		store:  store,
		logger: logger,
		slot:   make(chan domain.Snapshot, 1),
		done:   make(chan struct{}),
	}
}

// Submit queues snap, replacing any snapshot not yet written.
func (p *Persister) Submit(snap domain.Snapshot) {
	for {
		select {
		case p.slot <- snap:
			return
		default:
		}
		select {
		case <-p.slot:
		default:
		}
	}
}

// Run writes queued snapshots until ctx is canceled, then flushes the last
// pending one.
func (p *Persister) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			select {
			case snap := <-p.slot:
				p.save(snap)
			default:
			}
			return
		case snap := <-p.slot:
			p.save(snap)
		}
	}
}

// Done is closed once Run has returned.
func (p *Persister) Done() <-chan struct{} {
	return p.done
}

func (p *Persister) save(snap domain.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.store.Save(ctx, snap); err != nil {
		p.logger.Warn("failed to persist state", zap.Error(err))
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}
	if p.OnSaved != nil {
		p.OnSaved(snap)
	}
}
