// Package history holds the append-only ledger of finished detox sessions.
package history

import (
	"iter"
	"sync"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// Ledger is an append-only, insertion-ordered record list. It exposes no
// update or delete; corrections are new records.
type Ledger struct {
	mu      sync.RWMutex
	records []domain.LockSession
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// NewLedgerFrom seeds a ledger with previously persisted records.
func NewLedgerFrom(records []domain.LockSession) *Ledger {
	l := &Ledger{records: make([]domain.LockSession, len(records))}
	copy(l.records, records)
	return l
}

// Append adds a record at the end.
func (l *Ledger) Append(rec domain.LockSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// All yields records oldest first. Each call starts from the beginning and
// sees the records present when iteration reaches them.
func (l *Ledger) All() iter.Seq[domain.LockSession] {
	return func(yield func(domain.LockSession) bool) {
		for i := 0; ; i++ {
			l.mu.RLock()
			if i >= len(l.records) {
				l.mu.RUnlock()
				return
			}
			rec := l.records[i]
			l.mu.RUnlock()

			if !yield(rec) {
				return
			}
		}
	}
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of every record, for persistence.
func (l *Ledger) Records() []domain.LockSession {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LockSession, len(l.records))
	copy(out, l.records)
	return out
}

// Summary aggregates the ledger for statistics views.
type Summary struct {
	Sessions     int                    `json:"sessions"`
	TotalMinutes int                    `json:"total_minutes"`
	ByOutcome    map[domain.Outcome]int `json:"by_outcome"`
}

// Summarize walks the ledger once.
func (l *Ledger) Summarize() Summary {
	s := Summary{ByOutcome: make(map[domain.Outcome]int)}
	for rec := range l.All() {
		s.Sessions++
		s.TotalMinutes += rec.DurationMinutes
		s.ByOutcome[rec.Outcome]++
	}
	return s
}
