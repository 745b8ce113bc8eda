package infra

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// DefaultNoticeCapacity is how many notices NoticeLog keeps.
const DefaultNoticeCapacity = 100

// NoticeLog is a bounded in-memory notifier. Old notices are overwritten once
// capacity is reached. Every notice is also logged.
type NoticeLog struct {
	mu     sync.Mutex
	buf    []domain.Notice
	next   int
	full   bool
	seq    uint64
	logger *zap.Logger
}

var _ domain.Notifier = (*NoticeLog)(nil)

// NewNoticeLog creates a notice log holding up to capacity entries.
func NewNoticeLog(capacity int, logger *zap.Logger) *NoticeLog {
	if capacity <= 0 {
		capacity = DefaultNoticeCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeLog{buf: make([]domain.Notice, capacity), logger: logger}
}

// Notify records n. It never blocks on readers.
func (l *NoticeLog) Notify(n domain.Notice) {
	l.logger.Info("notice",
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message))

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = n
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.seq++
}

// Recent returns up to limit notices, oldest first. limit <= 0 returns all.
func (l *NoticeLog) Recent(limit int) []domain.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Notice
	if l.full {
		out = append(out, l.buf[l.next:]...)
	}
	out = append(out, l.buf[:l.next]...)

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Total returns how many notices were ever recorded.
func (l *NoticeLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
