package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// SystemClock implements domain.Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) domain.Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

var _ domain.Clock = SystemClock{}
