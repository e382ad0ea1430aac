package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/sony/gobreaker"
)

// Breakers holds one circuit breaker per mirror. Once a mirror has failed
// MaxFailures consecutive requests, further requests to it in this run fail
// immediately with gobreaker.ErrOpenState instead of waiting for timeouts.
type Breakers struct {
	breakers map[Mirror]*gobreaker.CircuitBreaker
}

// BreakerSettings configures NewBreakers.
type BreakerSettings struct {
	// Scope prefixes breaker names in state change logs, e.g. "api" or "download".
	Scope       string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// ErrPermanent marks a failure that says nothing about mirror health, such
// as a 404 for an unpublished asset. It does not count toward tripping.
var ErrPermanent = errors.New("permanent failure")

// NewBreakers creates a closed breaker for every mirror.
func NewBreakers(settings BreakerSettings, log *logger.Logger) *Breakers {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 2
	}

	b := &Breakers{breakers: make(map[Mirror]*gobreaker.CircuitBreaker, len(All))}
	for _, m := range All {
		name := string(m)
		if settings.Scope != "" {
			name = settings.Scope + "/" + name
		}
		b.breakers[m] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warnf("Mirror %s circuit breaker state changed from %v to %v", name, from, to)
			},
		})
	}
	return b
}

// Execute runs fn through the breaker of m.
func (b *Breakers) Execute(m Mirror, fn func() error) error {
	cb, ok := b.breakers[m]
	if !ok {
		return fn()
	}
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State reports the breaker state of m.
func (b *Breakers) State(m Mirror) gobreaker.State {
	if cb, ok := b.breakers[m]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}
