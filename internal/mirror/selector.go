package mirror

import (
	"context"
	"time"

	"github.com/blikvm/kvm-update/pkg/logger"
)

// Prober measures the average round-trip time to a host.
type Prober interface {
	AverageRTT(ctx context.Context, host string, count int, timeout time.Duration) (float64, bool)
}

// Selection is the outcome of source selection.
type Selection struct {
	Chosen       Mirror
	Fallback     Mirror
	Forced       bool
	Measurements Measurements
}

// Swap exchanges the chosen and fallback mirrors after a fallback attempt
// succeeded.
func (s *Selection) Swap() {
	s.Chosen, s.Fallback = s.Fallback, s.Chosen
}

// Selector picks the mirror to use for an update run.
type Selector struct {
	prober    Prober
	endpoints Endpoints
	count     int
	timeout   time.Duration
	log       *logger.Logger
}

// NewSelector creates a selector probing each endpoint host count times.
func NewSelector(prober Prober, endpoints Endpoints, count int, timeout time.Duration, log *logger.Logger) *Selector {
	return &Selector{
		prober:    prober,
		endpoints: endpoints,
		count:     count,
		timeout:   timeout,
		log:       log,
	}
}

// Select returns the forced mirror untouched, otherwise probes every mirror
// in turn and picks the lowest average latency.
func (s *Selector) Select(ctx context.Context, forced Mirror) Selection {
	if forced != "" {
		s.log.Infof("Source specified by user: %s", forced)
		return Selection{
			Chosen:       forced,
			Fallback:     forced.Other(),
			Forced:       true,
			Measurements: Measurements{},
		}
	}

	measurements := s.Measure(ctx)
	chosen := Choose(measurements)

	s.log.WithFields(logger.Fields{
		"measurements": measurements.String(),
		"chosen":       chosen,
	}).Infof("Ping results (avg ms): %s -> choose %s", measurements, chosen)

	return Selection{
		Chosen:       chosen,
		Fallback:     chosen.Other(),
		Measurements: measurements,
	}
}

// Measure probes every mirror sequentially.
func (s *Selector) Measure(ctx context.Context) Measurements {
	measurements := make(Measurements, len(All))
	for _, m := range All {
		host := s.endpoints[m].Host
		if host == "" {
			continue
		}
		if avg, ok := s.prober.AverageRTT(ctx, host, s.count, s.timeout); ok {
			measurements[m] = avg
		}
	}
	return measurements
}

// Choose applies the selection rule to measured latencies.
func Choose(measurements Measurements) Mirror {
	var (
		best  Mirror
		bestV float64
	)
	for _, m := range All {
		v, ok := measurements[m]
		if !ok {
			continue
		}
		if best == "" || v < bestV {
			best, bestV = m, v
		}
	}
	if best == "" {
		return Default
	}
	return best
}
