// Package quality samples the active call and classifies its health.
package quality

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
)

// Level is the connection health classification.
type Level string

const (
	Excellent    Level = "excellent"
	Good         Level = "good"
	Poor         Level = "poor"
	Disconnected Level = "disconnected"
)

// Sample is one classified measurement.
type Sample struct {
	Level       Level
	RTT         time.Duration
	LossPercent float64
}

// Classify maps raw numbers to a level.
func Classify(s media.Stats) Level {
	switch {
	case s.RTT < 100*time.Millisecond && s.LossPercent < 2:
		return Excellent
	case s.RTT < 200*time.Millisecond && s.LossPercent < 5:
		return Good
	default:
		return Poor
	}
}

// StatsProvider supplies one measurement per call. The active peer
// session implements it.
type StatsProvider interface {
	Stats() (media.Stats, error)
}

// Monitor polls a StatsProvider on a fixed interval once the call is
// connected and reports each classified sample.
type Monitor struct {
	interval time.Duration
	onSample func(Sample)

	mu   sync.Mutex
	stop chan struct{}
}

// NewMonitor builds a monitor firing onSample per poll. A zero interval
// gets the 2s default.
func NewMonitor(interval time.Duration, onSample func(Sample)) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{interval: interval, onSample: onSample}
}

// Start begins polling. A second Start without Stop restarts the loop
// against the new provider.
func (m *Monitor) Start(provider StatsProvider) {
	m.Stop()

	m.mu.Lock()
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go m.run(provider, stop)
}

func (m *Monitor) run(provider StatsProvider, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats, err := provider.Stats()
			if err != nil {
				log.Warn().Err(err).Msg("quality sample failed")
				continue
			}
			m.onSample(Sample{Level: Classify(stats), RTT: stats.RTT, LossPercent: stats.LossPercent})
		}
	}
}

// Stop halts polling immediately. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.mu.Unlock()
}
