package quality

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		rtt  time.Duration
		loss float64
		want Level
	}{
		{"excellent", 80 * time.Millisecond, 1, Excellent},
		{"good rtt", 150 * time.Millisecond, 1, Good},
		{"good loss", 80 * time.Millisecond, 3, Good},
		{"poor", 600 * time.Millisecond, 12, Poor},
		{"poor loss only", 50 * time.Millisecond, 8, Poor},
		{"excellent boundary rtt", 99 * time.Millisecond, 1.9, Excellent},
		{"rtt at 100ms is good", 100 * time.Millisecond, 0, Good},
		{"loss at 2 percent is good", 50 * time.Millisecond, 2, Good},
		{"rtt at 200ms is poor", 200 * time.Millisecond, 0, Poor},
		{"loss at 5 percent is poor", 150 * time.Millisecond, 5, Poor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(media.Stats{RTT: tc.rtt, LossPercent: tc.loss})
			assert.Equal(t, tc.want, got)
		})
	}
}

type fakeProvider struct {
	mu    sync.Mutex
	stats media.Stats
	err   error
	calls int
}

func (f *fakeProvider) Stats() (media.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMonitorSamplesOnInterval(t *testing.T) {
	provider := &fakeProvider{stats: media.Stats{RTT: 50 * time.Millisecond, LossPercent: 1}}

	samples := make(chan Sample, 16)
	m := NewMonitor(10*time.Millisecond, func(s Sample) { samples <- s })
	m.Start(provider)
	defer m.Stop()

	select {
	case s := <-samples:
		assert.Equal(t, Excellent, s.Level)
		assert.Equal(t, 50*time.Millisecond, s.RTT)
	case <-time.After(time.Second):
		t.Fatal("no sample produced")
	}
}

func TestMonitorStopHaltsSampling(t *testing.T) {
	provider := &fakeProvider{}
	m := NewMonitor(5*time.Millisecond, func(Sample) {})
	m.Start(provider)

	time.Sleep(30 * time.Millisecond)
	m.Stop()
	settled := provider.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, provider.callCount(), "no samples after Stop")
}

func TestMonitorRestart(t *testing.T) {
	provider := &fakeProvider{}
	samples := make(chan Sample, 16)
	m := NewMonitor(5*time.Millisecond, func(s Sample) { samples <- s })

	m.Start(provider)
	m.Stop()
	m.Start(provider)
	defer m.Stop()

	select {
	case <-samples:
	case <-time.After(time.Second):
		t.Fatal("restarted monitor produced no samples")
	}
}
