package ringtone

import (
	"math"
	"sync"
	"time"
)

// Synthesis parameters. PCM16 mono at 48kHz, matching the call audio path.
const (
	sampleRate = 48000

	incomingFreq   = 440.0
	incomingOn     = 2 * time.Second
	incomingPeriod = 3 * time.Second
	incomingReps   = 20

	outgoingFreq   = 425.0
	outgoingOn     = 1600 * time.Millisecond
	outgoingPeriod = 6 * time.Second
	outgoingReps   = 12

	endFromFreq = 660.0
	endToFreq   = 330.0
	endDur      = 300 * time.Millisecond
)

// squareBurst renders a square wave of the given frequency and duration.
func squareBurst(freq float64, dur time.Duration) []int16 {
	n := int(float64(sampleRate) * dur.Seconds())
	out := make([]int16, n)
	period := float64(sampleRate) / freq
	for i := range out {
		if math.Mod(float64(i), period) < period/2 {
			out[i] = 8191 // quarter amplitude: square waves are harsh at full scale
		} else {
			out[i] = -8191
		}
	}
	return out
}

// sineBurst renders a softer sine wave burst.
func sineBurst(freq float64, dur time.Duration) []int16 {
	n := int(float64(sampleRate) * dur.Seconds())
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(16383 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

// descendingBurst sweeps linearly from one frequency down to another.
func descendingBurst(fromFreq, toFreq float64, dur time.Duration) []int16 {
	n := int(float64(sampleRate) * dur.Seconds())
	out := make([]int16, n)
	phase := 0.0
	for i := range out {
		progress := float64(i) / float64(n)
		freq := fromFreq + (toFreq-fromFreq)*progress
		phase += 2 * math.Pi * freq / sampleRate
		out[i] = int16(16383 * math.Sin(phase))
	}
	return out
}

// tonePattern is one repeating synthesized cue.
type tonePattern struct {
	pcm    []int16
	period time.Duration
	reps   int
}

func patternFor(cue Cue) tonePattern {
	switch cue {
	case CueIncoming:
		// Bounded to ~60s so an unanswered ring never plays forever.
		return tonePattern{pcm: squareBurst(incomingFreq, incomingOn), period: incomingPeriod, reps: incomingReps}
	case CueOutgoing:
		return tonePattern{pcm: sineBurst(outgoingFreq, outgoingOn), period: outgoingPeriod, reps: outgoingReps}
	default:
		return tonePattern{pcm: descendingBurst(endFromFreq, endToFreq, endDur), period: 0, reps: 1}
	}
}

// SynthesizedRingtone schedules repeated tone bursts on the Output.
type SynthesizedRingtone struct {
	out Output

	mu      sync.Mutex
	stop    chan struct{}
	stopPCM func()
}

func newSynthesizedRingtone(out Output) *SynthesizedRingtone {
	return &SynthesizedRingtone{out: out}
}

// Play starts the cue's repeating pattern in the background.
func (s *SynthesizedRingtone) Play(cue Cue) error {
	pat := patternFor(cue)

	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(pat, stop)
	return nil
}

func (s *SynthesizedRingtone) run(pat tonePattern, stop chan struct{}) {
	for rep := 0; rep < pat.reps; rep++ {
		select {
		case <-stop:
			return
		default:
		}

		stopPCM, err := s.out.PlayTone(pat.pcm, sampleRate)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.stopPCM = stopPCM
		s.mu.Unlock()

		if pat.period == 0 {
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(pat.period):
		}
	}
}

// Stop halts the schedule and any burst in progress.
func (s *SynthesizedRingtone) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	stopPCM := s.stopPCM
	s.stopPCM = nil
	s.mu.Unlock()
	if stopPCM != nil {
		stopPCM()
	}
}
