package ringtone

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingOutput captures playback requests without producing audio.
type recordingOutput struct {
	mu       sync.Mutex
	assets   []string
	tones    [][]int16
	volume   float64
	assetErr error
	stops    int
}

func (r *recordingOutput) PlayAsset(url string, loopStart, loopEnd time.Duration) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assetErr != nil {
		return nil, r.assetErr
	}
	r.assets = append(r.assets, url)
	return r.countStop, nil
}

func (r *recordingOutput) PlayTone(pcm []int16, sampleRate int) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tones = append(r.tones, pcm)
	return r.countStop, nil
}

func (r *recordingOutput) SetVolume(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = v
}

func (r *recordingOutput) countStop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *recordingOutput) toneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tones)
}

func (r *recordingOutput) assetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestIncomingPattern(t *testing.T) {
	pat := patternFor(CueIncoming)
	assert.Len(t, pat.pcm, 2*sampleRate, "incoming burst is 2s of samples")
	assert.Equal(t, 3*time.Second, pat.period)
	assert.Equal(t, 20, pat.reps)

	// Square wave: every sample sits at one of the two rails.
	for _, s := range pat.pcm[:100] {
		if s != 8191 && s != -8191 {
			t.Fatalf("incoming tone is not a square wave, sample %d", s)
		}
	}
}

func TestOutgoingPattern(t *testing.T) {
	pat := patternFor(CueOutgoing)
	assert.Len(t, pat.pcm, sampleRate*16/10, "outgoing burst is 1.6s of samples")
	assert.Equal(t, 6*time.Second, pat.period)
	assert.Equal(t, 12, pat.reps)
}

func TestEndPattern(t *testing.T) {
	pat := patternFor(CueEnd)
	assert.Len(t, pat.pcm, sampleRate*3/10, "end cue is 0.3s of samples")
	assert.Equal(t, 1, pat.reps, "end cue plays once")
}

func TestPlayerSynthesizedCue(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(out)

	p.Play(CueOutgoing)
	waitFor(t, func() bool { return out.toneCount() == 1 })
	p.Stop()
}

func TestPlayerExclusivePlayback(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(out)

	p.Play(CueOutgoing)
	waitFor(t, func() bool { return out.toneCount() == 1 })
	p.Play(CueIncoming)
	waitFor(t, func() bool { return out.toneCount() >= 2 })
	p.Stop()

	out.mu.Lock()
	stops := out.stops
	out.mu.Unlock()
	assert.GreaterOrEqual(t, stops, 1, "starting a new cue stops the previous one")
}

func TestPlayerPrefersConfiguredAsset(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(out)
	p.Configure(AssetConfig{URL: "https://cdn.example.com/ring.mp3", LoopStart: time.Second, LoopEnd: 4 * time.Second})

	p.Play(CueIncoming)
	waitFor(t, func() bool { return out.assetCount() == 1 })
	assert.Zero(t, out.toneCount(), "asset playback replaces the synthesized tone")
	p.Stop()
}

func TestPlayerFallsBackToSynthOnAssetFailure(t *testing.T) {
	out := &recordingOutput{assetErr: errors.New("decode failed")}
	p := NewPlayer(out)
	p.Configure(AssetConfig{URL: "https://cdn.example.com/broken.mp3"})

	p.Play(CueIncoming)
	waitFor(t, func() bool { return out.toneCount() >= 1 })
	p.Stop()
}

func TestPlayerAssetIgnoredForOutgoing(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(out)
	p.Configure(AssetConfig{URL: "https://cdn.example.com/ring.mp3"})

	p.Play(CueOutgoing)
	waitFor(t, func() bool { return out.toneCount() >= 1 })
	assert.Zero(t, out.assetCount())
	p.Stop()
}

func TestVolumeClamped(t *testing.T) {
	out := &recordingOutput{}
	p := NewPlayer(out)

	p.SetVolume(1.8)
	assert.Equal(t, 1.0, p.Volume())
	p.SetVolume(-0.2)
	assert.Equal(t, 0.0, p.Volume())
	p.SetVolume(0.4)
	assert.Equal(t, 0.4, p.Volume())

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Equal(t, 0.4, out.volume, "volume forwards to the output")
}

func TestAssetRingtoneRejectsOtherCues(t *testing.T) {
	ar := newAssetRingtone(&recordingOutput{}, AssetConfig{URL: "x"})
	require.Error(t, ar.Play(CueEnd))
}
