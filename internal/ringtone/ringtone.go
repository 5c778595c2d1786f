// Package ringtone produces the audible cues for incoming, outgoing and
// ended calls. Playback goes through a platform Output primitive; the
// package only decides what to play and when.
package ringtone

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cue selects which audible pattern to play.
type Cue string

const (
	CueIncoming Cue = "incoming"
	CueOutgoing Cue = "outgoing"
	CueEnd      Cue = "end"
)

// Output is the platform audio playback primitive.
type Output interface {
	// PlayAsset starts looped playback of an audio asset between the trim
	// points. loopEnd zero means play to the asset's end. The returned stop
	// function halts playback.
	PlayAsset(url string, loopStart, loopEnd time.Duration) (stop func(), err error)
	// PlayTone plays one synthesized PCM burst. The returned stop function
	// halts it early.
	PlayTone(pcm []int16, sampleRate int) (stop func(), err error)
	// SetVolume scales all playback by v in 0..1.
	SetVolume(v float64)
}

// Ringtone is one playback strategy.
type Ringtone interface {
	Play(cue Cue) error
	Stop()
}

// AssetConfig is the user-selected incoming ringtone.
type AssetConfig struct {
	URL       string
	LoopStart time.Duration
	LoopEnd   time.Duration
}

// Player owns cue playback. At most one ringtone (or preview) plays at a
// time; starting a new one stops whatever else is audible.
type Player struct {
	out Output

	mu     sync.Mutex
	asset  AssetConfig
	active Ringtone
	volume float64
}

func NewPlayer(out Output) *Player {
	out.SetVolume(1)
	return &Player{out: out, volume: 1}
}

// Configure sets the incoming-call asset and its loop trim.
func (p *Player) Configure(cfg AssetConfig) {
	p.mu.Lock()
	p.asset = cfg
	p.mu.Unlock()
}

// SetVolume applies a 0..1 scalar to whichever player is active now and
// to everything played later.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.out.SetVolume(v)
}

// Volume returns the current 0..1 scalar.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Play starts the cue, stopping any other ringtone first. The incoming
// cue prefers the configured asset and falls back to the synthesized tone
// when asset playback fails.
func (p *Player) Play(cue Cue) {
	p.Stop()

	p.mu.Lock()
	asset := p.asset
	p.mu.Unlock()

	var rt Ringtone
	if cue == CueIncoming && asset.URL != "" {
		ar := newAssetRingtone(p.out, asset)
		if err := ar.Play(cue); err == nil {
			p.setActive(ar)
			return
		} else {
			log.Warn().Err(err).Str("url", asset.URL).Msg("ringtone asset failed, using synthesized tone")
		}
	}

	rt = newSynthesizedRingtone(p.out)
	if err := rt.Play(cue); err != nil {
		log.Warn().Err(err).Str("cue", string(cue)).Msg("synthesized ringtone failed")
		return
	}
	p.setActive(rt)
}

func (p *Player) setActive(rt Ringtone) {
	p.mu.Lock()
	p.active = rt
	p.mu.Unlock()
}

// Stop halts the active ringtone, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.active = nil
	p.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}
