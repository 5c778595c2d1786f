package ringtone

import (
	"fmt"
	"sync"
)

// AssetRingtone loops the user's configured audio asset between its trim
// points. It only applies to the incoming cue; other cues are always
// synthesized.
type AssetRingtone struct {
	out Output
	cfg AssetConfig

	mu      sync.Mutex
	stopFn  func()
	playing bool
}

func newAssetRingtone(out Output, cfg AssetConfig) *AssetRingtone {
	return &AssetRingtone{out: out, cfg: cfg}
}

func (a *AssetRingtone) Play(cue Cue) error {
	if cue != CueIncoming {
		return fmt.Errorf("asset ringtone only plays the incoming cue")
	}
	stop, err := a.out.PlayAsset(a.cfg.URL, a.cfg.LoopStart, a.cfg.LoopEnd)
	if err != nil {
		return fmt.Errorf("play asset %s: %w", a.cfg.URL, err)
	}
	a.mu.Lock()
	a.stopFn = stop
	a.playing = true
	a.mu.Unlock()
	return nil
}

func (a *AssetRingtone) Stop() {
	a.mu.Lock()
	stop := a.stopFn
	a.stopFn = nil
	a.playing = false
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}
