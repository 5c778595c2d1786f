package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LocalHandle is a pion-backed capture handle. The capture pipeline
// consults the enabled flags before writing samples; the tracks stay
// attached while muted so no renegotiation happens.
type LocalHandle struct {
	id    string
	audio webrtc.TrackLocal
	video webrtc.TrackLocal

	mu      sync.Mutex
	enabled map[TrackKind]bool
	onClose func()
}

// NewLocalHandle wraps already-opened tracks. Either track may be nil.
func NewLocalHandle(audio, video webrtc.TrackLocal, onClose func()) *LocalHandle {
	h := &LocalHandle{
		id:      uuid.New().String(),
		audio:   audio,
		video:   video,
		enabled: make(map[TrackKind]bool),
		onClose: onClose,
	}
	h.enabled[TrackAudio] = audio != nil
	h.enabled[TrackVideo] = video != nil
	return h
}

func (h *LocalHandle) ID() string { return h.id }

func (h *LocalHandle) SetEnabled(kind TrackKind, enabled bool) {
	h.mu.Lock()
	h.enabled[kind] = enabled
	h.mu.Unlock()
}

func (h *LocalHandle) Enabled(kind TrackKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled[kind]
}

func (h *LocalHandle) Close() {
	h.mu.Lock()
	fn := h.onClose
	h.onClose = nil
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// remoteHandle collects the peer's inbound tracks.
type remoteHandle struct {
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func (h *remoteHandle) add(t *webrtc.TrackRemote) {
	h.mu.Lock()
	h.tracks = append(h.tracks, t)
	h.mu.Unlock()
}

func (h *remoteHandle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tracks) > 0 {
		return h.tracks[0].StreamID()
	}
	return ""
}

// SetEnabled is a no-op for remote media: muting the peer happens on
// their side of the wire.
func (h *remoteHandle) SetEnabled(TrackKind, bool) {}

func (h *remoteHandle) Enabled(TrackKind) bool { return true }

func (h *remoteHandle) Close() {}

// Tracks returns the remote tracks received so far.
func (h *remoteHandle) Tracks() []*webrtc.TrackRemote {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(h.tracks))
	copy(out, h.tracks)
	return out
}

// StaticDevices is a Devices implementation that creates sample tracks
// without opening hardware. The real capture pipeline lives outside the
// engine; this keeps negotiation valid wherever no platform capture layer
// is wired in (headless runs, tests).
type StaticDevices struct{}

func (StaticDevices) AcquireMedia(callType signal.CallType) (Handle, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "engine-mic")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
	var video webrtc.TrackLocal
	if callType == signal.CallTypeVideo {
		v, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "engine-cam")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}
		video = v
	}
	return NewLocalHandle(audio, video, nil), nil
}

func (StaticDevices) AcquireScreen() (Handle, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "engine-screen")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}
	return NewLocalHandle(nil, video, nil), nil
}

func (StaticDevices) AcquireDevice(kind TrackKind, deviceID string) (Handle, error) {
	switch kind {
	case TrackAudio:
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}
		return NewLocalHandle(audio, nil, nil), nil
	case TrackVideo:
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}
		return NewLocalHandle(nil, video, nil), nil
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}
}
