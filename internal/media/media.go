// Package media sequences offer/answer negotiation and candidate exchange
// on top of a platform-provided peer session. The engine never touches
// capture devices or codecs directly; both sit behind the interfaces here.
package media

import (
	"errors"
	"time"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// ErrMediaAccess wraps device permission/availability failures. Callers
// abort the in-progress call attempt instead of retrying.
var ErrMediaAccess = errors.New("media: device access failed")

// TrackKind distinguishes the two track types a handle can carry.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Handle is an opaque set of tracks (a local capture, a screen share, or
// the remote side's media). Closing a handle releases its devices.
type Handle interface {
	ID() string
	SetEnabled(kind TrackKind, enabled bool)
	Enabled(kind TrackKind) bool
	Close()
}

// Devices is the platform capture primitive.
type Devices interface {
	// AcquireMedia opens microphone (and camera for video calls).
	AcquireMedia(callType signal.CallType) (Handle, error)
	// AcquireScreen opens a screen capture source.
	AcquireScreen() (Handle, error)
	// AcquireDevice opens a specific capture device of the given kind,
	// for mid-call device switching.
	AcquireDevice(kind TrackKind, deviceID string) (Handle, error)
}

// ConnState mirrors the peer connection lifecycle the engine cares about.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnected
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "new"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is fatal for the current call.
func (s ConnState) Terminal() bool {
	return s == ConnDisconnected || s == ConnFailed || s == ConnClosed
}

// Stats is one sample of the active session's network health.
type Stats struct {
	RTT         time.Duration
	LossPercent float64
}

// PeerSession is the platform peer media session primitive. The pion
// implementation is the default; tests substitute fakes.
type PeerSession interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	// SetRemoteDescription applies the peer's SDP; kind is "offer" or "answer".
	SetRemoteDescription(kind, sdp string) error
	AddCandidate(c signal.Candidate) error

	// AttachLocal adds the handle's tracks to the session. Must be called
	// before the first offer/answer.
	AttachLocal(h Handle) error
	// ReplaceVideoTrack swaps the outgoing video track in place, without
	// renegotiating.
	ReplaceVideoTrack(h Handle) error
	// ReplaceAudioTrack swaps the outgoing audio track in place.
	ReplaceAudioTrack(h Handle) error

	Stats() (Stats, error)

	OnCandidate(fn func(signal.Candidate))
	OnRemoteHandle(fn func(Handle))
	OnStateChange(fn func(ConnState))

	Close() error
}
