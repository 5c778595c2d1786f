package call

import (
	"time"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/quality"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// session is the one call session per client. Exactly one exists; Idle
// is represented by zeroed fields. Only the Manager mutates it, under
// the Manager's lock.
type session struct {
	remoteUserID string
	callType     signal.CallType
	state        State
	caller       bool
	startedAt    time.Time

	localMedia  media.Handle
	remoteMedia media.Handle
	screenShare media.Handle
	// switched-in device handles, released with the session
	extra []media.Handle

	neg *media.Negotiator

	audioEnabled bool
	videoEnabled bool

	lastQuality quality.Level
}

// reset returns the session to the blank Idle shape. Handles and the
// negotiator must already be released.
func (s *session) reset() {
	*s = session{state: StateIdle, lastQuality: quality.Disconnected}
}

// release closes the negotiator and every held media handle, in that
// order, before the state goes back to Idle.
func (s *session) release() {
	if s.neg != nil {
		s.neg.Close()
		s.neg = nil
	}
	if s.screenShare != nil {
		s.screenShare.Close()
		s.screenShare = nil
	}
	for _, h := range s.extra {
		h.Close()
	}
	s.extra = nil
	if s.localMedia != nil {
		s.localMedia.Close()
		s.localMedia = nil
	}
	s.remoteMedia = nil
}
