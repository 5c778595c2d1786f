package media

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// PionSession backs PeerSession with a pion/webrtc PeerConnection.
type PionSession struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	onCandidate func(signal.Candidate)
	onRemote    func(Handle)
	onState     func(ConnState)

	remote *remoteHandle
}

// NewPionSession builds a peer connection against the given STUN servers.
func NewPionSession(stunServers []string) (*PionSession, error) {
	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &PionSession{pc: pc, remote: &remoteHandle{}}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.mu.Lock()
		fn := s.onCandidate
		s.mu.Unlock()
		if fn == nil {
			return
		}
		init := c.ToJSON()
		out := signal.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.SDPMLineIndex = *init.SDPMLineIndex
		}
		fn(out)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.mu.Lock()
		s.remote.add(track)
		fn := s.onRemote
		remote := s.remote
		s.mu.Unlock()
		if fn != nil {
			fn(remote)
		}
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.mu.Lock()
		fn := s.onState
		s.mu.Unlock()
		if fn != nil {
			fn(mapConnState(st))
		}
	})

	return s, nil
}

func mapConnState(st webrtc.PeerConnectionState) ConnState {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return ConnNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ConnFailed
	default:
		return ConnClosed
	}
}

func (s *PionSession) CreateOffer() (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (s *PionSession) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (s *PionSession) SetRemoteDescription(kind, sdp string) error {
	sdpType := webrtc.SDPTypeOffer
	if kind == "answer" {
		sdpType = webrtc.SDPTypeAnswer
	}
	return s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp})
}

func (s *PionSession) AddCandidate(c signal.Candidate) error {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	idx := c.SDPMLineIndex
	init.SDPMLineIndex = &idx
	return s.pc.AddICECandidate(init)
}

// AttachLocal adds the handle's pion tracks to the connection and keeps
// the senders for later in-place replacement.
func (s *PionSession) AttachLocal(h Handle) error {
	lh, ok := h.(*LocalHandle)
	if !ok {
		return fmt.Errorf("attach local: %T is not a pion-backed handle", h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if lh.audio != nil {
		sender, err := s.pc.AddTrack(lh.audio)
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		s.audioSender = sender
	}
	if lh.video != nil {
		sender, err := s.pc.AddTrack(lh.video)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		s.videoSender = sender
	}
	return nil
}

func (s *PionSession) ReplaceVideoTrack(h Handle) error {
	lh, ok := h.(*LocalHandle)
	if !ok || lh.video == nil {
		return fmt.Errorf("replace video: handle has no pion video track")
	}
	s.mu.Lock()
	sender := s.videoSender
	s.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("replace video: no active video sender")
	}
	return sender.ReplaceTrack(lh.video)
}

func (s *PionSession) ReplaceAudioTrack(h Handle) error {
	lh, ok := h.(*LocalHandle)
	if !ok || lh.audio == nil {
		return fmt.Errorf("replace audio: handle has no pion audio track")
	}
	s.mu.Lock()
	sender := s.audioSender
	s.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("replace audio: no active audio sender")
	}
	return sender.ReplaceTrack(lh.audio)
}

// Stats samples the succeeded candidate pair's round-trip time and the
// remote-reported fraction lost.
func (s *PionSession) Stats() (Stats, error) {
	report := s.pc.GetStats()
	var out Stats
	for _, entry := range report {
		switch st := entry.(type) {
		case webrtc.ICECandidatePairStats:
			if st.State == webrtc.StatsICECandidatePairStateSucceeded {
				out.RTT = secondsToDuration(st.CurrentRoundTripTime)
			}
		case webrtc.RemoteInboundRTPStreamStats:
			out.LossPercent = st.FractionLost * 100
		}
	}
	return out, nil
}

func (s *PionSession) OnCandidate(fn func(signal.Candidate)) {
	s.mu.Lock()
	s.onCandidate = fn
	s.mu.Unlock()
}

func (s *PionSession) OnRemoteHandle(fn func(Handle)) {
	s.mu.Lock()
	s.onRemote = fn
	s.mu.Unlock()
}

func (s *PionSession) OnStateChange(fn func(ConnState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *PionSession) Close() error {
	return s.pc.Close()
}
