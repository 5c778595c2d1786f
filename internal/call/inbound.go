package call

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/ringtone"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// HandleEnvelope dispatches a relay message. Signals that do not fit the
// current state are logged and dropped: the sender raced a local
// transition and there is nothing useful to report back.
func (m *Manager) HandleEnvelope(env *signal.Envelope) {
	switch env.Type {
	case signal.TypeCall:
		m.handleIncomingCall(env)
	case signal.TypeAcceptCall:
		m.handleCallAccepted(env)
	case signal.TypeRejectCall:
		m.handleCallRejected(env)
	case signal.TypeOffer:
		m.handleOffer(env)
	case signal.TypeAnswer:
		m.handleAnswer(env)
	case signal.TypeICECandidate:
		m.handleCandidate(env)
	case signal.TypeHold:
		m.handlePeerHold(env)
	case signal.TypeResume:
		m.handlePeerResume(env)
	case signal.TypeHangup:
		m.handleHangup(env)
	case signal.TypeTransfer:
		m.handleTransfer(env)
	case signal.TypeTransferring:
		m.bus.emit(Event{Type: EventTransferring, Peer: env.From})
	case signal.TypeError:
		m.handleRelayError(env)
	default:
		log.Debug().Str("type", string(env.Type)).Msg("unhandled envelope")
	}
}

func (m *Manager) handleIncomingCall(env *signal.Envelope) {
	var p signal.CallPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed call payload")
		return
	}

	m.mu.Lock()
	if m.sess.state != StateIdle {
		// Busy: decline automatically so the caller hears it promptly.
		m.mu.Unlock()
		busy, _ := signal.New(signal.TypeRejectCall, m.userID, env.From, signal.RejectPayload{Reason: "busy"})
		if err := m.tr.Send(busy); err != nil {
			log.Warn().Err(err).Msg("busy reject send failed")
		}
		return
	}

	m.sess.state = StateRinging
	m.sess.remoteUserID = env.From
	m.sess.callType = p.CallType
	if !m.dnd {
		m.ring.Play(ringtone.CueIncoming)
	}
	m.armRingTimer()
	m.mu.Unlock()

	log.Info().Str("from", env.From).Str("call_type", string(p.CallType)).Msg("incoming call")
	m.bus.emit(Event{Type: EventIncomingCall, Peer: env.From, CallType: p.CallType})
}

// handleCallAccepted runs on the caller: the callee is ready, so create
// and send the offer now. The offer never goes out before this signal.
func (m *Manager) handleCallAccepted(env *signal.Envelope) {
	m.mu.Lock()
	if m.sess.state != StateDialing || env.From != m.sess.remoteUserID || m.sess.neg == nil {
		m.mu.Unlock()
		log.Warn().Str("from", env.From).Msg("accept-call dropped")
		return
	}
	sdp, err := m.sess.neg.CreateOffer()
	if err != nil {
		log.Error().Err(err).Msg("offer creation failed")
		m.hangupLocked("offer-failed")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventCallEnded, Reason: "offer-failed"})
		return
	}
	out, _ := signal.New(signal.TypeOffer, m.userID, m.sess.remoteUserID, signal.SDPPayload{SDP: sdp})
	if err := m.tr.Send(out); err != nil {
		m.hangupLocked("offer-failed")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventCallEnded, Reason: "offer-failed"})
		return
	}
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallAccepted, Peer: env.From})
}

func (m *Manager) handleCallRejected(env *signal.Envelope) {
	var p signal.RejectPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed reject payload")
	}

	m.mu.Lock()
	if m.sess.state != StateDialing || env.From != m.sess.remoteUserID {
		m.mu.Unlock()
		return
	}
	log.Info().Str("from", env.From).Str("reason", p.Reason).Msg("call rejected")
	m.cleanupLocked()
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallRejected, Peer: env.From, Reason: p.Reason})
}

// handleOffer runs on the callee after it accepted: apply the remote
// description, answer, and the call is up on this side.
func (m *Manager) handleOffer(env *signal.Envelope) {
	var p signal.SDPPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed offer payload")
		return
	}

	m.mu.Lock()
	if m.sess.state != StateRinging || env.From != m.sess.remoteUserID || m.sess.neg == nil {
		m.mu.Unlock()
		log.Warn().Str("from", env.From).Msg("offer dropped")
		return
	}
	sdp, err := m.sess.neg.HandleOffer(p.SDP)
	if err != nil {
		log.Error().Err(err).Msg("answer creation failed")
		m.hangupLocked("answer-failed")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventCallEnded, Reason: "answer-failed"})
		return
	}
	out, _ := signal.New(signal.TypeAnswer, m.userID, m.sess.remoteUserID, signal.SDPPayload{SDP: sdp})
	if err := m.tr.Send(out); err != nil {
		m.hangupLocked("answer-failed")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventCallEnded, Reason: "answer-failed"})
		return
	}
	m.setConnectedLocked()
	m.mu.Unlock()
}

// handleAnswer runs on the caller and completes negotiation.
func (m *Manager) handleAnswer(env *signal.Envelope) {
	var p signal.SDPPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed answer payload")
		return
	}

	m.mu.Lock()
	if m.sess.state != StateDialing || env.From != m.sess.remoteUserID || m.sess.neg == nil {
		m.mu.Unlock()
		log.Warn().Str("from", env.From).Msg("answer dropped")
		return
	}
	if err := m.sess.neg.HandleAnswer(p.SDP); err != nil {
		log.Error().Err(err).Msg("answer apply failed")
		m.hangupLocked("answer-failed")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventCallEnded, Reason: "answer-failed"})
		return
	}
	m.setConnectedLocked()
	m.mu.Unlock()
}

func (m *Manager) handleCandidate(env *signal.Envelope) {
	var p signal.CandidatePayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed candidate payload")
		return
	}

	m.mu.Lock()
	neg := m.sess.neg
	ok := neg != nil && env.From == m.sess.remoteUserID
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("from", env.From).Msg("candidate dropped")
		return
	}
	if err := neg.HandleRemoteCandidate(p.Candidate); err != nil {
		log.Warn().Err(err).Msg("candidate rejected")
	}
}

func (m *Manager) handlePeerHold(env *signal.Envelope) {
	m.mu.Lock()
	if m.sess.state != StateConnected || env.From != m.sess.remoteUserID {
		m.mu.Unlock()
		return
	}
	m.sess.state = StateOnHold
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventHold, Peer: env.From})
}

func (m *Manager) handlePeerResume(env *signal.Envelope) {
	m.mu.Lock()
	if m.sess.state != StateOnHold || env.From != m.sess.remoteUserID {
		m.mu.Unlock()
		return
	}
	m.sess.state = StateConnected
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventResume, Peer: env.From})
}

func (m *Manager) handleHangup(env *signal.Envelope) {
	var p signal.HangupPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed hangup payload")
	}

	m.mu.Lock()
	if m.sess.state == StateIdle || env.From != m.sess.remoteUserID {
		m.mu.Unlock()
		return
	}
	log.Info().Str("from", env.From).Msg("peer hung up")
	m.cleanupLocked()
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallEnded, Peer: env.From, Reason: "remote-hangup",
		Duration: time.Duration(p.Duration * float64(time.Second))})
}

// handleTransfer acknowledges the request and surfaces it to the UI; the
// actual party handoff happens above the engine.
func (m *Manager) handleTransfer(env *signal.Envelope) {
	var p signal.TransferPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed transfer payload")
		return
	}

	m.mu.Lock()
	ok := m.sess.state.oneOf(StateConnected, StateOnHold) && env.From == m.sess.remoteUserID
	m.mu.Unlock()
	if !ok {
		log.Warn().Str("from", env.From).Msg("transfer dropped")
		return
	}
	ack, _ := signal.New(signal.TypeTransferring, m.userID, env.From, nil)
	if err := m.tr.Send(ack); err != nil {
		log.Warn().Err(err).Msg("transfer ack send failed")
	}
	m.bus.emit(Event{Type: EventTransferring, Peer: env.From, PartyID: p.PartyID})
}

// handleRelayError covers relay-reported delivery failures, most
// importantly "peer not connected" while dialing.
func (m *Manager) handleRelayError(env *signal.Envelope) {
	var p signal.ErrorPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn().Err(err).Msg("malformed error payload")
		return
	}
	log.Warn().Str("peer", p.Peer).Str("message", p.Message).Msg("relay error")

	m.mu.Lock()
	dialingPeer := m.sess.state == StateDialing && p.Peer == m.sess.remoteUserID
	if dialingPeer {
		m.cleanupLocked()
	}
	m.mu.Unlock()
	if dialingPeer {
		m.bus.emit(Event{Type: EventCallEnded, Reason: "unreachable"})
	}
}
