package call

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/quality"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/ringtone"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/transport"
)

// ErrInvalidState is returned by local operations attempted from a state
// that does not allow them. Inbound signals in the wrong state are
// dropped silently instead; they model late-arriving messages.
var ErrInvalidState = errors.New("call: operation not valid in current state")

// Transport is the slice of the signaling layer the manager drives.
type Transport interface {
	Connect(userID string) error
	Disconnect()
	Send(env *signal.Envelope) error
}

type Config struct {
	// RingTimeout bounds unanswered Dialing/Ringing; 0 disables.
	RingTimeout time.Duration
	// QualityInterval is the monitor poll period.
	QualityInterval time.Duration
	// StunServers configure the default pion peer sessions.
	StunServers []string
	// PeerSessionFactory overrides peer session construction (tests).
	PeerSessionFactory func() (media.PeerSession, error)
}

func DefaultConfig() Config {
	return Config{
		RingTimeout:     60 * time.Second,
		QualityInterval: 2 * time.Second,
	}
}

// Manager is the public session API: one instance per connected client,
// constructed once and handed to collaborators. It owns the single call
// session and is the only writer of its state.
type Manager struct {
	cfg     Config
	tr      Transport
	devices media.Devices
	ring    *ringtone.Player
	bus     *Bus
	monitor *quality.Monitor

	mu          sync.Mutex
	userID      string
	initialized bool
	dnd         bool
	sess        session
	ringTimer   *time.Timer
}

func NewManager(cfg Config, tr Transport, devices media.Devices, ring *ringtone.Player) *Manager {
	if cfg.PeerSessionFactory == nil {
		stun := cfg.StunServers
		cfg.PeerSessionFactory = func() (media.PeerSession, error) {
			return media.NewPionSession(stun)
		}
	}
	m := &Manager{
		cfg:     cfg,
		tr:      tr,
		devices: devices,
		ring:    ring,
		bus:     NewBus(),
	}
	m.monitor = quality.NewMonitor(cfg.QualityInterval, m.handleQualitySample)
	m.sess.reset()
	return m
}

// AddEventListener subscribes to session events.
func (m *Manager) AddEventListener(t EventType, fn func(Event)) ListenerID {
	return m.bus.AddEventListener(t, fn)
}

// RemoveEventListener drops a subscription.
func (m *Manager) RemoveEventListener(t EventType, id ListenerID) {
	m.bus.RemoveEventListener(t, id)
}

// Initialize connects and registers with the relay. Re-entrant calls
// while already initialized are no-ops.
func (m *Manager) Initialize(userID string) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.userID = userID
	m.mu.Unlock()

	if err := m.tr.Connect(userID); err != nil {
		// The transport keeps retrying on its own; initialization stands.
		log.Warn().Err(err).Msg("initial relay connect failed, transport will retry")
	}
	return nil
}

// Shutdown ends any active call and tears down the relay connection.
func (m *Manager) Shutdown() {
	m.EndCall()
	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	m.tr.Disconnect()
}

// StartCall dials toUserID. Media acquisition failure aborts the attempt
// without leaving Idle.
func (m *Manager) StartCall(toUserID string, callType signal.CallType) error {
	m.mu.Lock()
	if m.sess.state != StateIdle {
		m.mu.Unlock()
		log.Warn().Str("state", m.sess.state.String()).Msg("startCall ignored")
		return fmt.Errorf("%w: startCall from %s", ErrInvalidState, m.sess.state)
	}

	handle, err := m.devices.AcquireMedia(callType)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Msg("media acquisition failed")
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}

	if err := m.setupNegotiator(handle, toUserID, callType, true); err != nil {
		handle.Close()
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}

	m.sess.state = StateDialing
	env, _ := signal.New(signal.TypeCall, m.userID, toUserID, signal.CallPayload{CallType: callType})
	if err := m.tr.Send(env); err != nil {
		m.cleanupLocked()
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}

	m.ring.Play(ringtone.CueOutgoing)
	m.armRingTimer()
	m.mu.Unlock()

	log.Info().Str("to", toUserID).Str("call_type", string(callType)).Msg("dialing")
	return nil
}

// AcceptCall answers the ringing call. The state stays Ringing until the
// offer/answer exchange completes.
func (m *Manager) AcceptCall() error {
	m.mu.Lock()
	if m.sess.state != StateRinging {
		m.mu.Unlock()
		log.Warn().Str("state", m.sess.state.String()).Msg("acceptCall ignored")
		return fmt.Errorf("%w: acceptCall from %s", ErrInvalidState, m.sess.state)
	}
	if m.sess.neg != nil {
		m.mu.Unlock()
		return nil // already accepted, waiting for the offer
	}

	handle, err := m.devices.AcquireMedia(m.sess.callType)
	if err != nil {
		log.Error().Err(err).Msg("media acquisition failed")
		m.declineLocked("media-failure")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}

	if err := m.setupNegotiator(handle, m.sess.remoteUserID, m.sess.callType, false); err != nil {
		handle.Close()
		m.declineLocked("media-failure")
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}

	m.ring.Stop()
	env, _ := signal.New(signal.TypeAcceptCall, m.userID, m.sess.remoteUserID, nil)
	if err := m.tr.Send(env); err != nil {
		m.cleanupLocked()
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventError, Err: err})
		return err
	}
	m.mu.Unlock()

	log.Info().Msg("call accepted, waiting for offer")
	return nil
}

// RejectCall declines the ringing call with a reason.
func (m *Manager) RejectCall(reason string) error {
	m.mu.Lock()
	if m.sess.state != StateRinging {
		m.mu.Unlock()
		log.Warn().Str("state", m.sess.state.String()).Msg("rejectCall ignored")
		return fmt.Errorf("%w: rejectCall from %s", ErrInvalidState, m.sess.state)
	}
	env, _ := signal.New(signal.TypeRejectCall, m.userID, m.sess.remoteUserID, signal.RejectPayload{Reason: reason})
	if err := m.tr.Send(env); err != nil {
		log.Warn().Err(err).Msg("reject send failed")
	}
	m.cleanupLocked()
	m.mu.Unlock()
	return nil
}

// HoldCall pauses the connected call: local tracks go quiet and the
// peer is notified.
func (m *Manager) HoldCall() error {
	m.mu.Lock()
	if m.sess.state != StateConnected {
		m.mu.Unlock()
		return fmt.Errorf("%w: holdCall from %s", ErrInvalidState, m.sess.state)
	}
	m.holdLocked()
	env, _ := signal.New(signal.TypeHold, m.userID, m.sess.remoteUserID, nil)
	if err := m.tr.Send(env); err != nil {
		log.Warn().Err(err).Msg("hold send failed")
	}
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventHold})
	return nil
}

// ResumeCall re-enables tracks per the flags they had before hold.
func (m *Manager) ResumeCall() error {
	m.mu.Lock()
	if m.sess.state != StateOnHold {
		m.mu.Unlock()
		return fmt.Errorf("%w: resumeCall from %s", ErrInvalidState, m.sess.state)
	}
	m.resumeLocked()
	env, _ := signal.New(signal.TypeResume, m.userID, m.sess.remoteUserID, nil)
	if err := m.tr.Send(env); err != nil {
		log.Warn().Err(err).Msg("resume send failed")
	}
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventResume})
	return nil
}

// EndCall hangs up from any non-Idle state. Safe while Idle.
func (m *Manager) EndCall() error {
	m.mu.Lock()
	if m.sess.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.hangupLocked("hangup")
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallEnded, Reason: "hangup"})
	return nil
}

// ToggleAudio flips the microphone; returns the new enabled state.
func (m *Manager) ToggleAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.localMedia == nil {
		return false
	}
	m.sess.audioEnabled = !m.sess.audioEnabled
	m.sess.localMedia.SetEnabled(media.TrackAudio, m.sess.audioEnabled)
	return m.sess.audioEnabled
}

// ToggleVideo flips the camera; returns the new enabled state.
func (m *Manager) ToggleVideo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.localMedia == nil || m.sess.callType != signal.CallTypeVideo {
		return false
	}
	m.sess.videoEnabled = !m.sess.videoEnabled
	m.sess.localMedia.SetEnabled(media.TrackVideo, m.sess.videoEnabled)
	return m.sess.videoEnabled
}

// StartScreenShare swaps the outgoing video track for a screen capture,
// without renegotiating.
func (m *Manager) StartScreenShare() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sess.state.oneOf(StateConnected, StateOnHold) || m.sess.neg == nil {
		return fmt.Errorf("%w: startScreenShare from %s", ErrInvalidState, m.sess.state)
	}
	if m.sess.screenShare != nil {
		return nil
	}
	handle, err := m.devices.AcquireScreen()
	if err != nil {
		return err
	}
	if err := m.sess.neg.Session().ReplaceVideoTrack(handle); err != nil {
		handle.Close()
		return err
	}
	m.sess.screenShare = handle
	return nil
}

// StopScreenShare restores the camera track and releases the capture.
func (m *Manager) StopScreenShare() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.screenShare == nil {
		return nil
	}
	if m.sess.callType == signal.CallTypeVideo && m.sess.localMedia != nil {
		if err := m.sess.neg.Session().ReplaceVideoTrack(m.sess.localMedia); err != nil {
			log.Warn().Err(err).Msg("camera restore failed")
		}
	}
	m.sess.screenShare.Close()
	m.sess.screenShare = nil
	return nil
}

// SwitchDevice swaps the outgoing track of the given kind to another
// capture device mid-call.
func (m *Manager) SwitchDevice(kind media.TrackKind, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.neg == nil {
		return fmt.Errorf("%w: switchDevice without negotiation", ErrInvalidState)
	}
	handle, err := m.devices.AcquireDevice(kind, deviceID)
	if err != nil {
		return err
	}
	switch kind {
	case media.TrackAudio:
		err = m.sess.neg.Session().ReplaceAudioTrack(handle)
	case media.TrackVideo:
		err = m.sess.neg.Session().ReplaceVideoTrack(handle)
	default:
		err = fmt.Errorf("unknown track kind %q", kind)
	}
	if err != nil {
		handle.Close()
		return err
	}
	m.sess.extra = append(m.sess.extra, handle)
	return nil
}

// TransferCall asks the current peer to move the session to another
// party. The handoff itself stays with the UIs on both ends; the engine
// only carries the signaling.
func (m *Manager) TransferCall(toUserID, partyID string) error {
	m.mu.Lock()
	if m.sess.state != StateConnected {
		m.mu.Unlock()
		return fmt.Errorf("%w: transferCall from %s", ErrInvalidState, m.sess.state)
	}
	env, _ := signal.New(signal.TypeTransfer, m.userID, m.sess.remoteUserID,
		signal.TransferPayload{PartyID: partyID, To: toUserID})
	err := m.tr.Send(env)
	m.mu.Unlock()
	return err
}

// SetRingtone configures the incoming-call asset and its loop trim.
func (m *Manager) SetRingtone(url string, loopStart, loopEnd time.Duration) {
	m.ring.Configure(ringtone.AssetConfig{URL: url, LoopStart: loopStart, LoopEnd: loopEnd})
}

// SetVolume applies a 0..1 scalar to the active and future ringtones.
func (m *Manager) SetVolume(v float64) {
	m.ring.SetVolume(v)
}

// SetDnd suppresses audible incoming cues without rejecting calls.
func (m *Manager) SetDnd(enabled bool) {
	m.mu.Lock()
	m.dnd = enabled
	m.mu.Unlock()
}

// IsInCall reports a non-Idle session.
func (m *Manager) IsInCall() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.state != StateIdle
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.state
}

func (m *Manager) IsAudioActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.audioEnabled
}

func (m *Manager) IsVideoActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.videoEnabled
}

// GetLocalStream returns the local capture handle, nil while Idle.
func (m *Manager) GetLocalStream() media.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.localMedia
}

// GetRemoteStream returns the remote media handle once tracks arrive.
func (m *Manager) GetRemoteStream() media.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.remoteMedia
}

// ConnectionQuality returns the last classified level.
func (m *Manager) ConnectionQuality() quality.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.lastQuality
}

// setupNegotiator builds the peer session and wires its callbacks.
// Caller holds the lock.
func (m *Manager) setupNegotiator(handle media.Handle, remote string, callType signal.CallType, caller bool) error {
	ps, err := m.cfg.PeerSessionFactory()
	if err != nil {
		return fmt.Errorf("peer session: %w", err)
	}
	if err := ps.AttachLocal(handle); err != nil {
		ps.Close()
		return fmt.Errorf("attach local media: %w", err)
	}

	ps.OnCandidate(func(c signal.Candidate) {
		env, _ := signal.New(signal.TypeICECandidate, m.userID, remote, signal.CandidatePayload{Candidate: c})
		if err := m.tr.Send(env); err != nil {
			log.Warn().Err(err).Msg("candidate send failed")
		}
	})
	ps.OnRemoteHandle(func(h media.Handle) {
		m.mu.Lock()
		m.sess.remoteMedia = h
		m.mu.Unlock()
		m.bus.emit(Event{Type: EventRemoteStream, Remote: h})
	})
	ps.OnStateChange(func(st media.ConnState) {
		if st.Terminal() {
			m.handleSessionFailure(st)
		}
	})

	m.sess.remoteUserID = remote
	m.sess.callType = callType
	m.sess.caller = caller
	m.sess.localMedia = handle
	m.sess.audioEnabled = true
	m.sess.videoEnabled = callType == signal.CallTypeVideo
	m.sess.neg = media.NewNegotiator(ps, caller)
	return nil
}

// declineLocked tells the caller the call cannot proceed and cleans up.
func (m *Manager) declineLocked(reason string) {
	env, _ := signal.New(signal.TypeRejectCall, m.userID, m.sess.remoteUserID, signal.RejectPayload{Reason: reason})
	if err := m.tr.Send(env); err != nil {
		log.Warn().Err(err).Msg("decline send failed")
	}
	m.cleanupLocked()
}

// holdLocked disables local tracks, keeping the enabled flags so resume
// restores exactly what was live before.
func (m *Manager) holdLocked() {
	m.sess.state = StateOnHold
	if m.sess.localMedia != nil {
		m.sess.localMedia.SetEnabled(media.TrackAudio, false)
		m.sess.localMedia.SetEnabled(media.TrackVideo, false)
	}
}

func (m *Manager) resumeLocked() {
	m.sess.state = StateConnected
	if m.sess.localMedia != nil {
		m.sess.localMedia.SetEnabled(media.TrackAudio, m.sess.audioEnabled)
		m.sess.localMedia.SetEnabled(media.TrackVideo, m.sess.videoEnabled)
	}
}

// hangupLocked sends hangup if the peer is still reachable and cleans up.
func (m *Manager) hangupLocked(reason string) {
	payload := signal.HangupPayload{}
	if !m.sess.startedAt.IsZero() {
		payload.Duration = time.Since(m.sess.startedAt).Seconds()
	}
	env, _ := signal.New(signal.TypeHangup, m.userID, m.sess.remoteUserID, payload)
	if err := m.tr.Send(env); err != nil {
		log.Warn().Err(err).Str("reason", reason).Msg("hangup send failed")
	}
	m.cleanupLocked()
}

// cleanupLocked releases media and the negotiator, stops every timer and
// cue, and returns the session to Idle. It runs on every exit path.
func (m *Manager) cleanupLocked() {
	wasLive := m.sess.state.oneOf(StateConnected, StateOnHold)

	m.monitor.Stop()
	m.disarmRingTimer()
	m.ring.Stop()
	m.sess.release()
	m.sess.reset()

	if wasLive {
		m.ring.Play(ringtone.CueEnd)
	}
}

// setConnectedLocked marks negotiation completion.
func (m *Manager) setConnectedLocked() {
	m.sess.state = StateConnected
	m.sess.startedAt = time.Now()
	m.disarmRingTimer()
	m.ring.Stop()
	m.monitor.Start(m.sess.neg.Session())
	log.Info().Str("peer", m.sess.remoteUserID).Msg("call connected")
}

func (m *Manager) armRingTimer() {
	if m.cfg.RingTimeout <= 0 {
		return
	}
	m.disarmRingTimer()
	m.ringTimer = time.AfterFunc(m.cfg.RingTimeout, m.ringTimeout)
}

func (m *Manager) disarmRingTimer() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
}

// ringTimeout fires when an unanswered call outlives the configured
// bound; it behaves exactly like a local hangup.
func (m *Manager) ringTimeout() {
	m.mu.Lock()
	if !m.sess.state.oneOf(StateDialing, StateRinging) {
		m.mu.Unlock()
		return
	}
	log.Info().Str("state", m.sess.state.String()).Msg("unanswered call timed out")
	m.hangupLocked("timeout")
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallEnded, Reason: "timeout"})
}

// handleSessionFailure treats a dead peer connection as fatal for the
// current call; a new call must be dialed.
func (m *Manager) handleSessionFailure(st media.ConnState) {
	m.mu.Lock()
	if m.sess.state == StateIdle {
		m.mu.Unlock()
		return
	}
	reason := st.String()
	log.Warn().Str("conn_state", reason).Msg("peer session failed")
	m.cleanupLocked()
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventCallEnded, Reason: reason})
}

// HandleTransportDown runs on relay connection loss. Any in-flight call
// is torn down; the transport keeps healing itself.
func (m *Manager) HandleTransportDown(err error) {
	exhausted := errors.Is(err, transport.ErrReconnectExhausted)

	m.mu.Lock()
	inCall := m.sess.state != StateIdle
	if inCall {
		// The relay is gone, so no hangup can be delivered; release
		// everything locally.
		m.cleanupLocked()
	}
	m.mu.Unlock()

	if inCall {
		m.bus.emit(Event{Type: EventCallEnded, Reason: "connection-lost"})
	}
	if exhausted {
		m.bus.emit(Event{Type: EventError, Err: err})
	}
}

func (m *Manager) handleQualitySample(s quality.Sample) {
	m.mu.Lock()
	m.sess.lastQuality = s.Level
	m.mu.Unlock()
	m.bus.emit(Event{Type: EventQualityChange, Quality: &s})
}
