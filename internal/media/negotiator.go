package media

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// Negotiator sequences one call's offer/answer exchange and keeps
// candidate application safe: remote candidates that arrive before the
// remote description are queued and flushed, in arrival order, exactly
// once, immediately after the description lands.
//
// Only the original caller creates the offer, and only once the callee has
// accepted; the callee answers the offer it receives.
type Negotiator struct {
	ps     PeerSession
	caller bool

	mu            sync.Mutex
	remoteDescSet bool
	pending       []signal.Candidate
	closed        bool
}

// NewNegotiator wraps ps for one call. caller marks the dialing side.
func NewNegotiator(ps PeerSession, caller bool) *Negotiator {
	return &Negotiator{ps: ps, caller: caller}
}

// CreateOffer produces the caller's offer. It is invalid on the callee side.
func (n *Negotiator) CreateOffer() (string, error) {
	if !n.caller {
		return "", fmt.Errorf("negotiator: only the caller creates offers")
	}
	return n.ps.CreateOffer()
}

// HandleOffer applies the caller's offer and returns the answer. Queued
// candidates drain before the answer is created.
func (n *Negotiator) HandleOffer(sdp string) (string, error) {
	if n.caller {
		return "", fmt.Errorf("negotiator: caller received an offer")
	}
	if err := n.setRemote("offer", sdp); err != nil {
		return "", err
	}
	return n.ps.CreateAnswer()
}

// HandleAnswer applies the callee's answer on the caller side.
func (n *Negotiator) HandleAnswer(sdp string) error {
	if !n.caller {
		return fmt.Errorf("negotiator: callee received an answer")
	}
	return n.setRemote("answer", sdp)
}

func (n *Negotiator) setRemote(kind, sdp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("negotiator: closed")
	}
	if n.remoteDescSet {
		return fmt.Errorf("negotiator: remote description already set")
	}
	if err := n.ps.SetRemoteDescription(kind, sdp); err != nil {
		return fmt.Errorf("set remote %s: %w", kind, err)
	}
	n.remoteDescSet = true

	// Drain the queue in arrival order, in the same task that set the
	// description. Candidates that fail to apply are logged and skipped;
	// the rest of the queue still drains.
	for _, c := range n.pending {
		if err := n.ps.AddCandidate(c); err != nil {
			log.Warn().Err(err).Msg("queued candidate apply failed")
		}
	}
	n.pending = nil
	return nil
}

// HandleRemoteCandidate applies c now if the remote description is set,
// otherwise queues it.
func (n *Negotiator) HandleRemoteCandidate(c signal.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	if !n.remoteDescSet {
		n.pending = append(n.pending, c)
		return nil
	}
	return n.ps.AddCandidate(c)
}

// PendingCandidates reports the queue length. Non-zero only while the
// remote description is unset.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// RemoteDescriptionSet reports whether the peer's SDP has been applied.
func (n *Negotiator) RemoteDescriptionSet() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteDescSet
}

// Session exposes the underlying peer session for track replacement and
// stats sampling.
func (n *Negotiator) Session() PeerSession {
	return n.ps
}

// Close tears down the peer session and empties the queue.
func (n *Negotiator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.pending = nil
	n.mu.Unlock()
	if err := n.ps.Close(); err != nil {
		log.Warn().Err(err).Msg("peer session close")
	}
}
