package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// fakePeerSession records every call in order.
type fakePeerSession struct {
	remoteKind   string
	remoteSDP    string
	applied      []signal.Candidate
	closed       bool
	candidateErr map[string]error
}

func newFakePeerSession() *fakePeerSession {
	return &fakePeerSession{candidateErr: make(map[string]error)}
}

func (f *fakePeerSession) CreateOffer() (string, error)  { return "offer-sdp", nil }
func (f *fakePeerSession) CreateAnswer() (string, error) { return "answer-sdp", nil }

func (f *fakePeerSession) SetRemoteDescription(kind, sdp string) error {
	f.remoteKind = kind
	f.remoteSDP = sdp
	return nil
}

func (f *fakePeerSession) AddCandidate(c signal.Candidate) error {
	if err := f.candidateErr[c.Candidate]; err != nil {
		return err
	}
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakePeerSession) AttachLocal(h Handle) error         { return nil }
func (f *fakePeerSession) ReplaceVideoTrack(h Handle) error   { return nil }
func (f *fakePeerSession) ReplaceAudioTrack(h Handle) error   { return nil }
func (f *fakePeerSession) Stats() (Stats, error)              { return Stats{}, nil }
func (f *fakePeerSession) OnCandidate(func(signal.Candidate)) {}
func (f *fakePeerSession) OnRemoteHandle(func(Handle))        {}
func (f *fakePeerSession) OnStateChange(func(ConnState))      {}
func (f *fakePeerSession) Close() error                       { f.closed = true; return nil }

func cand(i int) signal.Candidate {
	return signal.Candidate{Candidate: fmt.Sprintf("candidate:%d", i), SDPMid: "0"}
}

func TestEarlyCandidatesQueuedThenFlushedInOrder(t *testing.T) {
	ps := newFakePeerSession()
	n := NewNegotiator(ps, false)

	for i := 0; i < 5; i++ {
		require.NoError(t, n.HandleRemoteCandidate(cand(i)))
	}
	assert.Equal(t, 5, n.PendingCandidates())
	assert.Empty(t, ps.applied, "no candidate may apply before the remote description")

	answer, err := n.HandleOffer("remote-offer")
	require.NoError(t, err)
	assert.Equal(t, "answer-sdp", answer)
	assert.Equal(t, "offer", ps.remoteKind)

	require.Len(t, ps.applied, 5)
	for i, c := range ps.applied {
		assert.Equal(t, cand(i), c, "flush must preserve arrival order")
	}
	assert.Zero(t, n.PendingCandidates(), "queue must drain exactly once")
}

func TestCandidatesApplyImmediatelyAfterRemoteDescription(t *testing.T) {
	ps := newFakePeerSession()
	n := NewNegotiator(ps, true)

	require.NoError(t, n.HandleAnswer("remote-answer"))
	assert.Equal(t, "answer", ps.remoteKind)

	require.NoError(t, n.HandleRemoteCandidate(cand(0)))
	assert.Len(t, ps.applied, 1)
	assert.Zero(t, n.PendingCandidates())
}

func TestFailedQueuedCandidateSkipped(t *testing.T) {
	ps := newFakePeerSession()
	ps.candidateErr[cand(1).Candidate] = errors.New("bad candidate")
	n := NewNegotiator(ps, false)

	for i := 0; i < 3; i++ {
		require.NoError(t, n.HandleRemoteCandidate(cand(i)))
	}
	_, err := n.HandleOffer("remote-offer")
	require.NoError(t, err, "one bad candidate must not fail negotiation")

	require.Len(t, ps.applied, 2)
	assert.Equal(t, cand(0), ps.applied[0])
	assert.Equal(t, cand(2), ps.applied[1])
}

func TestRoleEnforcement(t *testing.T) {
	callee := NewNegotiator(newFakePeerSession(), false)
	_, err := callee.CreateOffer()
	assert.Error(t, err, "callee must not create offers")
	assert.Error(t, callee.HandleAnswer("sdp"), "callee must not receive answers")

	caller := NewNegotiator(newFakePeerSession(), true)
	_, err = caller.HandleOffer("sdp")
	assert.Error(t, err, "caller must not receive offers")
}

func TestRemoteDescriptionOnlyOnce(t *testing.T) {
	ps := newFakePeerSession()
	n := NewNegotiator(ps, true)

	require.NoError(t, n.HandleAnswer("first"))
	assert.Error(t, n.HandleAnswer("second"))
	assert.Equal(t, "first", ps.remoteSDP)
}

func TestCloseDropsQueueAndSession(t *testing.T) {
	ps := newFakePeerSession()
	n := NewNegotiator(ps, false)

	require.NoError(t, n.HandleRemoteCandidate(cand(0)))
	n.Close()

	assert.True(t, ps.closed)
	assert.Zero(t, n.PendingCandidates())
	assert.NoError(t, n.HandleRemoteCandidate(cand(1)), "candidates after close are ignored")
	assert.Empty(t, ps.applied)
}
