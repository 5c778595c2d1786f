package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	env, err := New(TypeCall, "alice", "bob", CallPayload{CallType: CallTypeVideo})
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, TypeCall, parsed.Type)
	assert.Equal(t, "alice", parsed.From)
	assert.Equal(t, "bob", parsed.To)

	var p CallPayload
	require.NoError(t, parsed.DecodePayload(&p))
	assert.Equal(t, CallTypeVideo, p.CallType)
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"teleport","from":"a","to":"b"}`))
	assert.Error(t, err)
}

func TestParseMissingType(t *testing.T) {
	_, err := Parse([]byte(`{"from":"a","to":"b"}`))
	assert.Error(t, err)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestParseAllKnownTypes(t *testing.T) {
	for typ := range knownTypes {
		env, err := New(typ, "a", "b", nil)
		require.NoError(t, err)
		data, err := env.Encode()
		require.NoError(t, err)
		if _, err := Parse(data); err != nil {
			t.Errorf("type %q should parse: %v", typ, err)
		}
	}
}

func TestCandidatePayload(t *testing.T) {
	c := Candidate{
		Candidate:     "candidate:1 1 udp 2122260223 192.168.1.7 54321 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}
	env, err := New(TypeICECandidate, "alice", "bob", CandidatePayload{Candidate: c})
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)
	parsed, err := Parse(data)
	require.NoError(t, err)

	var p CandidatePayload
	require.NoError(t, parsed.DecodePayload(&p))
	assert.Equal(t, c, p.Candidate)
}

func TestNilPayloadOmitted(t *testing.T) {
	env, err := New(TypeHold, "alice", "bob", nil)
	require.NoError(t, err)
	assert.Nil(t, env.Payload)
}
