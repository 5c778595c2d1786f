// Package signal defines the wire contract between clients and the relay.
// Every message is an Envelope whose Payload is decoded per Type at the
// parsing boundary; unknown types are rejected before reaching any handler.
package signal

import (
	"encoding/json"
	"fmt"
)

// Type identifies a signaling envelope.
type Type string

const (
	TypeRegister     Type = "register"
	TypeRegistered   Type = "registered"
	TypeCall         Type = "call"
	TypeAcceptCall   Type = "accept-call"
	TypeRejectCall   Type = "reject-call"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeHold         Type = "hold"
	TypeResume       Type = "resume"
	TypeHangup       Type = "hangup"
	TypeTransfer     Type = "transfer"
	TypeTransferring Type = "transferring"
	TypeError        Type = "error"
	TypePing         Type = "ping"
	TypePong         Type = "pong"
)

var knownTypes = map[Type]bool{
	TypeRegister: true, TypeRegistered: true,
	TypeCall: true, TypeAcceptCall: true, TypeRejectCall: true,
	TypeOffer: true, TypeAnswer: true, TypeICECandidate: true,
	TypeHold: true, TypeResume: true, TypeHangup: true,
	TypeTransfer: true, TypeTransferring: true, TypeError: true,
	TypePing: true, TypePong: true,
}

// Envelope is one signaling message. From/To are staff user identifiers;
// the relay routes by To and stamps From.
type Envelope struct {
	Type    Type            `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CallType distinguishes audio-only from audio+video sessions.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// RegisterPayload authenticates the connection with the relay.
type RegisterPayload struct {
	Token string `json:"token,omitempty"`
}

// CallPayload rings the callee.
type CallPayload struct {
	CallType CallType `json:"call_type"`
}

// SDPPayload carries an offer or answer session description.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// Candidate is one network-reachability datum exchanged during negotiation.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// CandidatePayload carries a single trickled ICE candidate.
type CandidatePayload struct {
	Candidate Candidate `json:"candidate"`
}

// RejectPayload explains a declined call.
type RejectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// HangupPayload optionally reports how long the call lasted, in seconds.
type HangupPayload struct {
	Duration float64 `json:"duration,omitempty"`
}

// TransferPayload asks the peer to move the session to another party.
type TransferPayload struct {
	PartyID string `json:"party_id"`
	To      string `json:"to,omitempty"`
}

// ErrorPayload is a relay-reported failure.
type ErrorPayload struct {
	Message string `json:"message"`
	Peer    string `json:"peer,omitempty"`
}

// Parse decodes raw bytes into an Envelope, rejecting unknown types.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}
	if !knownTypes[env.Type] {
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return &env, nil
}

// New builds an envelope with an encoded payload. A nil payload leaves
// the Payload field empty.
func New(t Type, from, to string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, From: from, To: to}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
