package domain

import (
	"github.com/pion/webrtc/v3"
)

// SignalKind is the closed set of message variants carried over a call's
// broadcast topic.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
	SignalCallEnded    SignalKind = "call-ended"
)

// SignalMessage is a transient signaling payload. The broadcast topic
// delivers every message to all subscribers including the sender; consumers
// must discard messages whose SenderID equals the local identity.
type SignalMessage struct {
	Kind      SignalKind                 `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	SenderID  UserID                     `json:"sender_id"`
}
