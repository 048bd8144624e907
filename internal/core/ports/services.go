package ports

import (
	"context"

	"ringlink/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// CallService coordinates the per-peer call lifecycle: signaling, media,
// status transitions and recording.
type CallService interface {
	StartCall(ctx context.Context, callerID domain.UserID, conversationID domain.ConversationID, callType domain.CallType) (*domain.CallState, error)
	Answer(ctx context.Context, userID domain.UserID) (*domain.CallState, error)
	Decline(ctx context.Context, userID domain.UserID) error
	Hangup(ctx context.Context, userID domain.UserID) error

	ToggleMute(ctx context.Context, userID domain.UserID) (bool, error)
	ToggleVideo(ctx context.Context, userID domain.UserID) (bool, error)
	ToggleScreenShare(ctx context.Context, userID domain.UserID) (bool, error)

	StartRecording(ctx context.Context, userID domain.UserID) error
	StopRecording(ctx context.Context, userID domain.UserID) error

	CurrentCall(userID domain.UserID) (*domain.CallState, bool)

	// RegisterPeer makes userID eligible for incoming-call delivery;
	// UnregisterPeer stops delivery. The gateway calls these on connect
	// and disconnect.
	RegisterPeer(userID domain.UserID)
	UnregisterPeer(userID domain.UserID)
}

// CallEvent is pushed to a peer's client when its call state changes.
type CallEvent struct {
	Kind  string            `json:"kind"`
	State *domain.CallState `json:"state,omitempty"`
}

// EventSink receives per-user call events (incoming call, status changes).
type EventSink func(userID domain.UserID, event CallEvent)

// SignalingBus opens broadcast topics scoped by call id.
type SignalingBus interface {
	Open(ctx context.Context, callID domain.CallID) (SignalingChannel, error)
}

// SignalingChannel is a best-effort, at-least-once broadcast channel. Every
// published message is delivered to all subscribers of the topic, the sender
// included; messages sent before a subscriber attached are lost.
type SignalingChannel interface {
	Send(ctx context.Context, msg domain.SignalMessage) error
	OnMessage(handler func(msg domain.SignalMessage))
	Close() error
}

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// CaptureSource is a live local capture feeding one outbound track.
type CaptureSource interface {
	Track() webrtc.TrackLocal
	Kind() TrackKind

	// SetEnabled flips delivery without stopping the device; a disabled
	// source keeps its track alive and sends silence/black frames.
	SetEnabled(enabled bool)
	Enabled() bool

	// AddSink taps the raw sample stream, used by the recording mixer.
	AddSink(sink func(sample media.Sample))

	// OnEnded fires once, on its own goroutine, when the capture ends for
	// any reason, including the device's own stop affordance. Stop must be
	// callable from under locks the callback takes.
	OnEnded(fn func())

	// Stop releases the device. Idempotent.
	Stop()
	Ended() bool
}

// UserMedia is the result of a local capture request. Video is nil for
// voice calls.
type UserMedia struct {
	Audio CaptureSource
	Video CaptureSource
}

// Devices abstracts media capture. GetUserMedia fails with
// domain.ErrMediaAccessDenied when permission is denied or no device
// exists; GetDisplayMedia fails with domain.ErrScreenShareCancelled when
// the picker is dismissed.
type Devices interface {
	GetUserMedia(ctx context.Context, callType domain.CallType) (*UserMedia, error)
	GetDisplayMedia(ctx context.Context) (CaptureSource, error)
}

// SoundPlayer triggers short local audio cues. Fire-and-forget; no result
// is observed.
type SoundPlayer interface {
	Play(userID domain.UserID, cue string)
	Stop(userID domain.UserID)
}

// MediaSession owns local capture, the peer connection and outbound track
// swapping for one side of a call.
type MediaSession interface {
	AttachChannel(channel SignalingChannel)
	SetOnDegraded(fn func())

	AcquireLocalMedia(ctx context.Context, callType domain.CallType) error
	CreatePeerConnection() error
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	ScreenActive() bool

	LocalAudio() CaptureSource
	RemoteAudio() *webrtc.TrackRemote
	RemoteVideo() *webrtc.TrackRemote

	// Teardown is idempotent; it is reached from hangup, the remote
	// call-ended signal and connection degradation.
	Teardown()
	Closed() bool
}

// MediaSessionFactory builds a fresh media session bound to the local
// identity. One session serves exactly one call.
type MediaSessionFactory func(self domain.UserID) MediaSession

// Recorder captures call media into a single uploadable blob. At most one
// recording per call.
type Recorder interface {
	Start(callID domain.CallID, callerID domain.UserID, localAudio CaptureSource, remoteAudio, remoteVideo *webrtc.TrackRemote) error
	Active(callID domain.CallID) bool
	Stop(ctx context.Context, callID domain.CallID) error
}
