package media

import (
	"context"
	"testing"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/internal/infrastructure/signaling"
	"ringlink/pkg/logger"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, self domain.UserID) *Session {
	t.Helper()
	devices := NewSyntheticDevices(false, logger.Nop().Sugar())
	// Host candidates only; both peers live in this process.
	return NewSession(Config{}, devices, self, logger.Nop().Sugar())
}

// wireSignaling connects a session to its channel: incoming SDP and ICE
// messages from the other peer are applied, own messages are skipped.
func wireSignaling(t *testing.T, s *Session, channel ports.SignalingChannel, self domain.UserID, answerer bool) {
	t.Helper()
	channel.OnMessage(func(msg domain.SignalMessage) {
		if msg.SenderID == self {
			return
		}
		switch msg.Kind {
		case domain.SignalOffer:
			if !answerer {
				return
			}
			require.NoError(t, s.SetRemoteDescription(*msg.SDP))
			answer, err := s.CreateAnswer(context.Background())
			require.NoError(t, err)
			require.NoError(t, channel.Send(context.Background(), domain.SignalMessage{
				Kind:     domain.SignalAnswer,
				SDP:      &answer,
				SenderID: self,
			}))
		case domain.SignalAnswer:
			if answerer {
				return
			}
			require.NoError(t, s.SetRemoteDescription(*msg.SDP))
		case domain.SignalICECandidate:
			_ = s.AddICECandidate(*msg.Candidate)
		}
	})
}

func connectPair(t *testing.T, callType domain.CallType) (*Session, *Session) {
	t.Helper()

	bus := signaling.NewMemoryBus(logger.Nop().Sugar())
	callID := domain.CallID("call-loopback")

	caller := newTestSession(t, "alice")
	callee := newTestSession(t, "bob")

	callerCh, err := bus.Open(context.Background(), callID)
	require.NoError(t, err)
	calleeCh, err := bus.Open(context.Background(), callID)
	require.NoError(t, err)

	caller.AttachChannel(callerCh)
	callee.AttachChannel(calleeCh)

	require.NoError(t, caller.AcquireLocalMedia(context.Background(), callType))
	require.NoError(t, callee.AcquireLocalMedia(context.Background(), callType))
	require.NoError(t, caller.CreatePeerConnection())
	require.NoError(t, callee.CreatePeerConnection())

	callerConnected := make(chan struct{}, 1)
	calleeConnected := make(chan struct{}, 1)
	caller.SetOnStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateConnected {
			select {
			case callerConnected <- struct{}{}:
			default:
			}
		}
	})
	callee.SetOnStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateConnected {
			select {
			case calleeConnected <- struct{}{}:
			default:
			}
		}
	})

	wireSignaling(t, caller, callerCh, "alice", false)
	wireSignaling(t, callee, calleeCh, "bob", true)

	offer, err := caller.CreateOffer(context.Background())
	require.NoError(t, err)
	require.NoError(t, callerCh.Send(context.Background(), domain.SignalMessage{
		Kind:     domain.SignalOffer,
		SDP:      &offer,
		SenderID: "alice",
	}))

	for _, done := range []chan struct{}{callerConnected, calleeConnected} {
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			t.Fatal("peers did not connect")
		}
	}

	t.Cleanup(func() {
		caller.Teardown()
		callee.Teardown()
	})
	return caller, callee
}

func TestSessionLoopbackConnects(t *testing.T) {
	caller, callee := connectPair(t, domain.CallTypeVoice)
	assert.False(t, caller.Closed())
	assert.False(t, callee.Closed())
}

func TestSessionScreenShareSwapsAndRestoresTrack(t *testing.T) {
	caller, _ := connectPair(t, domain.CallTypeVideo)

	camera := caller.OutboundVideoTrack()
	require.NotNil(t, camera)

	active, err := caller.ToggleScreenShare(context.Background())
	require.NoError(t, err)
	assert.True(t, active)
	assert.True(t, caller.ScreenActive())
	assert.NotEqual(t, camera, caller.OutboundVideoTrack())

	active, err = caller.ToggleScreenShare(context.Background())
	require.NoError(t, err)
	assert.False(t, active)
	assert.False(t, caller.ScreenActive())
	// The exact camera track returns to the sender, not a new capture.
	assert.Equal(t, camera, caller.OutboundVideoTrack())
}

func TestSessionScreenShareDismissedPickerIsNoop(t *testing.T) {
	devices := NewSyntheticDevices(false, logger.Nop().Sugar())
	devices.SetDenyScreen(true)

	s := NewSession(Config{}, devices, "alice", logger.Nop().Sugar())
	require.NoError(t, s.AcquireLocalMedia(context.Background(), domain.CallTypeVideo))
	require.NoError(t, s.CreatePeerConnection())
	defer s.Teardown()

	camera := s.OutboundVideoTrack()

	active, err := s.ToggleScreenShare(context.Background())
	assert.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, camera, s.OutboundVideoTrack())
}

func TestSessionScreenCaptureEndedRestoresCamera(t *testing.T) {
	caller, _ := connectPair(t, domain.CallTypeVideo)

	camera := caller.OutboundVideoTrack()

	active, err := caller.ToggleScreenShare(context.Background())
	require.NoError(t, err)
	require.True(t, active)

	// Simulate the capture's own stop affordance.
	caller.mu.Lock()
	screen := caller.screen
	caller.mu.Unlock()
	require.NotNil(t, screen)
	screen.Stop()

	assert.Eventually(t, func() bool {
		return !caller.ScreenActive()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, camera, caller.OutboundVideoTrack())
}

func TestSessionTeardownDuringScreenShare(t *testing.T) {
	caller, _ := connectPair(t, domain.CallTypeVideo)

	active, err := caller.ToggleScreenShare(context.Background())
	require.NoError(t, err)
	require.True(t, active)

	caller.mu.Lock()
	screen := caller.screen
	caller.mu.Unlock()
	require.NotNil(t, screen)

	// Ending the call mid-share must stop the screen capture and return.
	caller.Teardown()

	assert.True(t, caller.Closed())
	assert.True(t, screen.Ended())
	assert.False(t, caller.ScreenActive())
}

func TestSessionTeardownIsIdempotentAndStopsCapture(t *testing.T) {
	devices := NewSyntheticDevices(false, logger.Nop().Sugar())
	s := NewSession(Config{}, devices, "alice", logger.Nop().Sugar())

	require.NoError(t, s.AcquireLocalMedia(context.Background(), domain.CallTypeVideo))
	require.NoError(t, s.CreatePeerConnection())

	audio := s.LocalAudio()
	require.NotNil(t, audio)

	s.Teardown()
	s.Teardown()

	assert.True(t, s.Closed())
	assert.True(t, audio.Ended())
}

func TestSessionMediaAccessDenied(t *testing.T) {
	devices := NewSyntheticDevices(true, logger.Nop().Sugar())
	s := NewSession(Config{}, devices, "alice", logger.Nop().Sugar())

	err := s.AcquireLocalMedia(context.Background(), domain.CallTypeVoice)
	assert.ErrorIs(t, err, domain.ErrMediaAccessDenied)
}

func TestSessionToggleMuteAndVideo(t *testing.T) {
	devices := NewSyntheticDevices(false, logger.Nop().Sugar())
	s := NewSession(Config{}, devices, "alice", logger.Nop().Sugar())
	require.NoError(t, s.AcquireLocalMedia(context.Background(), domain.CallTypeVideo))
	defer s.Teardown()

	muted, err := s.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)
	muted, err = s.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)

	enabled, err := s.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, enabled)
	enabled, err = s.ToggleVideo()
	require.NoError(t, err)
	assert.True(t, enabled)
}
