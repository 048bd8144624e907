package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config carries the WebRTC configuration for a session.
type Config struct {
	ICEServers []webrtc.ICEServer
}

// DefaultConfig uses two public STUN servers. No TURN: a pair of peers
// behind symmetric NATs will simply never connect and the call rings out.
func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

// Session owns local capture, the peer connection and track swapping for
// one call. The camera and screen are mutually exclusive on the single
// outbound video sender; swapping uses ReplaceTrack so no renegotiation
// happens.
type Session struct {
	cfg     Config
	devices ports.Devices
	self    domain.UserID
	logger  *zap.SugaredLogger

	mu            sync.Mutex
	channel       ports.SignalingChannel
	pc            *webrtc.PeerConnection
	local         *ports.UserMedia
	screen        ports.CaptureSource
	originalVideo webrtc.TrackLocal
	audioSender   *webrtc.RTPSender
	videoSender   *webrtc.RTPSender
	remoteAudio   *webrtc.TrackRemote
	remoteVideo   *webrtc.TrackRemote
	closed        bool
	degraded      bool

	onDegraded    func()
	onRemoteTrack func(track *webrtc.TrackRemote)
	onStateChange func(state webrtc.PeerConnectionState)
}

func NewSession(cfg Config, devices ports.Devices, self domain.UserID, logger *zap.SugaredLogger) *Session {
	return &Session{
		cfg:     cfg,
		devices: devices,
		self:    self,
		logger:  logger,
	}
}

// AttachChannel wires the signaling channel used for outgoing ICE
// candidates. Must be called before CreateOffer / CreateAnswer.
func (s *Session) AttachChannel(channel ports.SignalingChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channel
}

// SetOnDegraded registers the cleanup trigger for disconnected/failed
// connection states.
func (s *Session) SetOnDegraded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDegraded = fn
}

func (s *Session) SetOnRemoteTrack(fn func(track *webrtc.TrackRemote)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteTrack = fn
}

func (s *Session) SetOnStateChange(fn func(state webrtc.PeerConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// AcquireLocalMedia requests microphone (and camera for video calls)
// capture. Call setup must abort on domain.ErrMediaAccessDenied.
func (s *Session) AcquireLocalMedia(ctx context.Context, callType domain.CallType) error {
	local, err := s.devices.GetUserMedia(ctx, callType)
	if err != nil {
		if errors.Is(err, domain.ErrMediaAccessDenied) {
			return err
		}
		return fmt.Errorf("failed to acquire local media: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// The call UI went away while the permission prompt was pending;
		// release the orphaned capture.
		local.Audio.Stop()
		if local.Video != nil {
			local.Video.Stop()
		}
		return domain.ErrNoActiveCall
	}
	s.local = local
	return nil
}

// CreatePeerConnection builds the connection, adds the local tracks and
// registers the ICE, track and state callbacks.
func (s *Session) CreatePeerConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local == nil {
		return fmt.Errorf("local media not acquired")
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: s.cfg.ICEServers,
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		s.mu.Lock()
		channel := s.channel
		s.mu.Unlock()
		if channel == nil {
			return
		}

		init := candidate.ToJSON()
		if err := channel.Send(context.Background(), domain.SignalMessage{
			Kind:      domain.SignalICECandidate,
			Candidate: &init,
			SenderID:  s.self,
		}); err != nil {
			s.logger.Warnw("failed to send ICE candidate", "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.logger.Infow("remote track received",
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)

		s.mu.Lock()
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			s.remoteAudio = track
		case webrtc.RTPCodecTypeVideo:
			s.remoteVideo = track
		}
		onRemoteTrack := s.onRemoteTrack
		s.mu.Unlock()

		go s.readRTCP(receiver)

		if onRemoteTrack != nil {
			onRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Infow("peer connection state changed", "state", state.String())

		s.mu.Lock()
		onStateChange := s.onStateChange
		var onDegraded func()
		if state == webrtc.PeerConnectionStateDisconnected || state == webrtc.PeerConnectionStateFailed {
			if !s.degraded && !s.closed {
				s.degraded = true
				onDegraded = s.onDegraded
			}
		}
		s.mu.Unlock()

		if onStateChange != nil {
			onStateChange(state)
		}
		if onDegraded != nil {
			onDegraded()
		}
	})

	s.audioSender, err = pc.AddTrack(s.local.Audio.Track())
	if err != nil {
		pc.Close()
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	if s.local.Video != nil {
		s.videoSender, err = pc.AddTrack(s.local.Video.Track())
		if err != nil {
			pc.Close()
			return fmt.Errorf("failed to add video track: %w", err)
		}
	}

	s.pc = pc
	return nil
}

// CreateOffer generates the SDP offer and sets it as the local
// description before returning it.
func (s *Session) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer connection not created")
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return offer, nil
}

// CreateAnswer generates the SDP answer and sets it as the local
// description before returning it.
func (s *Session) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("peer connection not created")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return answer, nil
}

func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("peer connection not created")
	}
	return pc.SetRemoteDescription(desc)
}

// AddICECandidate applies a remote candidate. Candidates arriving before
// the remote description are dropped; the call-setup window is short
// enough that the ring timeout covers the loss.
func (s *Session) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("peer connection not created")
	}
	if pc.RemoteDescription() == nil {
		s.logger.Debugw("dropping ICE candidate before remote description")
		return nil
	}
	return pc.AddICECandidate(candidate)
}

// ToggleScreenShare swaps between Camera-Active and Screen-Active. A
// dismissed screen picker is a silent no-op. Returns whether screen share
// is active after the call.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.screen != nil {
		err := s.stopScreenShareLocked()
		s.mu.Unlock()
		return false, err
	}
	videoSender := s.videoSender
	s.mu.Unlock()

	if videoSender == nil {
		return false, fmt.Errorf("no outbound video track to replace")
	}

	screen, err := s.devices.GetDisplayMedia(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrScreenShareCancelled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to capture screen: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		screen.Stop()
		return false, domain.ErrNoActiveCall
	}

	// Save the camera track so Screen -> Camera restores the exact same
	// track; ReplaceTrack keeps the transceiver, so no offer exchange.
	s.originalVideo = videoSender.Track()
	if err := videoSender.ReplaceTrack(screen.Track()); err != nil {
		screen.Stop()
		return false, fmt.Errorf("failed to replace video track: %w", err)
	}
	s.screen = screen

	// The capture's own stop affordance must run the same transition as
	// the explicit toggle.
	screen.OnEnded(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.screen == screen {
			if err := s.stopScreenShareLocked(); err != nil {
				s.logger.Warnw("failed to restore camera after screen capture ended", "error", err)
			}
		}
	})

	return true, nil
}

func (s *Session) stopScreenShareLocked() error {
	screen := s.screen
	if screen == nil {
		return nil
	}
	s.screen = nil

	if s.videoSender != nil && s.originalVideo != nil {
		if err := s.videoSender.ReplaceTrack(s.originalVideo); err != nil {
			screen.Stop()
			return fmt.Errorf("failed to restore camera track: %w", err)
		}
	}
	s.originalVideo = nil
	screen.Stop()
	return nil
}

// ToggleMute flips the local audio enabled flag without stopping the
// track. Returns true when muted.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return false, domain.ErrNoActiveCall
	}
	enabled := !s.local.Audio.Enabled()
	s.local.Audio.SetEnabled(enabled)
	return !enabled, nil
}

// ToggleVideo flips the local camera enabled flag. Returns true when the
// camera is enabled.
func (s *Session) ToggleVideo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil || s.local.Video == nil {
		return false, domain.ErrNoActiveCall
	}
	enabled := !s.local.Video.Enabled()
	s.local.Video.SetEnabled(enabled)
	return enabled, nil
}

func (s *Session) LocalAudio() ports.CaptureSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return nil
	}
	return s.local.Audio
}

func (s *Session) RemoteAudio() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAudio
}

func (s *Session) RemoteVideo() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteVideo
}

// OutboundVideoTrack returns the track currently feeding the video sender.
func (s *Session) OutboundVideoTrack() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoSender == nil {
		return nil
	}
	return s.videoSender.Track()
}

func (s *Session) ScreenActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen != nil
}

// Teardown stops every local capture and closes the peer connection.
// Idempotent: it is reached from hangup, the remote call-ended signal and
// connection degradation, in any order.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	if s.screen != nil {
		s.screen.Stop()
		s.screen = nil
	}
	if s.local != nil {
		s.local.Audio.Stop()
		if s.local.Video != nil {
			s.local.Video.Stop()
		}
	}
	pc := s.pc
	s.pc = nil
	s.remoteAudio = nil
	s.remoteVideo = nil
	s.originalVideo = nil
	s.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			s.logger.Warnw("failed to close peer connection", "error", err)
		}
	}
}

// Closed reports whether Teardown ran.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readRTCP drains receiver reports for logging; pion requires the RTCP
// stream to be read for interceptors to run.
func (s *Session) readRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if report, ok := packet.(*rtcp.ReceiverReport); ok {
				for _, r := range report.Reports {
					s.logger.Debugw("receiver report",
						"fraction_lost", r.FractionLost,
						"jitter", r.Jitter,
					)
				}
			}
		}
	}
}
