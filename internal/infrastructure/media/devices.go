package media

import (
	"context"
	"sync"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const frameInterval = 20 * time.Millisecond

// opusSilence is a minimal Opus frame decoding to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// vp8Black is a placeholder VP8 payload; receivers treat it as an opaque
// frame, which is all the engine needs to keep the track alive.
var vp8Black = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}

// SyntheticDevices implements the capture port with generated tracks:
// silent audio and black video. It stands in for getUserMedia /
// getDisplayMedia on a server, and models permission denial for tests.
type SyntheticDevices struct {
	denyCapture bool
	denyScreen  bool
	logger      *zap.SugaredLogger
}

func NewSyntheticDevices(denyCapture bool, logger *zap.SugaredLogger) *SyntheticDevices {
	return &SyntheticDevices{
		denyCapture: denyCapture,
		logger:      logger,
	}
}

// SetDenyScreen makes the next GetDisplayMedia behave as a dismissed
// picker.
func (d *SyntheticDevices) SetDenyScreen(deny bool) {
	d.denyScreen = deny
}

func (d *SyntheticDevices) GetUserMedia(ctx context.Context, callType domain.CallType) (*ports.UserMedia, error) {
	if d.denyCapture {
		return nil, domain.ErrMediaAccessDenied
	}

	audio, err := newCaptureSource(ports.TrackKindAudio, "audio", "ringlink-mic")
	if err != nil {
		return nil, err
	}

	out := &ports.UserMedia{Audio: audio}
	if callType == domain.CallTypeVideo {
		video, err := newCaptureSource(ports.TrackKindVideo, "video", "ringlink-camera")
		if err != nil {
			audio.Stop()
			return nil, err
		}
		out.Video = video
	}
	return out, nil
}

func (d *SyntheticDevices) GetDisplayMedia(ctx context.Context) (ports.CaptureSource, error) {
	if d.denyScreen {
		return nil, domain.ErrScreenShareCancelled
	}
	return newCaptureSource(ports.TrackKindVideo, "screen", "ringlink-screen")
}

// captureSource is one live generated track. A pump goroutine writes a
// frame every 20ms until Stop.
type captureSource struct {
	kind  ports.TrackKind
	track *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	ended   bool
	sinks   []func(sample media.Sample)
	onEnded []func()
	stop    chan struct{}
}

func newCaptureSource(kind ports.TrackKind, id, streamID string) (*captureSource, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == ports.TrackKindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}

	track, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}

	s := &captureSource{
		kind:    kind,
		track:   track,
		enabled: true,
		stop:    make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *captureSource) pump() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	payload := opusSilence
	if s.kind == ports.TrackKindVideo {
		payload = vp8Black
	}

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			sample := media.Sample{Data: payload, Duration: frameInterval}
			// A disabled source keeps the track alive; the payload is
			// already silence/black so the sample goes out either way.
			_ = s.track.WriteSample(sample)

			s.mu.Lock()
			enabled := s.enabled
			sinks := append([]func(media.Sample){}, s.sinks...)
			s.mu.Unlock()

			if enabled {
				for _, sink := range sinks {
					sink(sample)
				}
			}
		}
	}
}

func (s *captureSource) Track() webrtc.TrackLocal {
	return s.track
}

func (s *captureSource) Kind() ports.TrackKind {
	return s.kind
}

func (s *captureSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *captureSource) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *captureSource) AddSink(sink func(sample media.Sample)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// OnEnded callbacks run on their own goroutine: Stop is reached from
// under session locks that the callbacks take again.
func (s *captureSource) OnEnded(fn func()) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		go fn()
		return
	}
	s.onEnded = append(s.onEnded, fn)
	s.mu.Unlock()
}

func (s *captureSource) Stop() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	close(s.stop)
	callbacks := s.onEnded
	s.onEnded = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		go fn()
	}
}

func (s *captureSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
