package recording

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"go.uber.org/zap"
)

const (
	opusClockRate   = 48000
	opusChannels    = 2
	opusPayloadType = 111
	opusFrameSize   = 960 // 20ms at 48kHz
	packetizerMTU   = 1200
)

// Mixer records active calls. Both parties' Opus frames are re-stamped
// onto a single timeline and written to one Ogg stream; simultaneous
// speech is serialized rather than summed, which keeps the mixer
// codec-free. Video calls additionally capture the remote video into IVF.
type Mixer struct {
	store  ports.RecordingStore
	repo   ports.CallRepository
	logger *zap.SugaredLogger

	mu     sync.Mutex
	active map[domain.CallID]*recording
}

func NewMixer(store ports.RecordingStore, repo ports.CallRepository, logger *zap.SugaredLogger) *Mixer {
	return &Mixer{
		store:  store,
		repo:   repo,
		logger: logger,
		active: make(map[domain.CallID]*recording),
	}
}

type recording struct {
	callID   domain.CallID
	callerID domain.UserID

	mu         sync.Mutex
	stopped    bool
	audioBuf   *bytes.Buffer
	videoBuf   *bytes.Buffer
	ogg        *oggwriter.OggWriter
	ivf        *ivfwriter.IVFWriter
	packetizer rtp.Packetizer
}

// Start begins recording one call. A second Start for the same call fails
// with domain.ErrRecordingActive. The remote video track is nil for voice
// calls.
func (m *Mixer) Start(
	callID domain.CallID,
	callerID domain.UserID,
	localAudio ports.CaptureSource,
	remoteAudio *webrtc.TrackRemote,
	remoteVideo *webrtc.TrackRemote,
) error {
	m.mu.Lock()
	if _, exists := m.active[callID]; exists {
		m.mu.Unlock()
		return domain.ErrRecordingActive
	}

	rec := &recording{
		callID:   callID,
		callerID: callerID,
		audioBuf: &bytes.Buffer{},
		packetizer: rtp.NewPacketizer(
			packetizerMTU,
			opusPayloadType,
			1,
			&codecs.OpusPayloader{},
			rtp.NewRandomSequencer(),
			opusClockRate,
		),
	}

	ogg, err := oggwriter.NewWith(rec.audioBuf, opusClockRate, opusChannels)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create ogg writer: %w", err)
	}
	rec.ogg = ogg

	if remoteVideo != nil {
		rec.videoBuf = &bytes.Buffer{}
		ivf, err := ivfwriter.NewWith(rec.videoBuf)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to create ivf writer: %w", err)
		}
		rec.ivf = ivf
	}

	m.active[callID] = rec
	m.mu.Unlock()

	if localAudio != nil {
		localAudio.AddSink(func(sample media.Sample) {
			rec.writeFrame(sample.Data)
		})
	}
	if remoteAudio != nil {
		go rec.copyRemoteAudio(remoteAudio)
	}
	if remoteVideo != nil {
		go rec.copyRemoteVideo(remoteVideo, m.logger)
	}

	m.logger.Infow("recording started",
		"call_id", callID,
		"video", remoteVideo != nil,
	)
	return nil
}

// Active reports whether a recording is in progress for the call.
func (m *Mixer) Active(callID domain.CallID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[callID]
	return ok
}

// Stop finalizes the recording, uploads the blobs and patches the call
// record with the audio URL. Upload and patch failures are logged and
// swallowed; the call outcome never depends on the recording.
func (m *Mixer) Stop(ctx context.Context, callID domain.CallID) error {
	m.mu.Lock()
	rec, ok := m.active[callID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNoRecording
	}
	delete(m.active, callID)
	m.mu.Unlock()

	audio, video := rec.finalize()

	path := fmt.Sprintf("recordings/%s/%s.ogg", rec.callerID, rec.callID)
	url, err := m.store.Upload(ctx, path, audio)
	if err != nil {
		m.logger.Warnw("recording upload failed",
			"call_id", callID,
			"error", err,
		)
		return nil
	}

	if video != nil {
		videoPath := fmt.Sprintf("recordings/%s/%s.ivf", rec.callerID, rec.callID)
		if _, err := m.store.Upload(ctx, videoPath, video); err != nil {
			m.logger.Warnw("video recording upload failed",
				"call_id", callID,
				"error", err,
			)
		}
	}

	if _, err := m.repo.Update(ctx, callID, domain.CallUpdate{RecordingURL: &url}); err != nil {
		m.logger.Warnw("failed to patch recording url",
			"call_id", callID,
			"error", err,
		)
		return nil
	}

	m.logger.Infow("recording stored",
		"call_id", callID,
		"url", url,
		"audio_bytes", len(audio),
	)
	return nil
}

// writeFrame re-packetizes one 20ms Opus frame onto the recording's own
// timestamp line and appends it to the Ogg stream.
func (r *recording) writeFrame(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	for _, pkt := range r.packetizer.Packetize(payload, opusFrameSize) {
		if err := r.ogg.WriteRTP(pkt); err != nil {
			return
		}
	}
}

func (r *recording) copyRemoteAudio(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		r.writeFrame(pkt.Payload)
	}
}

func (r *recording) copyRemoteVideo(track *webrtc.TrackRemote, logger *zap.SugaredLogger) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		if err := r.ivf.WriteRTP(pkt); err != nil {
			r.mu.Unlock()
			logger.Debugw("dropping video packet", "error", err)
			continue
		}
		r.mu.Unlock()
	}
}

// finalize closes the writers and returns the finished blobs. Video is
// nil for voice calls.
func (r *recording) finalize() (audio, video []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return r.audioBuf.Bytes(), nil
	}
	r.stopped = true

	_ = r.ogg.Close()
	audio = r.audioBuf.Bytes()
	if r.ivf != nil {
		_ = r.ivf.Close()
		video = r.videoBuf.Bytes()
	}
	return audio, video
}
