package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/infrastructure/media"
	"ringlink/internal/infrastructure/repositories/memory"
	"ringlink/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (s *fakeStore) Upload(ctx context.Context, path string, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("storage unavailable")
	}
	s.uploads[path] = blob
	return "https://files.test/" + path, nil
}

func activeCallFixture(t *testing.T, repo *memory.MemoryCallRepository, id domain.CallID) {
	t.Helper()
	started := time.Now()
	require.NoError(t, repo.Insert(context.Background(), &domain.CallRecord{
		ID:             id,
		ConversationID: "conv-1",
		CallerID:       "alice",
		Type:           domain.CallTypeVoice,
		Status:         domain.CallStatusActive,
		StartedAt:      &started,
		CreatedAt:      started,
	}))
}

func TestMixerStartTwiceFails(t *testing.T) {
	repo := memory.NewMemoryCallRepository()
	mixer := NewMixer(newFakeStore(), repo, logger.Nop().Sugar())

	require.NoError(t, mixer.Start("call-1", "alice", nil, nil, nil))
	err := mixer.Start("call-1", "alice", nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrRecordingActive)

	assert.True(t, mixer.Active("call-1"))
	require.NoError(t, mixer.Stop(context.Background(), "call-1"))
	assert.False(t, mixer.Active("call-1"))
}

func TestMixerStopWithoutRecording(t *testing.T) {
	mixer := NewMixer(newFakeStore(), memory.NewMemoryCallRepository(), logger.Nop().Sugar())
	err := mixer.Stop(context.Background(), "call-unknown")
	assert.ErrorIs(t, err, domain.ErrNoRecording)
}

func TestMixerStopUploadsAndPatchesRecord(t *testing.T) {
	repo := memory.NewMemoryCallRepository()
	store := newFakeStore()
	mixer := NewMixer(store, repo, logger.Nop().Sugar())

	activeCallFixture(t, repo, "call-1")

	devices := media.NewSyntheticDevices(false, logger.Nop().Sugar())
	userMedia, err := devices.GetUserMedia(context.Background(), domain.CallTypeVoice)
	require.NoError(t, err)
	defer userMedia.Audio.Stop()

	require.NoError(t, mixer.Start("call-1", "alice", userMedia.Audio, nil, nil))

	// Let the capture pump feed a few frames through the sink.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, mixer.Stop(context.Background(), "call-1"))

	store.mu.Lock()
	blob, ok := store.uploads["recordings/alice/call-1.ogg"]
	store.mu.Unlock()
	require.True(t, ok)
	assert.NotEmpty(t, blob)

	record, err := repo.GetByID(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/recordings/alice/call-1.ogg", record.RecordingURL)
	assert.Equal(t, domain.CallStatusActive, record.Status)
}

func TestMixerStopAfterCallEndedStillPatchesURL(t *testing.T) {
	repo := memory.NewMemoryCallRepository()
	store := newFakeStore()
	mixer := NewMixer(store, repo, logger.Nop().Sugar())

	activeCallFixture(t, repo, "call-1")
	require.NoError(t, mixer.Start("call-1", "alice", nil, nil, nil))

	// The other peer hangs up before the flush runs; the record is already
	// terminal when the upload finishes.
	ended := domain.CallStatusEnded
	now := time.Now()
	_, err := repo.Update(context.Background(), "call-1", domain.CallUpdate{Status: &ended, EndedAt: &now})
	require.NoError(t, err)

	require.NoError(t, mixer.Stop(context.Background(), "call-1"))

	record, err := repo.GetByID(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, record.Status)
	assert.Equal(t, "https://files.test/recordings/alice/call-1.ogg", record.RecordingURL)
}

func TestMixerUploadFailureDoesNotTouchRecord(t *testing.T) {
	repo := memory.NewMemoryCallRepository()
	store := newFakeStore()
	store.fail = true
	mixer := NewMixer(store, repo, logger.Nop().Sugar())

	activeCallFixture(t, repo, "call-1")

	require.NoError(t, mixer.Start("call-1", "alice", nil, nil, nil))
	assert.NoError(t, mixer.Stop(context.Background(), "call-1"))

	record, err := repo.GetByID(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Empty(t, record.RecordingURL)
	assert.Equal(t, domain.CallStatusActive, record.Status)
}
