package memory

import (
	"context"
	"testing"
	"time"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/stretchr/testify/assert"
)

func ringingRecord(id domain.CallID) *domain.CallRecord {
	return &domain.CallRecord{
		ID:             id,
		ConversationID: "conv-1",
		CallerID:       "user-a",
		Type:           domain.CallTypeVoice,
		Status:         domain.CallStatusRinging,
		CreatedAt:      time.Now(),
	}
}

func TestInsertAndGet(t *testing.T) {
	repo := NewMemoryCallRepository()
	ctx := context.Background()

	err := repo.Insert(ctx, ringingRecord("call-1"))
	assert.NoError(t, err)

	got, err := repo.GetByID(ctx, "call-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusRinging, got.Status)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestInsert_DuplicateFails(t *testing.T) {
	repo := NewMemoryCallRepository()
	ctx := context.Background()

	assert.NoError(t, repo.Insert(ctx, ringingRecord("call-1")))
	assert.Error(t, repo.Insert(ctx, ringingRecord("call-1")))
}

func TestUpdate_TerminalStatusIsAbsorbing(t *testing.T) {
	repo := NewMemoryCallRepository()
	ctx := context.Background()
	assert.NoError(t, repo.Insert(ctx, ringingRecord("call-1")))

	ended := domain.CallStatusEnded
	now := time.Now()
	_, err := repo.Update(ctx, "call-1", domain.CallUpdate{Status: &ended, EndedAt: &now})
	assert.NoError(t, err)

	// once terminal, further transitions are rejected
	active := domain.CallStatusActive
	_, err = repo.Update(ctx, "call-1", domain.CallUpdate{Status: &active})
	assert.ErrorIs(t, err, domain.ErrCallTerminal)

	got, _ := repo.GetByID(ctx, "call-1")
	assert.Equal(t, domain.CallStatusEnded, got.Status)
	assert.NotNil(t, got.EndedAt)
}

func TestUpdate_RecordingURLPatchAllowedOnTerminal(t *testing.T) {
	repo := NewMemoryCallRepository()
	ctx := context.Background()
	assert.NoError(t, repo.Insert(ctx, ringingRecord("call-1")))

	ended := domain.CallStatusEnded
	now := time.Now()
	_, err := repo.Update(ctx, "call-1", domain.CallUpdate{Status: &ended, EndedAt: &now})
	assert.NoError(t, err)

	// The recording flush can land after the other peer ended the call;
	// a URL-only patch is still accepted.
	url := "https://files.test/recordings/user-a/call-1.ogg"
	_, err = repo.Update(ctx, "call-1", domain.CallUpdate{RecordingURL: &url})
	assert.NoError(t, err)

	// The URL cannot smuggle a status change past the guard.
	active := domain.CallStatusActive
	_, err = repo.Update(ctx, "call-1", domain.CallUpdate{Status: &active, RecordingURL: &url})
	assert.ErrorIs(t, err, domain.ErrCallTerminal)

	got, _ := repo.GetByID(ctx, "call-1")
	assert.Equal(t, domain.CallStatusEnded, got.Status)
	assert.Equal(t, url, got.RecordingURL)
}

func TestSubscribe_ObserversSeeInsertAndUpdate(t *testing.T) {
	repo := NewMemoryCallRepository()
	ctx := context.Background()

	var inserts, updates []*domain.CallRecord
	err := repo.Subscribe(ctx, ports.CallObserver{
		OnInsert: func(rec *domain.CallRecord) { inserts = append(inserts, rec) },
		OnUpdate: func(rec *domain.CallRecord) { updates = append(updates, rec) },
	})
	assert.NoError(t, err)

	assert.NoError(t, repo.Insert(ctx, ringingRecord("call-1")))
	active := domain.CallStatusActive
	_, err = repo.Update(ctx, "call-1", domain.CallUpdate{Status: &active})
	assert.NoError(t, err)

	assert.Len(t, inserts, 1)
	assert.Equal(t, domain.CallID("call-1"), inserts[0].ID)
	assert.Len(t, updates, 1)
	assert.Equal(t, domain.CallStatusActive, updates[0].Status)
}

func TestMembership(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	repo.AddMember("conv-1", "user-a")
	repo.AddMember("conv-1", "user-b")

	ok, err := repo.IsMember(ctx, "conv-1", "user-b")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, _ = repo.IsMember(ctx, "conv-1", "user-z")
	assert.False(t, ok)

	ok, _ = repo.IsMember(ctx, "conv-404", "user-a")
	assert.False(t, ok)
}
