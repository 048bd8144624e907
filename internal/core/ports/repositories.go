package ports

import (
	"context"

	"ringlink/internal/core/domain"
)

// CallObserver receives call record events. Handlers must be quick; they are
// invoked on the subscriber's delivery goroutine.
type CallObserver struct {
	OnInsert func(record *domain.CallRecord)
	OnUpdate func(record *domain.CallRecord)
}

// CallRepository is the shared call record store. Updates against a record
// that already reached a terminal status fail with domain.ErrCallTerminal.
type CallRepository interface {
	Insert(ctx context.Context, record *domain.CallRecord) error
	Update(ctx context.Context, id domain.CallID, update domain.CallUpdate) (*domain.CallRecord, error)
	GetByID(ctx context.Context, id domain.CallID) (*domain.CallRecord, error)
	// Subscribe registers an observer for inserts and updates until ctx is
	// cancelled.
	Subscribe(ctx context.Context, observer CallObserver) error
}

type MembershipRepository interface {
	IsMember(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) (bool, error)
}

// RecordingStore uploads finished recording blobs and returns a public URL.
type RecordingStore interface {
	Upload(ctx context.Context, path string, blob []byte) (string, error)
}
