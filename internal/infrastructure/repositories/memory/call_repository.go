package memory

import (
	"context"
	"fmt"
	"sync"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
)

// MemoryCallRepository keeps call records in memory and delivers insert and
// update events to subscribers synchronously. It backs single-node
// deployments and tests.
type MemoryCallRepository struct {
	calls     map[domain.CallID]*domain.CallRecord
	observers []ports.CallObserver
	mu        sync.RWMutex
}

func NewMemoryCallRepository() *MemoryCallRepository {
	return &MemoryCallRepository{
		calls: make(map[domain.CallID]*domain.CallRecord),
	}
}

func (r *MemoryCallRepository) Insert(ctx context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	if _, exists := r.calls[record.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("call already exists: %s", record.ID)
	}
	stored := *record
	r.calls[record.ID] = &stored
	observers := append([]ports.CallObserver(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		if obs.OnInsert != nil {
			copy := stored
			obs.OnInsert(&copy)
		}
	}
	return nil
}

func (r *MemoryCallRepository) Update(ctx context.Context, id domain.CallID, update domain.CallUpdate) (*domain.CallRecord, error) {
	r.mu.Lock()
	record, exists := r.calls[id]
	if !exists {
		r.mu.Unlock()
		return nil, domain.ErrCallNotFound
	}
	if record.Status.Terminal() && !update.RecordingOnly() {
		r.mu.Unlock()
		return nil, domain.ErrCallTerminal
	}

	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.StartedAt != nil {
		record.StartedAt = update.StartedAt
	}
	if update.EndedAt != nil {
		record.EndedAt = update.EndedAt
	}
	if update.RecordingURL != nil {
		record.RecordingURL = *update.RecordingURL
	}

	updated := *record
	observers := append([]ports.CallObserver(nil), r.observers...)
	r.mu.Unlock()

	for _, obs := range observers {
		if obs.OnUpdate != nil {
			copy := updated
			obs.OnUpdate(&copy)
		}
	}
	return &updated, nil
}

func (r *MemoryCallRepository) GetByID(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.calls[id]
	if !exists {
		return nil, domain.ErrCallNotFound
	}
	copy := *record
	return &copy, nil
}

func (r *MemoryCallRepository) Subscribe(ctx context.Context, observer ports.CallObserver) error {
	r.mu.Lock()
	r.observers = append(r.observers, observer)
	r.mu.Unlock()
	return nil
}

// Count reports the number of stored call records, used by tests.
func (r *MemoryCallRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
