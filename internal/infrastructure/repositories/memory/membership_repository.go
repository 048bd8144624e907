package memory

import (
	"context"
	"sync"

	"ringlink/internal/core/domain"
)

// MemoryMembershipRepository keeps conversation membership in memory.
type MemoryMembershipRepository struct {
	members map[domain.ConversationID]map[domain.UserID]struct{}
	mu      sync.RWMutex
}

func NewMemoryMembershipRepository() *MemoryMembershipRepository {
	return &MemoryMembershipRepository{
		members: make(map[domain.ConversationID]map[domain.UserID]struct{}),
	}
}

// AddMember registers a user in a conversation.
func (r *MemoryMembershipRepository) AddMember(conversationID domain.ConversationID, userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.members[conversationID]
	if !ok {
		users = make(map[domain.UserID]struct{})
		r.members[conversationID] = users
	}
	users[userID] = struct{}{}
}

func (r *MemoryMembershipRepository) IsMember(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.members[conversationID]
	if !ok {
		return false, nil
	}
	_, ok = users[userID]
	return ok, nil
}
