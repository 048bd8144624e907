package repositories

import (
	"context"
	"fmt"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/pkg/cache"
)

// CachedMembershipRepository decorates a membership repository with a TTL
// cache. The callee side checks membership for every observed call insert,
// so repeated lookups within the ringing window hit the cache.
type CachedMembershipRepository struct {
	inner ports.MembershipRepository
	cache *cache.Cache
}

func NewCachedMembershipRepository(inner ports.MembershipRepository, c *cache.Cache) *CachedMembershipRepository {
	return &CachedMembershipRepository{
		inner: inner,
		cache: c,
	}
}

func (r *CachedMembershipRepository) IsMember(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) (bool, error) {
	key := fmt.Sprintf("member:%s:%s", conversationID, userID)
	if v, ok := r.cache.Get(key); ok {
		return v.(bool), nil
	}

	ok, err := r.inner.IsMember(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	r.cache.Set(key, ok)
	return ok, nil
}
