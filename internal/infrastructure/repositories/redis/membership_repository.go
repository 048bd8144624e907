package redis

import (
	"context"
	"fmt"

	"ringlink/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// RedisMembershipRepository reads conversation membership from Redis sets
// maintained by the chat service.
type RedisMembershipRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisMembershipRepository(client *redis.Client) *RedisMembershipRepository {
	return &RedisMembershipRepository{
		client: client,
		prefix: "ringlink:conv:members:",
	}
}

func (r *RedisMembershipRepository) membersKey(id domain.ConversationID) string {
	return r.prefix + string(id)
}

func (r *RedisMembershipRepository) IsMember(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.membersKey(conversationID), string(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// AddMember registers a user in a conversation, used by fixtures and tooling.
func (r *RedisMembershipRepository) AddMember(ctx context.Context, conversationID domain.ConversationID, userID domain.UserID) error {
	if err := r.client.SAdd(ctx, r.membersKey(conversationID), string(userID)).Err(); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}
