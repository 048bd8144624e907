package repositories

import (
	"context"
	"time"

	"ringlink/internal/core/ports"
	"ringlink/internal/infrastructure/repositories/memory"
	redisrepo "ringlink/internal/infrastructure/repositories/redis"
	"ringlink/pkg/cache"
	"ringlink/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger

	memoryCalls      *memory.MemoryCallRepository
	memoryMembership *memory.MemoryMembershipRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		factory.memoryCalls = memory.NewMemoryCallRepository()
		factory.memoryMembership = memory.NewMemoryMembershipRepository()
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateCallRepository creates a call record repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateCallRepository() ports.CallRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisCallRepository(f.redisClient, f.logger)
	}
	return f.memoryCalls
}

// CreateMembershipRepository creates a membership repository wrapped with a
// short-lived cache; membership changes rarely during a ringing window.
func (f *RepositoryFactory) CreateMembershipRepository() ports.MembershipRepository {
	var repo ports.MembershipRepository
	if f.useRedis && f.redisClient != nil {
		repo = redisrepo.NewRedisMembershipRepository(f.redisClient)
	} else {
		repo = f.memoryMembership
	}
	return NewCachedMembershipRepository(repo, cache.New(30*time.Second))
}

// RedisClient exposes the shared client for the signaling bus; nil when
// running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// MemoryMembership exposes the memory membership store for fixtures; nil
// when running on Redis.
func (f *RepositoryFactory) MemoryMembership() *memory.MemoryMembershipRepository {
	return f.memoryMembership
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
