package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/redis"
)

// CachedSource caches another source's instance list in Redis.
// Cache failures fall through to the underlying source.
type CachedSource struct {
	next   contracts.InstanceSource
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSource wraps next with a Redis cache of the given TTL
func NewCachedSource(next contracts.InstanceSource, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl, logger: log}
}

// ListActiveInstances implements contracts.InstanceSource
func (s *CachedSource) ListActiveInstances(ctx context.Context, sectorFilter string) ([]contracts.StrategyInstance, error) {
	key := redis.InstancesKey(strings.ToUpper(sectorFilter))

	var cached []contracts.StrategyInstance
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.WithError(err).Warn("Instance cache read failed")
	}
	if found {
		for i := range cached {
			NormalizeNumbers(cached[i].Parameters)
			NormalizeNumbers(cached[i].Evolution)
		}
		return cached, nil
	}

	instances, err := s.next.ListActiveInstances(ctx, sectorFilter)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, instances, s.ttl); err != nil {
		s.logger.WithError(err).Warn("Instance cache write failed")
	}

	return instances, nil
}

// Invalidate drops the cached list for a sector filter
func (s *CachedSource) Invalidate(ctx context.Context, sectorFilter string) error {
	return s.cache.Delete(ctx, redis.InstancesKey(strings.ToUpper(sectorFilter)))
}

func wrapRegistry(err error) error {
	if errors.Is(err, contracts.ErrRegistry) {
		return err
	}
	return fmt.Errorf("%w: %v", contracts.ErrRegistry, err)
}
