package evaluator

import (
	"fmt"
	"math"

	"github.com/wonny/aegis/consult/internal/contracts"
	"github.com/wonny/aegis/consult/pkg/config"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/redis"
)

// New builds the configured evaluator.
// With EVALUATOR_RATE_LIMIT set, calls are throttled through redis when it is
// enabled so every process shares the limit, otherwise in process.
func New(cfg *config.Config, rdb *redis.Client, log *logger.Logger) (contracts.Evaluator, error) {
	var (
		ev  contracts.Evaluator
		err error
	)

	switch cfg.Evaluator.Kind {
	case "openai":
		ev, err = NewOpenAI(cfg.Evaluator, log)
	case "http":
		ev = NewHTTP(cfg.Evaluator.HTTPURL, 0, log)
	default:
		err = fmt.Errorf("unknown evaluator %q", cfg.Evaluator.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Evaluator.RateLimit <= 0 {
		return ev, nil
	}

	if rdb != nil && rdb.Enabled() {
		perSecond := int(math.Ceil(cfg.Evaluator.RateLimit))
		limiter := redis.NewRateLimiter(rdb, "consult")
		log.WithField("per_second", perSecond).Info("Evaluator rate limit shared through redis")
		return NewRateLimited(ev, NewRedisLimiter(limiter, redis.EvaluatorRateLimit(cfg.Evaluator.Kind, perSecond))), nil
	}

	log.WithField("per_second", cfg.Evaluator.RateLimit).Info("Evaluator rate limit in process")
	return NewRateLimited(ev, NewTokenBucket(cfg.Evaluator.RateLimit, cfg.Evaluator.RateBurst)), nil
}
