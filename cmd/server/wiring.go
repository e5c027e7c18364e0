package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai"
	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/heuristic"
	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/openai"
	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/interview-prep/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/memory"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/mongo"
	"github.com/fairyhunter13/interview-prep/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/interview-prep/internal/app"
	"github.com/fairyhunter13/interview-prep/internal/config"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/service/lock"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// retryConnect runs op with exponential backoff until it succeeds or the
// store connect timeout elapses.
func retryConnect(ctx context.Context, cfg config.Config, what string, op func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = cfg.StoreConnectTimeout
	return backoff.RetryNotify(op, backoff.WithContext(expo, ctx), func(err error, next time.Duration) {
		slog.Warn("store connect failed, retrying", slog.String("store", what), slog.Duration("next", next), slog.Any("error", err))
	})
}

func openStore(ctx context.Context, cfg config.Config) (domain.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		var cli *mongo.Client
		err := retryConnect(ctx, cfg, "mongo", func() error {
			c, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return err
			}
			if err := c.Store().Ping(ctx); err != nil {
				_ = c.Store().Close(ctx)
				return err
			}
			cli = c
			return nil
		})
		if err != nil {
			return domain.Store{}, fmt.Errorf("op=server.open_store mongo: %w", err)
		}
		if err := cli.EnsureIndexes(ctx); err != nil {
			return domain.Store{}, fmt.Errorf("op=server.open_store mongo indexes: %w", err)
		}
		return cli.Store(), nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DBURL, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return domain.Store{}, fmt.Errorf("op=server.open_store postgres: %w", err)
		}
		if err := retryConnect(ctx, cfg, "postgres", func() error { return pool.Ping(ctx) }); err != nil {
			pool.Close()
			return domain.Store{}, fmt.Errorf("op=server.open_store postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return domain.Store{}, err
		}
		return postgres.NewStore(pool), nil

	default:
		slog.Warn("using in-memory store, data is lost on restart")
		return memory.New().Domain(), nil
	}
}

// locks holds the lock stack: base fails fast, waiting queues callers
// when LOCK_WAIT is set.
type locks struct {
	base    domain.Locker
	waiting domain.Locker
	lease   *lock.RedisLease
	rdb     *redis.Client
}

func (l locks) pinger() app.Pinger {
	if l.lease == nil {
		return nil
	}
	return l.lease
}

func (l locks) close() {
	if l.rdb != nil {
		_ = l.rdb.Close()
	}
}

func buildLocks(ctx context.Context, cfg config.Config) (locks, error) {
	var out locks
	if cfg.RedisURL == "" {
		out.base = lock.NewKeyed()
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return locks{}, fmt.Errorf("op=server.redis_url: %w", err)
		}
		out.rdb = redis.NewClient(opts)
		out.lease = lock.NewRedisLease(out.rdb, cfg.LockTTL, "interview-prep:lock:")
		if err := out.lease.Ping(ctx); err != nil {
			slog.Warn("redis not reachable yet", slog.Any("error", err))
		}
		out.base = out.lease
	}
	maxElapsed, initial, maxInterval := cfg.GetLockBackoffConfig()
	out.waiting = lock.WaitAcquire(out.base, maxElapsed, initial, maxInterval)
	return out, nil
}

func newPublisher(ctx context.Context, cfg config.Config) (*redpanda.Publisher, error) {
	pub, err := redpanda.NewPublisher(ctx, cfg.KafkaBrokers, cfg.EventsTopic)
	if err != nil {
		return nil, fmt.Errorf("op=server.events: %w", err)
	}
	return pub, nil
}

// buildFallback creates the upstream providers named in AI_PROVIDER_ORDER,
// skipping those without credentials, behind one breaker each.
func buildFallback(ctx context.Context, cfg config.Config, counter *tokencount.Counter, rec usecase.Recorder) (usecase.FallbackController, *ai.CircuitBreakerManager, error) {
	terminal, err := heuristic.New(cfg.QuestionBankFile)
	if err != nil {
		return usecase.FallbackController{}, nil, err
	}
	var providers []domain.QuestionProvider
	for _, name := range cfg.AIProviderOrder {
		switch name = strings.ToLower(strings.TrimSpace(name)); name {
		case "groq":
			if cfg.GroqAPIKey == "" {
				slog.Info("provider disabled, no api key", slog.String("provider", name))
				continue
			}
			providers = append(providers, openai.NewGroq(cfg, counter))
		case "openrouter":
			if cfg.OpenRouterAPIKey == "" {
				slog.Info("provider disabled, no api key", slog.String("provider", name))
				continue
			}
			providers = append(providers, openai.NewOpenRouter(cfg, counter))
		case "gemini":
			g, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				slog.Info("provider disabled", slog.String("provider", name), slog.Any("error", err))
				continue
			}
			providers = append(providers, g)
		case "":
		default:
			slog.Warn("unknown provider in AI_PROVIDER_ORDER", slog.String("provider", name))
		}
	}
	mgr := ai.NewCircuitBreakerManager()
	breakers := func(p string) usecase.Breaker { return mgr.Get(p) }
	fc := usecase.NewFallbackController(providers, terminal, breakers, cfg.ProviderTimeout, rec)
	fc.Reserve = cfg.FallbackReserve
	return fc, mgr, nil
}
