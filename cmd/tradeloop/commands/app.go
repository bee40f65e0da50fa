package commands

import (
	"context"
	"fmt"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/decision"
	"github.com/wonny/tradeloop/internal/evaluation"
	"github.com/wonny/tradeloop/internal/learning"
	"github.com/wonny/tradeloop/internal/marketdata"
	"github.com/wonny/tradeloop/internal/store"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
	"github.com/wonny/tradeloop/pkg/redis"
)

// app is the wired object graph every command starts from
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *store.Store
	redis     *redis.Client
	http      *httputil.Client
	market    *marketdata.Yahoo
	learner   *learning.Engine
	engine    *decision.Engine
	evaluator *evaluation.Evaluator
	universes *universe.Catalogue
	agent     *agent.Agent
}

// newApp loads config and builds the pipeline. Nothing is started.
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. State store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.WithField("backend", st.Backend()).Info("State store opened")

	// 4. Redis (cache + shared rate limit; no-op when disabled)
	rc, err := redis.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	// 5. HTTP client + market data
	client := httputil.New(cfg, log.WithComponent("http"))
	if rc.Enabled() {
		client = client.WithRateLimiter(redis.NewRateLimiter(rc, "tradeloop"), redis.MarketDataRateLimit(cfg.MarketData.RequestsPerSec))
	}
	md := marketdata.NewYahoo(cfg, client, redis.NewCache(rc, "tradeloop"), log)

	// 6. Universe catalogue
	cat, err := universe.LoadOrDefault(cfg.Agent.UniversesFile)
	if err != nil {
		rc.Close()
		st.Close()
		return nil, fmt.Errorf("load universes: %w", err)
	}

	// 7. Pipeline
	learner := learning.NewEngine(st, log)
	engine := decision.NewEngine(md, learner, cfg.MarketData.BenchmarkSymbol, log)
	evaluator := evaluation.NewEvaluator(md, log)

	ag := agent.New(agent.Deps{
		Analyzer:  engine,
		Evaluator: evaluator,
		Learner:   learner,
		Store:     st,
		Universes: cat,
		HTTP:      client,
	}, cfg.Agent, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		redis:     rc,
		http:      client,
		market:    md,
		learner:   learner,
		engine:    engine,
		evaluator: evaluator,
		universes: cat,
		agent:     ag,
	}, nil
}

// close releases the store and redis
func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
}
