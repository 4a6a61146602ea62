package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/cost"
	"github.com/sells-group/spec-search/internal/document"
	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/ocr"
	"github.com/sells-group/spec-search/internal/resilience"
	"github.com/sells-group/spec-search/internal/search"
	"github.com/sells-group/spec-search/internal/store"
	anthropicpkg "github.com/sells-group/spec-search/pkg/anthropic"
	"github.com/sells-group/spec-search/pkg/openai"
	"github.com/sells-group/spec-search/pkg/perplexity"
)

// appEnv holds the services shared by the serve, search and extract commands.
type appEnv struct {
	Metrics  *metrics.Collector
	Store    store.Store // nil when the cache is disabled
	Search   *search.Service
	Document *document.Adapter // nil when extraction is not configured
	// DocumentErr explains a nil Document.
	DocumentErr error
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp builds every service from cfg. A document extraction setup
// problem is recorded in DocumentErr rather than failing, so web search
// keeps working. Callers should defer env.Close().
func initApp(ctx context.Context, cfg *config.Config) (*appEnv, error) {
	m := metrics.New("spec_search")
	calc := cost.NewCalculator(cfg.Pricing)

	st, err := store.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}

	var cache search.ResponseCache
	if st != nil {
		cache = store.NewResponseCache(st, cfg.Cache.TTL, m)
		zap.L().Info("response cache enabled",
			zap.String("driver", cfg.Cache.Driver),
			zap.Duration("ttl", cfg.Cache.TTL),
		)
	}

	if cfg.Perplexity.Key == "" {
		zap.L().Warn("PERPLEXITY_API_KEY not set, web search requests will fail")
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "perplexity",
		FailureThreshold: cfg.Search.BreakerFailures,
		Cooldown:         cfg.Search.BreakerCooldown,
		ShouldTrip:       func(err error) bool { return !eris.Is(err, context.Canceled) },
		OnStateChange: func(name string, from, to resilience.State) {
			zap.L().Warn("circuit breaker state change",
				zap.String("upstream", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			m.BreakerState(name, int(to))
		},
	})
	pplx := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
		perplexity.WithTimeout(cfg.Perplexity.Timeout),
	)
	controller := search.NewController(search.NewPerplexityQuerier(pplx, breaker, m), cfg.Search.SlotTimeout, m)

	searchOpts := []search.Option{
		search.WithPartConcurrency(cfg.Search.PartConcurrency),
		search.WithCost(calc),
		search.WithMetrics(m),
	}
	if cache != nil {
		searchOpts = append(searchOpts, search.WithCache(cache))
	}

	env := &appEnv{
		Metrics: m,
		Store:   st,
		Search:  search.NewService(controller, searchOpts...),
	}

	docOpts := []document.Option{
		document.WithJSONFailure(cfg.Document.JSONFailure),
		document.WithCost(calc),
		document.WithMetrics(m),
	}
	if cache != nil {
		docOpts = append(docOpts, document.WithCache(cache))
	}
	env.Document, env.DocumentErr = newDocumentAdapter(cfg, docOpts...)
	if env.DocumentErr != nil {
		zap.L().Warn("document extraction disabled", zap.Error(env.DocumentErr))
	}

	return env, nil
}

// newDocumentAdapter wires the models and OCR extractor the configured
// strategy needs.
func newDocumentAdapter(cfg *config.Config, opts ...document.Option) (*document.Adapter, error) {
	anthropicModel := func() (*document.Anthropic, error) {
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("ANTHROPIC_API_KEY is required")
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		return document.NewAnthropic(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	}

	switch cfg.Document.Strategy {
	case config.StrategyVision:
		switch cfg.Document.VisionProvider {
		case "anthropic":
			a, err := anthropicModel()
			if err != nil {
				return nil, eris.Wrap(err, "vision")
			}
			opts = append(opts, document.WithVision(a))
		default:
			if cfg.OpenAI.Key == "" {
				return nil, eris.New("vision: OPENAI_API_KEY is required")
			}
			client := openai.NewClient(cfg.OpenAI.Key,
				openai.WithBaseURL(cfg.OpenAI.BaseURL),
				openai.WithModel(cfg.OpenAI.Model),
				openai.WithTimeout(cfg.OpenAI.Timeout),
			)
			opts = append(opts, document.WithVision(document.NewOpenAIVision(client, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)))
		}
	case config.StrategyOCRLLM, config.StrategyOCRRegex:
		extractor, err := ocr.NewExtractor(cfg.OCR, cfg.Mistral)
		if err != nil {
			return nil, err
		}
		opts = append(opts, document.WithOCR(extractor))
		if cfg.Document.Strategy == config.StrategyOCRLLM {
			a, err := anthropicModel()
			if err != nil {
				return nil, eris.Wrap(err, "ocr_llm")
			}
			opts = append(opts, document.WithText(a))
		}
	}

	return document.NewAdapter(cfg.Document.Strategy, opts...)
}
