package search

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spec-search/internal/cost"
	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/reconcile"
	"github.com/sells-group/spec-search/internal/resilience"
)

// ErrNoResults is the response message when every part number was skipped.
const ErrNoResults = "No valid results obtained for any part numbers"

// cacheNamespace separates web search entries from document entries.
const cacheNamespace = "search"

// ResponseCache stores successful responses keyed by request.
type ResponseCache interface {
	Lookup(ctx context.Context, namespace string, key any) (*model.SearchResponse, bool)
	Save(ctx context.Context, namespace string, key any, resp *model.SearchResponse)
}

// Service answers a SpecRequest by searching every part number and
// reconciling the redundant answers.
type Service struct {
	controller      *Controller
	parser          reconcile.Parser
	cache           ResponseCache
	partConcurrency int
	cost            *cost.Calculator
	metrics         *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithParser replaces the block-format parser.
func WithParser(p reconcile.Parser) Option {
	return func(s *Service) { s.parser = p }
}

// WithCache enables the response cache.
func WithCache(c ResponseCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPartConcurrency searches up to n part numbers at once.
func WithPartConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.partConcurrency = n
		}
	}
}

// WithCost logs estimated spend per part.
func WithCost(c *cost.Calculator) Option {
	return func(s *Service) { s.cost = c }
}

// WithMetrics records skipped parts and spend.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service around controller.
func NewService(controller *Controller, opts ...Option) *Service {
	s := &Service{
		controller:      controller,
		parser:          reconcile.BlockParser{},
		partConcurrency: 1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search runs the whole request. It never returns a Go error: failures are
// reported through the error form of SearchResponse.
func (s *Service) Search(ctx context.Context, req model.SpecRequest) *model.SearchResponse {
	if err := req.Validate(); err != nil {
		return model.NewError(err.Error())
	}

	if s.cache != nil {
		if resp, ok := s.cache.Lookup(ctx, cacheNamespace, req); ok {
			return resp
		}
	}

	parts := make([]*model.PartResult, len(req.PartNumbers))

	var g errgroup.Group
	g.SetLimit(s.partConcurrency)
	for i, pn := range req.PartNumbers {
		g.Go(func() error {
			parts[i] = s.searchPart(ctx, req.Supplier, pn, req.Specifications)
			return nil
		})
	}
	_ = g.Wait()

	results := reconcile.Assemble(parts)
	if len(results) == 0 {
		zap.L().Warn("search: no part number produced results",
			zap.String("supplier", req.Supplier),
			zap.Int("part_numbers", len(req.PartNumbers)),
		)
		return model.NewError(ErrNoResults)
	}

	resp := model.NewResults(results)
	if s.cache != nil {
		s.cache.Save(ctx, cacheNamespace, req, resp)
	}
	return resp
}

// searchPart returns nil when no slot answered, which drops the part.
func (s *Service) searchPart(ctx context.Context, supplier, partNumber string, specifications []string) *model.PartResult {
	slots := s.controller.Run(ctx, supplier, partNumber, specifications)

	sent := sentQueries(slots)
	usd := s.cost.Queries(sent)
	s.cost.Log("search", usd,
		zap.String("part_number", partNumber),
		zap.Int("queries_sent", sent),
	)
	s.metrics.Cost("perplexity", usd)

	answers := model.Answers(slots)
	if len(answers) == 0 {
		zap.L().Warn("search: skipping part number, no slot answered",
			zap.String("supplier", supplier),
			zap.String("part_number", partNumber),
			zap.Int("slots", len(slots)),
		)
		s.metrics.PartSkipped()
		return nil
	}

	zap.L().Debug("search: part answered",
		zap.String("part_number", partNumber),
		zap.Int("answers", len(answers)),
	)

	merged := reconcile.Reconcile(s.parser, answers, specifications)
	result := reconcile.BuildPartResult(partNumber, specifications, merged)
	return &result
}

// sentQueries counts the slots whose query reached the upstream. Slots the
// open breaker rejected are free.
func sentQueries(slots []model.SlotResult) int {
	n := 0
	for _, s := range slots {
		if !errors.Is(s.Err, resilience.ErrOpen) {
			n++
		}
	}
	return n
}
