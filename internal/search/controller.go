package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/resilience"
	"github.com/sells-group/spec-search/pkg/perplexity"
)

// SlotCount is the number of independent queries issued per part number.
const SlotCount = 3

const defaultSlotTimeout = 20 * time.Second

// ErrNoContent is returned when a reply lacks choices[0].message.content.
var ErrNoContent = eris.New("search: reply has no content")

// Querier asks the upstream once for one part number.
type Querier interface {
	Query(ctx context.Context, supplier, partNumber string, specifications []string) (string, error)
}

// PerplexityQuerier sends the block-format prompt to Perplexity.
type PerplexityQuerier struct {
	client  perplexity.Client
	breaker *resilience.Breaker
	metrics *metrics.Collector
}

// NewPerplexityQuerier wraps client. breaker and m may be nil.
func NewPerplexityQuerier(client perplexity.Client, breaker *resilience.Breaker, m *metrics.Collector) *PerplexityQuerier {
	return &PerplexityQuerier{client: client, breaker: breaker, metrics: m}
}

// Query implements Querier.
func (q *PerplexityQuerier) Query(ctx context.Context, supplier, partNumber string, specifications []string) (string, error) {
	req := perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(supplier, partNumber, specifications)},
		},
	}

	start := time.Now()
	resp, err := resilience.Call(ctx, q.breaker, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return q.client.ChatCompletion(ctx, req)
	})
	q.metrics.ObserveUpstream("perplexity", err, time.Since(start))
	if err != nil {
		return "", eris.Wrap(err, "search: perplexity")
	}

	content, ok := resp.Content()
	if !ok {
		return "", ErrNoContent
	}
	return content, nil
}

// Controller fans one part number out to SlotCount concurrent queries.
type Controller struct {
	querier     Querier
	slotTimeout time.Duration
	metrics     *metrics.Collector
}

// NewController creates a Controller. A non-positive slotTimeout means 20s.
func NewController(q Querier, slotTimeout time.Duration, m *metrics.Collector) *Controller {
	if slotTimeout <= 0 {
		slotTimeout = defaultSlotTimeout
	}
	return &Controller{querier: q, slotTimeout: slotTimeout, metrics: m}
}

// Run issues SlotCount queries and waits for every one of them. Results are
// indexed by issue order. A slot that errors, times out or panics yields a
// failed SlotResult and never cancels its siblings.
func (c *Controller) Run(ctx context.Context, supplier, partNumber string, specifications []string) []model.SlotResult {
	results := make([]model.SlotResult, SlotCount)

	// A plain Group: one slot failing must not cancel the others.
	var g errgroup.Group
	for i := range SlotCount {
		g.Go(func() error {
			results[i] = c.slot(ctx, i, supplier, partNumber, specifications)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type reply struct {
	answer string
	err    error
}

// slot enforces the timeout itself so a querier that ignores ctx cannot stall Run.
func (c *Controller) slot(ctx context.Context, i int, supplier, partNumber string, specifications []string) model.SlotResult {
	sctx, cancel := context.WithTimeout(ctx, c.slotTimeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: eris.Errorf("search: slot panicked: %v", r)}
			}
		}()
		answer, err := c.querier.Query(sctx, supplier, partNumber, specifications)
		done <- reply{answer: answer, err: err}
	}()

	res := model.SlotResult{Slot: i}
	select {
	case r := <-done:
		res.Answer, res.Err = r.answer, r.err
	case <-sctx.Done():
		res.Err = eris.Wrap(sctx.Err(), fmt.Sprintf("search: slot timed out after %s", c.slotTimeout))
	}

	if res.OK() {
		c.metrics.Slot(metrics.SlotOK)
		return res
	}
	if res.Err == nil {
		res.Err = ErrNoContent
	}
	res.Answer = ""
	c.metrics.Slot(metrics.SlotFailed)
	zap.L().Warn("search: slot produced no answer",
		zap.String("part_number", partNumber),
		zap.Int("slot", i),
		zap.Error(res.Err),
	)
	return res
}
