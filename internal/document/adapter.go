// Package document answers specification requests from an uploaded
// datasheet instead of live web search.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/cost"
	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/ocr"
	"github.com/sells-group/spec-search/internal/reconcile"
	"github.com/sells-group/spec-search/internal/search"
)

// JSON failure policies for the ocr_llm strategy.
const (
	FailEmpty = "empty"
	FailRegex = "regex"
)

const (
	cacheNamespace  = "document"
	documentSource  = "Document"
	extractedReason = "Extracted from document text"
	partHeaderLabel = "Part Number"
)

// Adapter extracts specifications from documents with one of three
// strategies: vision, ocr_llm or ocr_regex.
type Adapter struct {
	strategy    string
	jsonFailure string
	vision      VisionModel
	text        TextModel
	ocr         ocr.Extractor
	parser      reconcile.Parser
	cache       search.ResponseCache
	cost        *cost.Calculator
	metrics     *metrics.Collector
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithVision sets the model used by the vision strategy.
func WithVision(m VisionModel) Option { return func(a *Adapter) { a.vision = m } }

// WithText sets the model used by the ocr_llm strategy.
func WithText(m TextModel) Option { return func(a *Adapter) { a.text = m } }

// WithOCR sets the text extractor used by the OCR strategies.
func WithOCR(e ocr.Extractor) Option { return func(a *Adapter) { a.ocr = e } }

// WithJSONFailure sets what ocr_llm does with an unusable reply.
func WithJSONFailure(policy string) Option {
	return func(a *Adapter) {
		if policy != "" {
			a.jsonFailure = policy
		}
	}
}

// WithParser replaces the block-format parser.
func WithParser(p reconcile.Parser) Option { return func(a *Adapter) { a.parser = p } }

// WithCache enables the response cache.
func WithCache(c search.ResponseCache) Option { return func(a *Adapter) { a.cache = c } }

// WithCost logs estimated spend per extraction.
func WithCost(c *cost.Calculator) Option { return func(a *Adapter) { a.cost = c } }

// WithMetrics records extraction outcomes.
func WithMetrics(m *metrics.Collector) Option { return func(a *Adapter) { a.metrics = m } }

// NewAdapter creates an Adapter for strategy.
func NewAdapter(strategy string, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		strategy:    strategy,
		jsonFailure: FailEmpty,
		parser:      reconcile.BlockParser{},
	}
	for _, o := range opts {
		o(a)
	}

	switch strategy {
	case config.StrategyVision:
		if a.vision == nil {
			return nil, eris.New("document: vision strategy requires a vision model")
		}
	case config.StrategyOCRLLM:
		if a.ocr == nil || a.text == nil {
			return nil, eris.New("document: ocr_llm strategy requires an OCR extractor and a text model")
		}
	case config.StrategyOCRRegex:
		if a.ocr == nil {
			return nil, eris.New("document: ocr_regex strategy requires an OCR extractor")
		}
	default:
		return nil, eris.Errorf("document: unknown strategy %q", strategy)
	}
	if a.jsonFailure != FailEmpty && a.jsonFailure != FailRegex {
		return nil, eris.Errorf("document: unknown json failure policy %q", a.jsonFailure)
	}
	return a, nil
}

// Strategy reports the configured strategy.
func (a *Adapter) Strategy() string { return a.strategy }

type cacheKey struct {
	Strategy string            `json:"strategy"`
	Request  model.SpecRequest `json:"request"`
	Digest   string            `json:"digest"`
}

// Extract runs the configured strategy. Like search.Service.Search it never
// returns a Go error; failures come back as the error form of the response.
func (a *Adapter) Extract(ctx context.Context, req model.DocumentRequest) *model.SearchResponse {
	if err := req.Validate(); err != nil {
		return model.NewError(err.Error())
	}
	if len(req.Document.Data) == 0 {
		return model.NewError("Document is empty")
	}

	sum := sha256.Sum256(req.Document.Data)
	key := cacheKey{Strategy: a.strategy, Request: req.SpecRequest, Digest: hex.EncodeToString(sum[:])}
	if a.cache != nil {
		if resp, ok := a.cache.Lookup(ctx, cacheNamespace, key); ok {
			return resp
		}
	}

	log := zap.L().With(
		zap.String("strategy", a.strategy),
		zap.String("filename", req.Document.Filename),
		zap.Int("bytes", len(req.Document.Data)),
	)

	var (
		results []model.PartResult
		err     error
	)
	switch a.strategy {
	case config.StrategyVision:
		results, err = a.extractVision(ctx, req)
	case config.StrategyOCRLLM:
		results, err = a.extractOCRLLM(ctx, req)
	case config.StrategyOCRRegex:
		results, err = a.extractOCRRegex(ctx, req)
	}
	a.metrics.Extraction(a.strategy, err == nil)
	if err != nil {
		log.Error("document: extraction failed", zap.Error(err))
		return model.NewError("Failed to process document: " + err.Error())
	}

	log.Info("document: extraction complete", zap.Int("parts", len(results)))
	resp := model.NewResults(results)
	if a.cache != nil {
		a.cache.Save(ctx, cacheNamespace, key, resp)
	}
	return resp
}

func (a *Adapter) extractVision(ctx context.Context, req model.DocumentRequest) ([]model.PartResult, error) {
	prompt := VisionPrompt(req.Supplier, req.PartNumbers, req.Specifications)
	reply, d, err := timed(func() (Reply, error) {
		return a.vision.Read(ctx, prompt, req.Document)
	})
	upstream := string(a.vision.Provider())
	a.metrics.ObserveUpstream(upstream, err, d)
	if err != nil {
		return nil, err
	}
	a.charge(upstream, a.cost.Tokens(a.vision.Provider(), reply.Model, reply.InputTokens, reply.OutputTokens))

	parts := make([]*model.PartResult, len(req.PartNumbers))
	for i, pn := range req.PartNumbers {
		section, ok := partSection(reply.Text, pn, len(req.PartNumbers))
		if !ok {
			zap.L().Warn("document: part number omitted, no section in reply",
				zap.String("part_number", pn),
			)
			continue
		}
		merged := reconcile.Reconcile(a.parser, []string{section}, req.Specifications)
		result := reconcile.BuildPartResult(pn, req.Specifications, merged)
		parts[i] = &result
	}
	return reconcile.Assemble(parts), nil
}

// partSection picks the part of a vision reply that belongs to partNumber.
// A single-part reply is taken whole. With several part numbers only a
// section headed "Part Number: <pn>" counts, and the header value must
// equal partNumber exactly (caseless). A part with no such section, or
// with more than one, is reported missing.
func partSection(reply, partNumber string, parts int) (string, bool) {
	if parts == 1 {
		return reply, strings.TrimSpace(reply) != ""
	}

	var (
		body    []string
		inPart  bool
		matches int
	)
	for _, line := range strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n") {
		if value, ok := partHeader(line); ok {
			inPart = strings.EqualFold(value, partNumber)
			if inPart {
				matches++
			}
			continue
		}
		if inPart {
			body = append(body, line)
		}
	}
	section := strings.TrimSpace(strings.Join(body, "\n"))
	if matches != 1 || section == "" {
		return "", false
	}
	return section, true
}

// partHeader reports the value of a "Part Number: <pn>" line, tolerating
// markdown emphasis and heading marks around it.
func partHeader(line string) (string, bool) {
	line = strings.Trim(strings.TrimSpace(line), "#* ")
	label, value, ok := strings.Cut(line, ":")
	if !ok || !strings.EqualFold(strings.Trim(label, "* "), partHeaderLabel) {
		return "", false
	}
	return strings.Trim(value, "* "), true
}

func (a *Adapter) pages(ctx context.Context, doc model.Document) (string, error) {
	pages, d, err := timed(func() ([]string, error) {
		return a.ocr.ExtractPages(ctx, doc)
	})
	a.metrics.ObserveUpstream("ocr", err, d)
	if err != nil {
		return "", err
	}
	if _, ok := a.ocr.(*ocr.MistralOCR); ok {
		a.charge("mistral", a.cost.Pages(len(pages)))
	}
	return ocr.Text(pages), nil
}

func (a *Adapter) extractOCRRegex(ctx context.Context, req model.DocumentRequest) ([]model.PartResult, error) {
	text, err := a.pages(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	return RegexExtract(text, req.PartNumbers, req.Specifications), nil
}

func (a *Adapter) extractOCRLLM(ctx context.Context, req model.DocumentRequest) ([]model.PartResult, error) {
	text, err := a.pages(ctx, req.Document)
	if err != nil {
		return nil, err
	}

	prompt := ExtractionPrompt(req.Supplier, req.PartNumbers, req.Specifications, text)
	reply, d, err := timed(func() (Reply, error) {
		return a.text.Complete(ctx, prompt)
	})
	upstream := string(a.text.Provider())
	a.metrics.ObserveUpstream(upstream, err, d)
	if err != nil {
		return nil, err
	}
	a.charge(upstream, a.cost.Tokens(a.text.Provider(), reply.Model, reply.InputTokens, reply.OutputTokens))

	extracted, err := parseExtraction(reply.Text)
	if err != nil {
		zap.L().Warn("document: unusable extraction reply",
			zap.String("policy", a.jsonFailure),
			zap.Error(err),
		)
		if a.jsonFailure == FailRegex {
			return RegexExtract(text, req.PartNumbers, req.Specifications), nil
		}
		return []model.PartResult{}, nil
	}
	return normalize(extracted, req.PartNumbers, req.Specifications), nil
}

// normalize maps extracted parts onto the requested part numbers and
// specifications. Parts the model did not return are omitted.
func normalize(extracted []extractedPart, partNumbers, specifications []string) []model.PartResult {
	parts := make([]*model.PartResult, len(partNumbers))
	for i, pn := range partNumbers {
		var found *extractedPart
		for j := range extracted {
			if strings.EqualFold(extracted[j].PartNumber, strings.TrimSpace(pn)) {
				found = &extracted[j]
				break
			}
		}
		if found == nil {
			zap.L().Warn("document: part number omitted, not in extraction",
				zap.String("part_number", pn),
			)
			continue
		}

		fields := make(map[string][]model.ParsedField, len(specifications))
		for _, spec := range specifications {
			for _, s := range found.Specifications {
				if !strings.EqualFold(s.Name, spec) || s.Value == "" || s.Value == model.NotFound {
					continue
				}
				fields[spec] = append(fields[spec], model.ParsedField{
					Value:     s.Value,
					Source:    documentSource,
					Reasoning: extractedReason,
				})
			}
		}
		result := reconcile.BuildPartResult(pn, specifications, fields)
		parts[i] = &result
	}
	return reconcile.Assemble(parts)
}

func (a *Adapter) charge(upstream string, usd float64) {
	a.cost.Log("document", usd, zap.String("upstream", upstream))
	a.metrics.Cost(upstream, usd)
}
