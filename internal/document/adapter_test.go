package document

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/cost"
	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
)

type fakeModel struct {
	reply Reply
	err   error
	calls atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (f *fakeModel) Provider() cost.Provider { return cost.OpenAI }

func (f *fakeModel) Read(_ context.Context, prompt string, _ model.Document) (Reply, error) {
	return f.Complete(context.Background(), prompt)
}

func (f *fakeModel) Complete(_ context.Context, prompt string) (Reply, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply, f.err
}

type fakeOCR struct {
	pages []string
	err   error
}

func (f fakeOCR) ExtractPages(context.Context, model.Document) ([]string, error) {
	return f.pages, f.err
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*model.SearchResponse
}

func (c *memCache) key(namespace string, key any) string {
	b, _ := json.Marshal(key)
	return namespace + ":" + string(b)
}

func (c *memCache) Lookup(_ context.Context, namespace string, key any) (*model.SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[c.key(namespace, key)]
	return r, ok
}

func (c *memCache) Save(_ context.Context, namespace string, key any, resp *model.SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]*model.SearchResponse{}
	}
	c.entries[c.key(namespace, key)] = resp
}

func docRequest(parts ...string) model.DocumentRequest {
	return model.DocumentRequest{
		SpecRequest: model.SpecRequest{
			Supplier:       "Acme",
			PartNumbers:    parts,
			Specifications: []string{"Weight", "Color"},
		},
		Document: model.Document{Filename: "sheet.pdf", MediaType: "application/pdf", Data: []byte("%PDF-1.7")},
	}
}

const singlePartReply = `[Weight]
Value: 2 kg
Source: Page 2
Confidence: High, stated in the dimensions table

[Color]
Value: -
Source: -
Confidence: Low, not stated`

func TestNewAdapter(t *testing.T) {
	m := &fakeModel{}
	tests := []struct {
		name     string
		strategy string
		opts     []Option
		wantErr  string
	}{
		{name: "vision", strategy: config.StrategyVision, opts: []Option{WithVision(m)}},
		{name: "vision without model", strategy: config.StrategyVision, wantErr: "requires a vision model"},
		{name: "ocr_llm", strategy: config.StrategyOCRLLM, opts: []Option{WithText(m), WithOCR(fakeOCR{})}},
		{name: "ocr_llm without text", strategy: config.StrategyOCRLLM, opts: []Option{WithOCR(fakeOCR{})}, wantErr: "requires an OCR extractor and a text model"},
		{name: "ocr_regex", strategy: config.StrategyOCRRegex, opts: []Option{WithOCR(fakeOCR{})}},
		{name: "ocr_regex without ocr", strategy: config.StrategyOCRRegex, wantErr: "requires an OCR extractor"},
		{name: "unknown", strategy: "telepathy", wantErr: `unknown strategy "telepathy"`},
		{name: "bad policy", strategy: config.StrategyOCRRegex, opts: []Option{WithOCR(fakeOCR{}), WithJSONFailure("retry")}, wantErr: "json failure policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAdapter(tt.strategy, tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, a.Strategy())
		})
	}
}

func TestExtract_VisionSinglePart(t *testing.T) {
	m := &fakeModel{reply: Reply{Text: singlePartReply}}
	a, err := NewAdapter(config.StrategyVision, WithVision(m))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1"))
	require.False(t, resp.Failed(), resp.Error)
	require.Len(t, resp.Results, 1)

	part := resp.Results[0]
	assert.Equal(t, "X1", part.PartNumber)
	require.Len(t, part.Specifications, 2)

	w := part.Specifications[0]
	assert.Equal(t, "Weight", w.Name)
	assert.Equal(t, "2 kg", w.Value)
	assert.Equal(t, 1.0, w.Confidence)
	assert.Equal(t, model.StatusGreen, w.ValidationStatus)
	assert.Equal(t, "Page 2", w.Source.URL)
	assert.Equal(t, "stated in the dimensions table", w.Reasoning)

	c := part.Specifications[1]
	assert.Equal(t, model.NotFound, c.Value)
	assert.Equal(t, model.StatusGrey, c.ValidationStatus)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "- X1")
	assert.Contains(t, m.prompts[0], "- Weight\n- Color")
	assert.Contains(t, m.prompts[0], `"Value: -"`)
}

func TestExtract_VisionMultiPartOmitsMissingSection(t *testing.T) {
	reply := "Part Number: A1\n\n[Weight]\nValue: 1 kg\nSource: Page 1\nConfidence: High, table\n\n\n" +
		"Part Number: B2\n\n[Weight]\nValue: 3 kg\nSource: Page 4\nConfidence: Medium, footnote"
	m := &fakeModel{reply: Reply{Text: reply}}
	a, err := NewAdapter(config.StrategyVision, WithVision(m))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("B2", "C3", "A1"))
	require.False(t, resp.Failed())
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "B2", resp.Results[0].PartNumber)
	assert.Equal(t, "3 kg", resp.Results[0].Specifications[0].Value)
	assert.Equal(t, "A1", resp.Results[1].PartNumber)
	assert.Equal(t, "1 kg", resp.Results[1].Specifications[0].Value)
}

func TestExtract_VisionFailure(t *testing.T) {
	m := &fakeModel{err: errors.New("openai: unexpected status 500: boom")}
	reg := metrics.New("test")
	a, err := NewAdapter(config.StrategyVision, WithVision(m), WithMetrics(reg))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1"))
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, "Failed to process document")
	assert.Contains(t, resp.Error, "boom")
	n, err := testutil.GatherAndCount(reg.Registry(), "test_document_extractions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExtract_InvalidRequest(t *testing.T) {
	m := &fakeModel{}
	a, err := NewAdapter(config.StrategyVision, WithVision(m))
	require.NoError(t, err)

	req := docRequest("X1")
	req.Supplier = ""
	resp := a.Extract(context.Background(), req)
	require.True(t, resp.Failed())
	assert.Equal(t, "Missing required fields: supplier", resp.Error)

	req = docRequest("X1")
	req.Document.Data = nil
	resp = a.Extract(context.Background(), req)
	require.True(t, resp.Failed())
	assert.Equal(t, "Document is empty", resp.Error)
	assert.Zero(t, m.calls.Load())
}

func TestExtract_Cache(t *testing.T) {
	m := &fakeModel{reply: Reply{Text: singlePartReply}}
	cache := &memCache{}
	a, err := NewAdapter(config.StrategyVision, WithVision(m), WithCache(cache))
	require.NoError(t, err)

	first := a.Extract(context.Background(), docRequest("X1"))
	second := a.Extract(context.Background(), docRequest("X1"))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), m.calls.Load())

	other := docRequest("X1")
	other.Document.Data = []byte("%PDF-other")
	a.Extract(context.Background(), other)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestExtract_FailuresNotCached(t *testing.T) {
	m := &fakeModel{err: errors.New("down")}
	cache := &memCache{}
	a, err := NewAdapter(config.StrategyVision, WithVision(m), WithCache(cache))
	require.NoError(t, err)

	a.Extract(context.Background(), docRequest("X1"))
	a.Extract(context.Background(), docRequest("X1"))
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestExtract_OCRRegex(t *testing.T) {
	ocr := fakeOCR{pages: []string{"Model X1\nWeight: 2 kg", "Color - Red\nHeight 10cm"}}
	a, err := NewAdapter(config.StrategyOCRRegex, WithOCR(ocr))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1"))
	require.False(t, resp.Failed())
	require.Len(t, resp.Results, 1)

	specs := resp.Results[0].Specifications
	require.Len(t, specs, 2)
	assert.Equal(t, "2 kg", specs[0].Value)
	assert.Equal(t, "Red", specs[1].Value)
	for _, s := range specs {
		assert.Equal(t, "OCR", s.Source.URL)
		assert.Zero(t, s.Confidence)
		assert.Equal(t, model.StatusNone, s.ValidationStatus)
	}
}

func TestExtract_OCRFailure(t *testing.T) {
	a, err := NewAdapter(config.StrategyOCRRegex, WithOCR(fakeOCR{err: errors.New("pdftotext missing")}))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1"))
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, "pdftotext missing")
}

func TestExtract_OCRLLM(t *testing.T) {
	reply := "Here is the data you asked for:\n" +
		`[{"part_number": "x1", "specifications": [{"name": "weight", "value": "2 kg"}, {"name": "Color", "value": "-"}]}]` +
		"\nLet me know if you need more."
	m := &fakeModel{reply: Reply{Text: reply}}
	ocr := fakeOCR{pages: []string{"page one", "page two"}}
	a, err := NewAdapter(config.StrategyOCRLLM, WithOCR(ocr), WithText(m))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1", "Y2"))
	require.False(t, resp.Failed())
	require.Len(t, resp.Results, 1)

	part := resp.Results[0]
	assert.Equal(t, "X1", part.PartNumber)
	w := part.Specifications[0]
	assert.Equal(t, "Weight", w.Name)
	assert.Equal(t, "2 kg", w.Value)
	assert.Equal(t, "Document", w.Source.URL)
	assert.Equal(t, model.StatusGreen, w.ValidationStatus)
	assert.Equal(t, model.StatusGrey, part.Specifications[1].ValidationStatus)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "page one\npage two")
}

func TestExtract_OCRLLMBadJSON(t *testing.T) {
	ocr := fakeOCR{pages: []string{"X1\nWeight: 5 lb"}}

	tests := []struct {
		name   string
		reply  string
		policy string
		want   []model.PartResult
	}{
		{name: "no array, empty policy", reply: "I could not find anything.", policy: FailEmpty, want: []model.PartResult{}},
		{name: "schema mismatch, empty policy", reply: `[{"part_number": "X1"}]`, policy: FailEmpty, want: []model.PartResult{}},
		{name: "truncated array, empty policy", reply: `[{"part_number": "X1", "specifications": [`, policy: FailEmpty, want: []model.PartResult{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAdapter(config.StrategyOCRLLM, WithOCR(ocr), WithText(&fakeModel{reply: Reply{Text: tt.reply}}), WithJSONFailure(tt.policy))
			require.NoError(t, err)
			resp := a.Extract(context.Background(), docRequest("X1"))
			require.False(t, resp.Failed())
			assert.Equal(t, tt.want, resp.Results)
		})
	}

	t.Run("regex policy", func(t *testing.T) {
		a, err := NewAdapter(config.StrategyOCRLLM, WithOCR(ocr), WithText(&fakeModel{reply: Reply{Text: "nope"}}), WithJSONFailure(FailRegex))
		require.NoError(t, err)
		resp := a.Extract(context.Background(), docRequest("X1"))
		require.False(t, resp.Failed())
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "5 lb", resp.Results[0].Specifications[0].Value)
		assert.Equal(t, "OCR", resp.Results[0].Specifications[0].Source.URL)
	})
}

func TestExtract_EmptyResultsMarshal(t *testing.T) {
	a, err := NewAdapter(config.StrategyOCRLLM, WithOCR(fakeOCR{pages: []string{"x"}}), WithText(&fakeModel{reply: Reply{Text: "none"}}))
	require.NoError(t, err)

	b, err := json.Marshal(a.Extract(context.Background(), docRequest("X1")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results": []}`, string(b))
}

func TestPartSection(t *testing.T) {
	delimited := "Part Number: A1\nWeight\nValue: 1\r\n\r\n\r\nPart Number: B2\nWeight\nValue: 2"
	tight := "Part Number: A1\n\nWeight\nValue: 1kg\n\nPart Number: B2\n\nWeight\nValue: 2kg"
	prefix := "Part Number: X10\n\nWeight\nValue: 9kg\n\n\nPart Number: X1\n\nWeight\nValue: 1kg"

	tests := []struct {
		name   string
		reply  string
		pn     string
		parts  int
		want   string
		wantOK bool
	}{
		{name: "delimited", reply: delimited, pn: "b2", parts: 2, want: "Weight\nValue: 2", wantOK: true},
		{name: "missing part", reply: delimited, pn: "C3", parts: 2},
		{name: "single blank-line separation", reply: tight, pn: "B2", parts: 2, want: "Weight\nValue: 2kg", wantOK: true},
		{name: "first of tight reply", reply: tight, pn: "A1", parts: 2, want: "Weight\nValue: 1kg", wantOK: true},
		{name: "prefix does not match longer part", reply: prefix, pn: "X1", parts: 2, want: "Weight\nValue: 1kg", wantOK: true},
		{name: "longer part", reply: prefix, pn: "X10", parts: 2, want: "Weight\nValue: 9kg", wantOK: true},
		{name: "no headers", reply: "A1 and B2\n\nWeight\nValue: 1kg", pn: "B2", parts: 2},
		{name: "mentioned but not a header", reply: "Part Number: A1\nNote: see B2\nWeight\nValue: 1kg", pn: "B2", parts: 2},
		{name: "duplicate headers", reply: "Part Number: A1\nWeight\nValue: 1\n\nPart Number: A1\nWeight\nValue: 2", pn: "A1", parts: 2},
		{name: "header without body", reply: "Part Number: A1\n\nPart Number: B2\nWeight\nValue: 2", pn: "A1", parts: 2},
		{name: "markdown header", reply: "## **Part Number:** A1\nWeight\nValue: 1\n\n**Part Number: B2**\nWeight\nValue: 2", pn: "B2", parts: 2, want: "Weight\nValue: 2", wantOK: true},
		{name: "single part whole reply", reply: "whole reply", pn: "anything", parts: 1, want: "whole reply", wantOK: true},
		{name: "single part blank", reply: "  ", pn: "X", parts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := partSection(tt.reply, tt.pn, tt.parts)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_VisionUnheadedMultiPartOmitsAll(t *testing.T) {
	reply := "[Weight]\nValue: 1 kg\nSource: Page 1\nConfidence: High, table for A1 and B2"
	m := &fakeModel{reply: Reply{Text: reply}}
	a, err := NewAdapter(config.StrategyVision, WithVision(m))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("A1", "B2"))
	require.False(t, resp.Failed(), resp.Error)
	assert.Empty(t, resp.Results)
}

func TestExtract_VisionPrefixCollidingParts(t *testing.T) {
	reply := "Part Number: X10\n\n[Weight]\nValue: 9 kg\nSource: Page 9\nConfidence: High, table\n\n" +
		"Part Number: X1\n\n[Weight]\nValue: 1 kg\nSource: Page 1\nConfidence: High, table"
	m := &fakeModel{reply: Reply{Text: reply}}
	a, err := NewAdapter(config.StrategyVision, WithVision(m))
	require.NoError(t, err)

	resp := a.Extract(context.Background(), docRequest("X1", "X10", "X100"))
	require.False(t, resp.Failed(), resp.Error)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "X1", resp.Results[0].PartNumber)
	assert.Equal(t, "1 kg", resp.Results[0].Specifications[0].Value)
	assert.Equal(t, "Page 1", resp.Results[0].Specifications[0].Source.URL)
	assert.Equal(t, "X10", resp.Results[1].PartNumber)
	assert.Equal(t, "9 kg", resp.Results[1].Specifications[0].Value)
}
