package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/resilience"
)

const (
	defaultMistralBaseURL = "https://api.mistral.ai"
	defaultMistralModel   = "mistral-ocr-latest"
	signedURLExpiryHours  = 24
)

// MistralOCR extracts text using the Mistral OCR API: the document is
// uploaded, exchanged for a signed URL, and the URL is processed.
type MistralOCR struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retry   resilience.RetryConfig
}

// Option configures MistralOCR.
type Option func(*MistralOCR)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(m *MistralOCR) {
		if u != "" {
			m.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel overrides the OCR model.
func WithModel(model string) Option {
	return func(m *MistralOCR) {
		if model != "" {
			m.model = model
		}
	}
}

// WithRetry overrides the per-step retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(m *MistralOCR) { m.retry = cfg }
}

// NewMistralOCR creates a MistralOCR extractor.
func NewMistralOCR(apiKey string, opts ...Option) *MistralOCR {
	m := &MistralOCR{
		apiKey:  apiKey,
		model:   defaultMistralModel,
		baseURL: defaultMistralBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		retry:   resilience.DefaultRetry("mistral_ocr"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type mistralFile struct {
	ID string `json:"id"`
}

type mistralSignedURL struct {
	URL string `json:"url"`
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractPages uploads doc and returns each page's markdown in page order.
func (m *MistralOCR) ExtractPages(ctx context.Context, doc model.Document) ([]string, error) {
	file, err := resilience.Retry(ctx, m.retry, func(ctx context.Context) (*mistralFile, error) {
		return m.upload(ctx, doc)
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral upload")
	}

	signed, err := resilience.Retry(ctx, m.retry, func(ctx context.Context) (*mistralSignedURL, error) {
		var out mistralSignedURL
		endpoint := fmt.Sprintf("%s/v1/files/%s/url?expiry=%d", m.baseURL, url.PathEscape(file.ID), signedURLExpiryHours)
		return &out, m.do(ctx, http.MethodGet, endpoint, nil, "", &out)
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral signed url")
	}

	body, err := json.Marshal(mistralOCRRequest{
		Model:    m.model,
		Document: mistralOCRDocument{Type: "document_url", DocumentURL: signed.URL},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	result, err := resilience.Retry(ctx, m.retry, func(ctx context.Context) (*mistralOCRResponse, error) {
		var out mistralOCRResponse
		return &out, m.do(ctx, http.MethodPost, m.baseURL+"/v1/ocr", body, "application/json", &out)
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral process")
	}

	sort.SliceStable(result.Pages, func(i, j int) bool {
		return result.Pages[i].Index < result.Pages[j].Index
	})
	pages := make([]string, len(result.Pages))
	for i, p := range result.Pages {
		pages[i] = p.Markdown
	}

	zap.L().Debug("ocr: mistral pages extracted",
		zap.String("filename", doc.Filename),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

func (m *MistralOCR) upload(ctx context.Context, doc model.Document) (*mistralFile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "ocr"); err != nil {
		return nil, eris.Wrap(err, "ocr: write purpose field")
	}
	name := doc.Filename
	if name == "" {
		name = "document.pdf"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create form file")
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, eris.Wrap(err, "ocr: write form file")
	}
	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "ocr: close multipart")
	}

	var out mistralFile
	if err := m.do(ctx, http.MethodPost, m.baseURL+"/v1/files", buf.Bytes(), w.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, eris.New("ocr: mistral upload returned no file id")
	}
	return &out, nil
}

// do sends one request and decodes a 200 JSON body into out. Retryable
// statuses come back as resilience.TransientError.
func (m *MistralOCR) do(ctx context.Context, method, endpoint string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return eris.Wrap(err, "ocr: create mistral request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "ocr: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return nil
}
