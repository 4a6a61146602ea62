package ocr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/resilience"
)

var fastRetry = resilience.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     time.Millisecond,
	Operation:      "test",
}

func TestNewExtractor(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}, config.MistralConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	ext, err = NewExtractor(config.OCRConfig{}, config.MistralConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	_, err = NewExtractor(config.OCRConfig{Provider: "mistral"}, config.MistralConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires mistral.key")

	ext, err = NewExtractor(config.OCRConfig{Provider: "mistral"}, config.MistralConfig{Key: "k", Model: "m"})
	require.NoError(t, err)
	require.IsType(t, &MistralOCR{}, ext)
	assert.Equal(t, "m", ext.(*MistralOCR).model)
	assert.Equal(t, defaultMistralBaseURL, ext.(*MistralOCR).baseURL)

	_, err = NewExtractor(config.OCRConfig{Provider: "unknown"}, config.MistralConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestText(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Text([]string{"a", "b", "c"}))
	assert.Equal(t, "", Text(nil))
}

func TestSplitPages(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, splitPages("one\ftwo\f"))
	assert.Equal(t, []string{"only"}, splitPages("only"))
	assert.Empty(t, splitPages(""))
}

func TestPdfToText_BinPath(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/custom/pdftotext", NewPdfToText("/custom/pdftotext").binPath)
}

func TestPdfToText_ExtractPages(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "pdftotext")
	script := "#!/bin/sh\ncat >/dev/null\nprintf 'Weight: 2kg\\fColor: Red\\f'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	pages, err := NewPdfToText(bin).ExtractPages(context.Background(), model.Document{Filename: "a.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Weight: 2kg", "Color: Red"}, pages)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext").ExtractPages(context.Background(), model.Document{Filename: "a.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed for a.pdf")
}

// fakeMistral serves the upload, signed URL and OCR endpoints.
func fakeMistral(t *testing.T, ocrFailures int32) (*httptest.Server, *int32) {
	t.Helper()
	var ocrCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ocr", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "sheet.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.7", string(data))
		_, _ = w.Write([]byte(`{"id":"file-123"}`))
	})
	mux.HandleFunc("/v1/files/file-123/url", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "24", r.URL.Query().Get("expiry"))
		_, _ = w.Write([]byte(`{"url":"https://signed.example/file-123"}`))
	})
	mux.HandleFunc("/v1/ocr", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&ocrCalls, 1) <= ocrFailures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Equal(t, "https://signed.example/file-123", req.Document.DocumentURL)
		_ = json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 1, Markdown: "page two"},
			{Index: 0, Markdown: "page one"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &ocrCalls
}

func TestMistralOCR_ExtractPages(t *testing.T) {
	srv, calls := fakeMistral(t, 1)

	m := NewMistralOCR("test-key", WithBaseURL(srv.URL), WithModel("test-model"), WithRetry(fastRetry))
	pages, err := m.ExtractPages(context.Background(), model.Document{Filename: "sheet.pdf", Data: []byte("%PDF-1.7")})
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two"}, pages)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestMistralOCR_PermanentErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", WithBaseURL(srv.URL), WithRetry(fastRetry))
	_, err := m.ExtractPages(context.Background(), model.Document{Filename: "sheet.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMistralOCR_RetriesExhausted(t *testing.T) {
	srv, calls := fakeMistral(t, 10)

	m := NewMistralOCR("test-key", WithBaseURL(srv.URL), WithModel("test-model"), WithRetry(fastRetry))
	_, err := m.ExtractPages(context.Background(), model.Document{Filename: "sheet.pdf", Data: []byte("%PDF-1.7")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral process")
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestMistralOCR_Defaults(t *testing.T) {
	m := NewMistralOCR("key", WithBaseURL(""), WithModel(""))
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, defaultMistralBaseURL, m.baseURL)
}
