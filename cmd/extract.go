package main

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spec-search/internal/fetcher"
	"github.com/sells-group/spec-search/internal/model"
)

var (
	extractFlags    requestFlags
	extractFile     string
	extractStrategy string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract part specifications from a datasheet",
	Example: `  spec-search extract --file catalog.pdf --supplier Parker --part 3/8-RA --spec Material
  spec-search extract --file https://example.com/datasheets/ra.pdf --supplier Parker --part 3/8-RA --spec Material
  spec-search extract --file catalog.pdf --strategy ocr_regex --supplier Parker --part 3/8-RA --spec Material`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := extractFlags.request(cmd)
		if err != nil {
			return err
		}
		doc, err := loadDocument(cmd.Context(), extractFile)
		if err != nil {
			return err
		}

		if extractStrategy != "" {
			cfg.Document.Strategy = extractStrategy
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Document == nil {
			return eris.Wrap(env.DocumentErr, "document extraction is not configured")
		}

		resp := env.Document.Extract(cmd.Context(), model.DocumentRequest{SpecRequest: req, Document: doc})
		return extractFlags.emit(cmd.OutOrStdout(), resp)
	},
}

// loadDocument downloads http(s) sources and reads anything else from disk.
func loadDocument(ctx context.Context, src string) (model.Document, error) {
	if !fetcher.IsURL(src) {
		return readDocument(src)
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		MaxBytes:   cfg.Document.MaxUploadMB << 20,
		HostRate:   cfg.Fetch.HostRate,
	})
	return f.Fetch(ctx, src)
}

// readDocument loads path and infers its media type from the extension,
// defaulting to PDF.
func readDocument(path string) (model.Document, error) {
	if path == "" {
		return model.Document{}, eris.New("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "read %s", path)
	}

	mediaType := "application/pdf"
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" && ext != ".pdf" {
		if t := mime.TypeByExtension(ext); t != "" {
			mediaType, _, _ = strings.Cut(t, ";")
		}
	}
	return model.Document{Filename: filepath.Base(path), MediaType: mediaType, Data: data}, nil
}

func init() {
	extractFlags.register(extractCmd)
	extractCmd.Flags().StringVar(&extractFile, "file", "", "document to read: a local path or an http(s) URL (PDF or image)")
	extractCmd.Flags().StringVar(&extractStrategy, "strategy", "", "override document.strategy: vision, ocr_llm or ocr_regex")
	rootCmd.AddCommand(extractCmd)
}
