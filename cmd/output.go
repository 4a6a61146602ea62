package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/sheet"
)

// requestFlags are the request-shaping flags shared by search and extract.
type requestFlags struct {
	supplier  string
	parts     []string
	partsFile string
	specs     []string
	format    string
	xlsx      string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.supplier, "supplier", "", "supplier name")
	cmd.Flags().StringArrayVar(&f.parts, "part", nil, "part number (repeatable)")
	cmd.Flags().StringVar(&f.partsFile, "parts-file", "", "CSV, TXT or XLSX file listing part numbers")
	cmd.Flags().StringArrayVar(&f.specs, "spec", nil, "specification name (repeatable)")
	cmd.Flags().StringVar(&f.format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "also write results to this XLSX file")
}

// request builds a SpecRequest from the flags, appending part numbers read
// from --parts-file after any given with --part.
func (f *requestFlags) request(cmd *cobra.Command) (model.SpecRequest, error) {
	req := model.SpecRequest{
		Supplier:       f.supplier,
		PartNumbers:    append([]string(nil), f.parts...),
		Specifications: f.specs,
	}
	if f.partsFile != "" {
		pns, err := sheet.ReadPartNumbers(cmd.Context(), f.partsFile)
		if err != nil {
			return req, err
		}
		req.PartNumbers = append(req.PartNumbers, pns...)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// emit writes resp in the chosen format and, when requested, the XLSX copy.
// A failed response is still written before its error is returned.
func (f *requestFlags) emit(w io.Writer, resp *model.SearchResponse) error {
	if err := writeResponse(w, f.format, resp); err != nil {
		return err
	}
	if resp.Failed() {
		return eris.New(resp.Error)
	}
	if f.xlsx != "" {
		return sheet.WriteResults(f.xlsx, resp.Results)
	}
	return nil
}

func writeResponse(w io.Writer, format string, resp *model.SearchResponse) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}
