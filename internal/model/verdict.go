package model

import (
	"encoding/json"
)

// ValidationStatus is the coarse confidence tier of a verdict.
type ValidationStatus string

const (
	StatusGreen  ValidationStatus = "green"  // unanimous
	StatusYellow ValidationStatus = "yellow" // majority of at least 66%
	StatusRed    ValidationStatus = "red"    // weak majority
	StatusGrey   ValidationStatus = "grey"   // no data

	// StatusNone marks informational verdicts that were never scored.
	StatusNone ValidationStatus = ""
)

// NotFound is the value reported when no source produced a value.
const NotFound = "-"

// ParsedField is one extraction of one specification from one raw answer.
type ParsedField struct {
	Value     string `json:"value"`
	Source    string `json:"source"`
	Reasoning string `json:"reasoning"`
	Label     string `json:"label,omitempty"` // High, Medium or Low as stated by the model
}

// Source describes where a verdict's value came from.
type Source struct {
	URL             string `json:"url" yaml:"url"`
	Title           string `json:"title" yaml:"title"`
	ConfidenceNotes string `json:"confidence_notes" yaml:"confidence_notes"`
}

// SpecVerdict is the reconciled outcome for one (part number, specification) pair.
type SpecVerdict struct {
	Name             string           `json:"name" yaml:"name"`
	Value            string           `json:"value" yaml:"value"`
	Confidence       float64          `json:"confidence" yaml:"confidence"`
	ValidationStatus ValidationStatus `json:"validation_status,omitempty" yaml:"validation_status,omitempty"`
	Source           Source           `json:"source" yaml:"source"`
	Reasoning        string           `json:"reasoning" yaml:"reasoning"`
}

// PartResult holds the verdicts for one part number, in request order.
type PartResult struct {
	PartNumber     string        `json:"part_number" yaml:"part_number"`
	Specifications []SpecVerdict `json:"specifications" yaml:"specifications"`
}

// SearchResponse is either a list of results or a single error. The two
// are mutually exclusive.
type SearchResponse struct {
	Results []PartResult `yaml:"results,omitempty"`
	Error   string       `yaml:"error,omitempty"`
}

// NewResults builds a successful response. A nil slice is reported as an
// empty list.
func NewResults(results []PartResult) *SearchResponse {
	if results == nil {
		results = []PartResult{}
	}
	return &SearchResponse{Results: results}
}

// NewError builds a failed response.
func NewError(msg string) *SearchResponse {
	return &SearchResponse{Error: msg}
}

// Failed reports whether the response carries an error.
func (r *SearchResponse) Failed() bool {
	return r.Error != ""
}

// MarshalJSON emits {"error": ...} or {"results": [...]}, never both.
func (r SearchResponse) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	results := r.Results
	if results == nil {
		results = []PartResult{}
	}
	return json.Marshal(struct {
		Results []PartResult `json:"results"`
	}{results})
}

// UnmarshalJSON accepts either shape produced by MarshalJSON.
func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Results []PartResult `json:"results"`
		Error   string       `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Results = raw.Results
	r.Error = raw.Error
	return nil
}
