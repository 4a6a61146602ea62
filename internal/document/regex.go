package document

import (
	"regexp"
	"strings"

	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/reconcile"
)

const (
	ocrSource       = "OCR"
	regexFound      = "Matched in OCR text"
	regexNotMatched = "No match in OCR text"
)

func specPattern(spec string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(spec) + `\s*[:\-]\s*([^\n]+)`)
}

// scope narrows text to the blank-line sections that mention partNumber.
// With a single part number the whole text is in scope when no section
// names it.
func scope(text, partNumber string, single bool) string {
	var hits []string
	needle := strings.ToLower(partNumber)
	for _, s := range reconcile.Sections(text) {
		if strings.Contains(strings.ToLower(s), needle) {
			hits = append(hits, s)
		}
	}
	if len(hits) == 0 && single {
		return text
	}
	return strings.Join(hits, "\n\n")
}

// RegexExtract scans OCR text for "<spec>: value" per specification. The
// verdicts are informational: confidence is not computed and they carry
// no validation status.
func RegexExtract(text string, partNumbers, specifications []string) []model.PartResult {
	patterns := make([]*regexp.Regexp, len(specifications))
	for i, spec := range specifications {
		patterns[i] = specPattern(spec)
	}

	results := make([]model.PartResult, 0, len(partNumbers))
	for _, pn := range partNumbers {
		body := scope(text, pn, len(partNumbers) == 1)
		verdicts := make([]model.SpecVerdict, 0, len(specifications))
		for i, spec := range specifications {
			v := model.SpecVerdict{
				Name:             spec,
				Value:            model.NotFound,
				ValidationStatus: model.StatusNone,
				Source:           model.Source{URL: ocrSource, Title: ocrSource},
				Reasoning:        regexNotMatched,
			}
			if m := patterns[i].FindStringSubmatch(body); m != nil {
				if val := strings.TrimSpace(m[1]); val != "" {
					v.Value = val
					v.Reasoning = regexFound
				}
			}
			verdicts = append(verdicts, v)
		}
		results = append(results, model.PartResult{PartNumber: pn, Specifications: verdicts})
	}
	return results
}
