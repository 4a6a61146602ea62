package reconcile

import (
	"github.com/sells-group/spec-search/internal/model"
)

// Reconcile parses every answer in order and merges the fields by
// specification. Answers must already be in slot order.
func Reconcile(p Parser, answers []string, specifications []string) map[string][]model.ParsedField {
	merged := make(map[string][]model.ParsedField, len(specifications))
	for _, raw := range answers {
		for spec, fields := range p.Parse(raw, specifications) {
			merged[spec] = append(merged[spec], fields...)
		}
	}
	return merged
}

// BuildPartResult aggregates the fields of one part number, emitting one
// verdict per requested specification in request order.
func BuildPartResult(partNumber string, specifications []string, fields map[string][]model.ParsedField) model.PartResult {
	verdicts := make([]model.SpecVerdict, 0, len(specifications))
	for _, spec := range specifications {
		verdicts = append(verdicts, Aggregate(fields[spec]).Named(spec))
	}
	return model.PartResult{
		PartNumber:     partNumber,
		Specifications: verdicts,
	}
}

// Assemble keeps request order and drops skipped (nil) part numbers, so the
// result may be shorter than the request.
func Assemble(parts []*model.PartResult) []model.PartResult {
	out := make([]model.PartResult, 0, len(parts))
	for _, p := range parts {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
