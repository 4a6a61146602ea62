package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/spec-search/internal/model"
)

// Validation tiers.
const (
	yellowThreshold = 0.66

	noResults       = "No results found"
	singleSource    = "Source"
	multipleSources = "Multiple Sources"
)

// Verdict is a reconciled specification value that has not been named yet.
type Verdict struct {
	Value            string
	Confidence       float64
	ValidationStatus model.ValidationStatus
	Source           model.Source
	Reasoning        string
}

// Named attaches the specification name.
func (v Verdict) Named(name string) model.SpecVerdict {
	return model.SpecVerdict{
		Name:             name,
		Value:            v.Value,
		Confidence:       v.Confidence,
		ValidationStatus: v.ValidationStatus,
		Source:           v.Source,
		Reasoning:        v.Reasoning,
	}
}

// Empty is the verdict for a specification nobody answered.
func Empty() Verdict {
	return Verdict{
		Value:            model.NotFound,
		Confidence:       0,
		ValidationStatus: model.StatusGrey,
		Source:           model.Source{ConfidenceNotes: noResults},
		Reasoning:        noResults,
	}
}

type valueGroup struct {
	value      string
	count      int
	sources    []string
	reasonings []string
}

// Aggregate merges every parsed field for one specification into a single
// verdict by majority vote. Ties go to the value seen first, so callers
// must pass fields in a deterministic order.
func Aggregate(fields []model.ParsedField) Verdict {
	if len(fields) == 0 {
		return Empty()
	}

	var groups []*valueGroup
	index := make(map[string]*valueGroup, len(fields))
	for _, f := range fields {
		g, ok := index[f.Value]
		if !ok {
			g = &valueGroup{value: f.Value}
			index[f.Value] = g
			groups = append(groups, g)
		}
		g.count++
		g.sources = append(g.sources, f.Source)
		g.reasonings = append(g.reasonings, f.Reasoning)
	}

	winner := groups[0]
	for _, g := range groups[1:] {
		if g.count > winner.count {
			winner = g
		}
	}

	total := len(fields)
	confidence := float64(winner.count) / float64(total)

	title := singleSource
	if distinct(winner.sources) > 1 {
		title = multipleSources
	}

	return Verdict{
		Value:            winner.value,
		Confidence:       confidence,
		ValidationStatus: Status(confidence),
		Source: model.Source{
			URL:   winner.sources[0],
			Title: title,
			ConfidenceNotes: fmt.Sprintf("%d%% confidence based on %d/%d matching results",
				int(math.Round(confidence*100)), winner.count, total),
		},
		Reasoning: strings.Join(winner.reasonings, " | "),
	}
}

func distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Status maps an agreement ratio to its validation tier.
func Status(confidence float64) model.ValidationStatus {
	switch {
	case confidence >= 1.0:
		return model.StatusGreen
	case confidence >= yellowThreshold:
		return model.StatusYellow
	default:
		return model.StatusRed
	}
}
