// Package reconcile turns free-text model answers into confidence-scored
// specification verdicts.
package reconcile

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/spec-search/internal/model"
)

// Parser extracts per-specification fields from one raw answer. Absent or
// malformed blocks are omitted, never reported as errors.
type Parser interface {
	Parse(raw string, specifications []string) map[string][]model.ParsedField
}

// BlockParser parses the blank-line separated block convention:
//
//	[Specification Name]
//	Value: <value or "-">
//	Source: <url or location>
//	Confidence: <High|Medium|Low>, <reasoning>
type BlockParser struct{}

var _ Parser = BlockParser{}

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Sections splits text on blank lines and drops empty sections.
func Sections(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	parts := blankLine.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse implements Parser.
func (BlockParser) Parse(raw string, specifications []string) map[string][]model.ParsedField {
	out := make(map[string][]model.ParsedField, len(specifications))
	sections := Sections(raw)
	if len(sections) == 0 {
		return out
	}

	fold := cases.Fold()
	folded := make([]string, len(sections))
	headers := make([]string, len(sections))
	for i, s := range sections {
		folded[i] = fold.String(s)
		header, _, _ := strings.Cut(folded[i], "\n")
		headers[i] = header
	}

	seen := make(map[string]bool, len(specifications))
	for _, spec := range specifications {
		key := fold.String(strings.TrimSpace(spec))
		if key == "" || seen[spec] {
			continue
		}
		seen[spec] = true
		for i, section := range sections {
			if !strings.HasPrefix(folded[i], key) && !strings.Contains(headers[i], key) {
				continue
			}
			if f, ok := parseBlock(section); ok {
				out[spec] = append(out[spec], f)
			}
			break
		}
	}
	return out
}

// parseBlock reads the first value, source and confidence lines of a block.
// It reports false when the block carries no usable value.
func parseBlock(section string) (model.ParsedField, bool) {
	var (
		f                            model.ParsedField
		haveValue, haveSrc, haveConf bool
	)
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case !haveValue && strings.HasPrefix(lower, "value:"):
			f.Value = afterColon(line)
			haveValue = true
		case !haveSrc && strings.HasPrefix(lower, "source:"):
			f.Source = afterColon(line)
			haveSrc = true
		case !haveConf && strings.HasPrefix(lower, "confidence:"):
			label, reasoning, found := strings.Cut(afterColon(line), ",")
			f.Label = strings.TrimSpace(label)
			if found {
				f.Reasoning = strings.TrimSpace(reasoning)
			}
			haveConf = true
		}
	}
	if f.Value == "" || f.Value == model.NotFound {
		return model.ParsedField{}, false
	}
	return f, true
}

func afterColon(line string) string {
	_, rest, _ := strings.Cut(line, ":")
	return strings.TrimSpace(rest)
}
