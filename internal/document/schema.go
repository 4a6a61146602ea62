package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const extractionSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["part_number", "specifications"],
    "properties": {
      "part_number": {"type": ["string", "number"]},
      "specifications": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["name", "value"],
          "properties": {
            "name": {"type": "string"},
            "value": {"type": ["string", "number", "null"]}
          }
        }
      }
    }
  }
}`

// extractedPart is one element of the JSON array the text model returns.
type extractedPart struct {
	PartNumber     string
	Specifications []extractedSpec
}

type extractedSpec struct {
	Name  string
	Value string
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("extraction.json")
})

// jsonArrays returns the top-level JSON arrays in reply that decode, in
// order. Scanning resumes after each decoded array, so arrays nested in
// one are not returned separately.
func jsonArrays(reply string) [][]any {
	var out [][]any
	for i := 0; i < len(reply); {
		start := strings.IndexByte(reply[i:], '[')
		if start < 0 {
			break
		}
		i += start

		var v []any
		dec := json.NewDecoder(strings.NewReader(reply[i:]))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			i++
			continue
		}
		out = append(out, v)
		i += int(dec.InputOffset())
	}
	return out
}

// parseExtraction takes the first JSON array in the reply that matches the
// extraction schema and converts it. When arrays are present but none
// matches, the first one's schema error is returned.
func parseExtraction(reply string) ([]extractedPart, error) {
	arrays := jsonArrays(reply)
	if len(arrays) == 0 {
		return nil, eris.New("document: no JSON array in reply")
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, eris.Wrap(err, "document: compile schema")
	}

	var (
		raw      []any
		found    bool
		firstErr error
	)
	for _, candidate := range arrays {
		if err := schema.Validate(candidate); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		raw, found = candidate, true
		break
	}
	if !found {
		return nil, eris.Wrap(firstErr, "document: reply does not match schema")
	}

	parts := make([]extractedPart, 0, len(raw))
	for _, item := range raw {
		obj := item.(map[string]any)
		p := extractedPart{PartNumber: scalar(obj["part_number"])}
		for _, s := range obj["specifications"].([]any) {
			spec := s.(map[string]any)
			p.Specifications = append(p.Specifications, extractedSpec{
				Name:  scalar(spec["name"]),
				Value: scalar(spec["value"]),
			})
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}
