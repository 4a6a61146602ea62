package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONArrays(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantCount  int
		wantFirstN int
	}{
		{name: "bare", reply: `[{"a":1},{"b":2}]`, wantCount: 1, wantFirstN: 2},
		{name: "fenced", reply: "```json\n[1, 2, 3]\n```", wantCount: 1, wantFirstN: 3},
		{name: "skips bracketed prose", reply: `See [note] then [{"x": 1}]`, wantCount: 1, wantFirstN: 1},
		{name: "aside before payload", reply: `Footnote [1] applies. [{"x": 1}, {"y": 2}]`, wantCount: 2, wantFirstN: 1},
		{name: "none", reply: "no json here"},
		{name: "object only", reply: `{"a": [}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jsonArrays(tt.reply)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Len(t, got[0], tt.wantFirstN)
			}
		})
	}
}

func TestParseExtraction_SkipsArraysThatFailSchema(t *testing.T) {
	reply := `Values per datasheet [1]; see table [2, 3].
[{"part_number": "X1", "specifications": [{"name": "Weight", "value": "2 kg"}]}]`

	parts, err := parseExtraction(reply)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "X1", parts[0].PartNumber)
	assert.Equal(t, []extractedSpec{{Name: "Weight", Value: "2 kg"}}, parts[0].Specifications)
}

func TestParseExtraction_NoArray(t *testing.T) {
	_, err := parseExtraction("I could not find the part numbers.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON array in reply")
}

func TestParseExtraction(t *testing.T) {
	parts, err := parseExtraction(`[
		{"part_number": "X1", "specifications": [{"name": "Weight", "value": " 2 kg "}, {"name": "Pins", "value": 8}, {"name": "Color", "value": null}]},
		{"part_number": 1234, "specifications": []}
	]`)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	assert.Equal(t, "X1", parts[0].PartNumber)
	assert.Equal(t, []extractedSpec{
		{Name: "Weight", Value: "2 kg"},
		{Name: "Pins", Value: "8"},
		{Name: "Color", Value: ""},
	}, parts[0].Specifications)
	assert.Equal(t, "1234", parts[1].PartNumber)
}

func TestParseExtraction_SchemaViolations(t *testing.T) {
	for _, reply := range []string{
		`[{"specifications": []}]`,
		`[{"part_number": "X1", "specifications": [{"name": "Weight"}]}]`,
		`[{"part_number": "X1", "specifications": "Weight: 2kg"}]`,
		`["X1"]`,
	} {
		_, err := parseExtraction(reply)
		require.Error(t, err, reply)
		assert.Contains(t, err.Error(), "does not match schema")
	}
}
