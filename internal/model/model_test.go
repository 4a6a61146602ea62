package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SpecRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  SpecRequest{Supplier: "Acme", PartNumbers: []string{"X1"}, Specifications: []string{"Weight"}},
		},
		{
			name:    "all_missing",
			req:     SpecRequest{},
			wantErr: "Missing required fields: supplier, part_numbers, specifications",
		},
		{
			name:    "empty_lists",
			req:     SpecRequest{Supplier: "Acme", PartNumbers: []string{}, Specifications: []string{}},
			wantErr: "Missing required fields: part_numbers, specifications",
		},
		{
			name:    "blank_part_number",
			req:     SpecRequest{Supplier: "Acme", PartNumbers: []string{"X1", ""}, Specifications: []string{"Weight"}},
			wantErr: "Missing required fields: part_numbers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestSearchResponse_MarshalJSON_ErrorOnly(t *testing.T) {
	data, err := json.Marshal(NewError("No valid results obtained for any part numbers"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No valid results obtained for any part numbers"}`, string(data))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasResults := raw["results"]
	assert.False(t, hasResults)
}

func TestSearchResponse_MarshalJSON_EmptyResults(t *testing.T) {
	data, err := json.Marshal(NewResults(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(data))
}

func TestSearchResponse_MarshalJSON_Results(t *testing.T) {
	resp := NewResults([]PartResult{{
		PartNumber: "X1",
		Specifications: []SpecVerdict{{
			Name:             "Weight",
			Value:            "2kg",
			Confidence:       1.0,
			ValidationStatus: StatusGreen,
			Source:           Source{URL: "acme.com", Title: "Source", ConfidenceNotes: "100% confidence based on 3/3 matching results"},
			Reasoning:        "measured",
		}},
	}})

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded SearchResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.Failed())
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "X1", decoded.Results[0].PartNumber)
	assert.Equal(t, StatusGreen, decoded.Results[0].Specifications[0].ValidationStatus)
}

func TestSpecVerdict_UnscoredOmitsStatus(t *testing.T) {
	data, err := json.Marshal(SpecVerdict{Name: "Weight", Value: "2kg", Source: Source{URL: "OCR"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "validation_status")
	assert.Contains(t, string(data), `"confidence":0`)
}

func TestAnswers_SlotOrder(t *testing.T) {
	slots := []SlotResult{
		{Slot: 0, Answer: "first"},
		{Slot: 1, Err: eris.New("timeout")},
		{Slot: 2, Answer: "   "},
		{Slot: 3, Answer: "last"},
	}
	assert.Equal(t, []string{"first", "last"}, Answers(slots))
	assert.False(t, slots[1].OK())
	assert.False(t, slots[2].OK())
}
