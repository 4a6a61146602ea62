package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spec-search/internal/model"
)

const weightAnswer = "Weight\nValue: 2kg\nSource: acme.com\nConfidence: High, measured in spec sheet"

func TestReconcile_UnanimousAnswers(t *testing.T) {
	specs := []string{"Weight"}
	merged := Reconcile(BlockParser{}, []string{weightAnswer, weightAnswer, weightAnswer}, specs)
	part := BuildPartResult("X1", specs, merged)

	require.Len(t, part.Specifications, 1)
	assert.Equal(t, model.SpecVerdict{
		Name:             "Weight",
		Value:            "2kg",
		Confidence:       1.0,
		ValidationStatus: model.StatusGreen,
		Source: model.Source{
			URL:             "acme.com",
			Title:           "Source",
			ConfidenceNotes: "100% confidence based on 3/3 matching results",
		},
		Reasoning: "measured in spec sheet | measured in spec sheet | measured in spec sheet",
	}, part.Specifications[0])
}

func TestReconcile_SlotOrderDecidesTie(t *testing.T) {
	a := "Color\nValue: red\nSource: a"
	b := "Color\nValue: blue\nSource: b"

	forward := BuildPartResult("X1", []string{"Color"}, Reconcile(BlockParser{}, []string{a, b}, []string{"Color"}))
	reverse := BuildPartResult("X1", []string{"Color"}, Reconcile(BlockParser{}, []string{b, a}, []string{"Color"}))

	assert.Equal(t, "red", forward.Specifications[0].Value)
	assert.Equal(t, "blue", reverse.Specifications[0].Value)
}

func TestBuildPartResult_RequestOrderAndGreyFloor(t *testing.T) {
	specs := []string{"Material", "Weight", "Color"}
	merged := Reconcile(BlockParser{}, []string{weightAnswer}, specs)
	part := BuildPartResult("X1", specs, merged)

	require.Len(t, part.Specifications, 3)
	for i, spec := range specs {
		assert.Equal(t, spec, part.Specifications[i].Name)
	}
	assert.Equal(t, model.StatusGrey, part.Specifications[0].ValidationStatus)
	assert.Equal(t, "2kg", part.Specifications[1].Value)
	assert.Equal(t, model.StatusGreen, part.Specifications[1].ValidationStatus)
	assert.Equal(t, "-", part.Specifications[2].Value)
}

func TestAssemble_DropsSkippedParts(t *testing.T) {
	a := BuildPartResult("A", []string{"Weight"}, nil)
	c := BuildPartResult("C", []string{"Weight"}, nil)

	out := Assemble([]*model.PartResult{&a, nil, &c})
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].PartNumber)
	assert.Equal(t, "C", out[1].PartNumber)

	assert.Empty(t, Assemble(nil))
}
