package sheet

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spec-search/internal/model"
)

var resultHeader = []string{
	"Part Number", "Specification", "Value", "Confidence", "Status",
	"Source URL", "Source Title", "Confidence Notes", "Reasoning",
}

// WriteResults saves one row per verdict to an XLSX file at path.
func WriteResults(path string, results []model.PartResult) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range resultHeader {
		header.AddCell().SetString(h)
	}

	for _, part := range results {
		for _, v := range part.Specifications {
			row := sheet.AddRow()
			row.AddCell().SetString(part.PartNumber)
			row.AddCell().SetString(v.Name)
			row.AddCell().SetString(v.Value)
			row.AddCell().SetFloat(v.Confidence)
			row.AddCell().SetString(string(v.ValidationStatus))
			row.AddCell().SetString(v.Source.URL)
			row.AddCell().SetString(v.Source.Title)
			row.AddCell().SetString(v.Source.ConfidenceNotes)
			row.AddCell().SetString(v.Reasoning)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
