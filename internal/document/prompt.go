package document

import (
	"fmt"
	"strings"
)

const visionPromptTemplate = `You are reading a supplier datasheet for %s.

For each of these part numbers:
%s

extract these specifications:
%s

Answer with one section per part number, in the order given. Start each section with the line
Part Number: <part number>
and separate sections with two blank lines.

Inside a section, write one block per specification, separated by a single blank line, exactly like this:

[Specification Name]
Value: <value with units>
Source: <page or table where the value appears>
Confidence: <High|Medium|Low>, <short reasoning>

Write a block for every specification even when the document does not state it; use "Value: -" in that case.
Do not add any other text.`

const extractionPromptTemplate = `The text below was extracted from a supplier datasheet for %s.

Part numbers:
%s

Specifications:
%s

Return only a JSON array with one object per part number found in the text:
[{"part_number": "<part number>", "specifications": [{"name": "<specification>", "value": "<value with units or ->"}]}]
Use the specification names exactly as listed. Use "-" when a value is not stated.

Text:
%s`

func bullets(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

// VisionPrompt asks for the block format, one section per part number.
func VisionPrompt(supplier string, partNumbers, specifications []string) string {
	return fmt.Sprintf(visionPromptTemplate, supplier, bullets(partNumbers), bullets(specifications))
}

// ExtractionPrompt asks for a JSON array over OCR text.
func ExtractionPrompt(supplier string, partNumbers, specifications []string, text string) string {
	return fmt.Sprintf(extractionPromptTemplate, supplier, bullets(partNumbers), bullets(specifications), text)
}
