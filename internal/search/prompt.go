package search

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a technical specialist focused on finding accurate product specifications " +
	"from reliable sources. Only return information for the exact specifications requested, " +
	"using the exact format specified."

const userPromptTemplate = `Please gather the following specifications for %s part number %s:

%s

For each specification, respond in this exact format:
[Specification Name]
Value: [exact value or "-" if not found]
Source: [URL or document name]
Confidence: [High/Medium/Low], [explanation]

Use exactly this format for each specification, with a blank line between specifications.
If a specification is not found, still include it with Value: "-"

Please be thorough but concise in your response. Only provide information for the specifications listed above.`

// BuildPrompt renders the user message for one part number.
func BuildPrompt(supplier, partNumber string, specifications []string) string {
	lines := make([]string, len(specifications))
	for i, s := range specifications {
		lines[i] = "- " + s
	}
	return fmt.Sprintf(userPromptTemplate, supplier, partNumber, strings.Join(lines, "\n"))
}
