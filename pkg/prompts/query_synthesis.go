package prompts

import (
	"fmt"
	"strings"

	"github.com/cubelens/cubelens-engine/pkg/repair"
)

// CubeContext provides full semantic model context for one cube.
type CubeContext struct {
	Name        string
	Title       string
	Description string
	Measures    []MeasureContext
	Dimensions  []DimensionContext
	Joins       []string // names of cubes reachable by declared joins
}

// MeasureContext provides measure details for query synthesis.
type MeasureContext struct {
	Name        string
	Aggregation string
	Description string
}

// DimensionContext provides dimension details for query synthesis.
type DimensionContext struct {
	Name        string
	Type        string
	Description string
}

// ExemplarContext is a previously successful question/query pair included
// as a few-shot example.
type ExemplarContext struct {
	Question string
	DSL      string // canonical JSON of the document
}

// BuildQuerySynthesisPrompt creates the prompt for generating a DSL query
// document from a natural-language question. It includes the semantic model,
// retrieved exemplars, an optional repair hint from a prior failed attempt,
// and the JSON response format.
func BuildQuerySynthesisPrompt(question string, cubes []CubeContext, exemplars []ExemplarContext, hint *repair.Hint) string {
	var prompt strings.Builder

	prompt.WriteString("# Analytical Query Synthesis\n\n")
	prompt.WriteString("Translate the user's question into a query document against the semantic model below.\n\n")

	prompt.WriteString("## Semantic Model\n\n")
	for _, cube := range cubes {
		prompt.WriteString(fmt.Sprintf("### %s\n", cube.Name))
		if cube.Title != "" {
			prompt.WriteString(fmt.Sprintf("Title: %s\n", cube.Title))
		}
		if cube.Description != "" {
			prompt.WriteString(fmt.Sprintf("Description: %s\n", cube.Description))
		}
		prompt.WriteString("Measures:\n")
		for _, m := range cube.Measures {
			desc := ""
			if m.Description != "" {
				desc = " - " + m.Description
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", m.Name, m.Aggregation, desc))
		}
		prompt.WriteString("Dimensions:\n")
		for _, d := range cube.Dimensions {
			desc := ""
			if d.Description != "" {
				desc = " - " + d.Description
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", d.Name, d.Type, desc))
		}
		if len(cube.Joins) > 0 {
			prompt.WriteString(fmt.Sprintf("Joinable cubes: %s\n", strings.Join(cube.Joins, ", ")))
		}
		prompt.WriteString("\n")
	}

	if len(exemplars) > 0 {
		prompt.WriteString("## Similar Past Questions\n\n")
		prompt.WriteString("These questions were answered successfully before. Reuse their structure where it fits:\n\n")
		for i, ex := range exemplars {
			prompt.WriteString(fmt.Sprintf("### Example %d\n", i+1))
			prompt.WriteString(fmt.Sprintf("Question: %s\n", ex.Question))
			prompt.WriteString("Query:\n```json\n")
			prompt.WriteString(ex.DSL)
			prompt.WriteString("\n```\n\n")
		}
	}

	if hint != nil {
		prompt.WriteString("## Previous Attempt Failed\n\n")
		prompt.WriteString(fmt.Sprintf("The last generated query failed with a %s error.\n", hint.Category))
		if hint.Details != "" {
			prompt.WriteString(fmt.Sprintf("Corrective guidance: %s\n", hint.Details))
		}
		prompt.WriteString("Generate a corrected query. Do not repeat the same mistake.\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use ONLY measures, dimensions, and cubes listed in the semantic model above. Never invent member names.\n")
	prompt.WriteString("- Reference members of the chosen cube by bare name; members of a joinable cube as `cube.member`.\n")
	prompt.WriteString("- Cross-cube references are allowed only to cubes listed under \"Joinable cubes\".\n")
	prompt.WriteString("- Filters on dimensions restrict rows; filters on measures restrict aggregated groups.\n")
	prompt.WriteString("- Valid filter operators: eq, ne, gt, gte, lt, lte, in, contains.\n")
	prompt.WriteString("- Always set a limit; default to 100 when the question does not imply one.\n")
	prompt.WriteString("- If the question is ambiguous, restate your interpretation in `rewritten_question`.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `query`: The query document\n")
	prompt.WriteString("  - `cube`: Name of the target cube\n")
	prompt.WriteString("  - `measures`: Array of measure names (may be empty)\n")
	prompt.WriteString("  - `dimensions`: Array of dimension names to group by (may be empty)\n")
	prompt.WriteString("  - `filters`: Array of {`member`, `operator`, `values`} (may be empty)\n")
	prompt.WriteString("  - `order`: Array of {`member`, `direction`} with direction \"asc\" or \"desc\" (may be empty)\n")
	prompt.WriteString("  - `limit`: Positive row limit\n")
	prompt.WriteString("- `rewritten_question`: Disambiguated restatement of the question, or null if it was already precise\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "query": {
    "cube": "sales",
    "measures": ["revenue"],
    "dimensions": ["region"],
    "filters": [
      {"member": "created_at", "operator": "gte", "values": ["2025-01-01"]}
    ],
    "order": [{"member": "revenue", "direction": "desc"}],
    "limit": 10
  },
  "rewritten_question": "Top 10 regions by total revenue since January 1, 2025"
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString(fmt.Sprintf("## Question\n\n%s\n\n", question))
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildQuerySynthesisSystemMessage returns the system message for the LLM.
func BuildQuerySynthesisSystemMessage() string {
	return `You are an analytical query planner. Your task is to translate business questions into structured query documents against a governed semantic model, using only the members the model defines.`
}
