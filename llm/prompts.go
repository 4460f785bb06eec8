package llm

import (
	"fmt"
	"strings"
)

const (
	LineageQuery = iota
	TableQuestion
)

var lineageFormat = "```json\n" + `[
  {
    "Source_Database": "staging",
    "Source_Table": "orders",
    "Source_Column": "amount",
    "Target_Database": "warehouse",
    "Target_Table": "daily_sales",
    "Target_Column": "total_amount",
    "Transformation": "SUM(amount) grouped by order_date"
  }
]` + "\n```"

var prompts = map[int]string{
	LineageQuery: "You are a data lineage analyst. For the SQL/code below, list every target column it " +
		"populates and where the value comes from: source database, source table, source column, " +
		"target database, target table, target column and the transformation applied " +
		"(use \"direct\" when the value is copied unchanged). Reply with a single fenced JSON array " +
		"in exactly this format and nothing else:\n" + lineageFormat + "\n\nCode:\n",
	TableQuestion: "You are a data analyst answering questions about the table below. Use only the " +
		"data shown; if the answer cannot be derived from it, say so. Answer concisely.\n\n",
}

// LineagePrompt embeds code in the fixed lineage instruction.
func LineagePrompt(code string) string {
	return prompts[LineageQuery] + strings.TrimSpace(code)
}

// TablePrompt embeds a rendered table and a question.
func TablePrompt(table, question string) string {
	return fmt.Sprintf("%sTable:\n%s\n\nQuestion: %s", prompts[TableQuestion], table, strings.TrimSpace(question))
}
