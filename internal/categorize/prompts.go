package categorize

import (
	"strings"

	"github.com/pbialon/budgie/internal/core"
)

// BuildPrompt renders the classification prompt for one transaction against
// the supplied category catalog. The model must answer with a single strict
// JSON object; parsing and validation happen in response.go.
func BuildPrompt(in Input, catalog []core.Category) string {
	var b strings.Builder

	b.WriteString("You are a personal-finance transaction classifier.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Assign the transaction below to exactly one of the listed categories.\n")
	b.WriteString("- Produce a short human-friendly display name (max 50 characters)\n")
	b.WriteString("  and a cleaned-up description (max 200 characters).\n")
	b.WriteString("- Output STRICT JSON only (no comments, no extra text).\n\n")

	b.WriteString("Transaction:\n")
	b.WriteString("- description: " + strings.TrimSpace(in.RawDescription) + "\n")
	b.WriteString("- amount: " + in.Amount.String())
	if in.Currency != "" {
		b.WriteString(" " + in.Currency)
	}
	b.WriteString("\n")
	if !in.Date.IsZero() {
		b.WriteString("- date: " + in.Date.Format("2006-01-02") + "\n")
	}
	if in.CounterpartyName != "" {
		b.WriteString("- counterparty: " + in.CounterpartyName + "\n")
	}
	if in.IsIncome {
		b.WriteString("- direction: income\n")
	} else {
		b.WriteString("- direction: expense\n")
	}

	b.WriteString("\nUse ONLY the following categories (id: name, hint):\n\n")
	for _, c := range catalog {
		b.WriteString("- " + c.ID + ": " + c.Name)
		if c.AIPrompt != "" {
			b.WriteString(" (" + c.AIPrompt + ")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. \"category_id\" must be EXACTLY one of the ids listed above.\n")
	b.WriteString("2. \"confidence\" is a number between 0 and 1.\n")
	b.WriteString("3. Return ONLY valid raw JSON with this shape:\n")
	b.WriteString(`{"category_id": "...", "confidence": 0.0, "display_name": "...", "description": "..."}` + "\n")
	b.WriteString("4. Do NOT wrap the response in code fences or Markdown.\n")

	return b.String()
}
