package scanning

import (
	"fmt"
	"strings"

	"github.com/zombor/expense-tracker/internal/category"
)

// recognizePrompt asks a vision model to behave like a plain OCR engine
const recognizePrompt = `Transcribe every piece of text visible in this receipt image, line by line, exactly as printed.

Rules:
- Keep the original line order, top to bottom.
- Keep numbers, prices, dates and punctuation exactly as printed.
- Do not summarize, translate, correct or explain anything.
- Do not use markdown.
- If the image contains no readable text, return an empty reply.`

// categorizePrompt builds the system prompt for the AI normalizer
func categorizePrompt() string {
	quoted := make([]string, 0, len(category.All()))
	for _, c := range category.All() {
		quoted = append(quoted, fmt.Sprintf("%q", c))
	}

	return fmt.Sprintf(`You are an expense categorization assistant.
Extract the following fields from the receipt text:

- title: Store or merchant name (short, e.g. "Walmart", "Amazon", "Supermarket")
- amount: Total bill in numbers ONLY (no currency, no commas, e.g. 423.25)
- date: Date of transaction in YYYY-MM-DD format
- category: Choose ONLY from: [%s]

Return ONLY valid JSON in this format:
{
  "title": "...",
  "amount": 0,
  "date": "...",
  "category": "..."
}`, strings.Join(quoted, ", "))
}
