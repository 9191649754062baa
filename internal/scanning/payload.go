package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/expense-tracker/internal/category"
	"github.com/zombor/expense-tracker/internal/money"
)

// PayloadStatus says what came back from the AI normalizer
type PayloadStatus int

const (
	// PayloadAbsent means the normalizer failed or was never called
	PayloadAbsent PayloadStatus = iota
	// PayloadMalformed means a reply arrived but is not the expected object
	PayloadMalformed
	// PayloadWellFormed means the reply decoded into the expected object
	PayloadWellFormed
)

func (s PayloadStatus) String() string {
	switch s {
	case PayloadAbsent:
		return "absent"
	case PayloadMalformed:
		return "malformed"
	case PayloadWellFormed:
		return "well_formed"
	default:
		return fmt.Sprintf("PayloadStatus(%d)", int(s))
	}
}

// Payload is the AI normalizer's reply. Fields are only meaningful when
// Status is PayloadWellFormed.
type Payload struct {
	Status   PayloadStatus
	Title    string
	Amount   float64
	Date     string
	Category string
	// Err explains why the payload is absent or malformed
	Err error
}

type aiReply struct {
	Title    string       `json:"title"`
	Amount   money.Amount `json:"amount"`
	Date     string       `json:"date"`
	Category string       `json:"category"`
}

// AbsentPayload records a normalizer failure.
func AbsentPayload(err error) Payload {
	return Payload{Status: PayloadAbsent, Err: err}
}

// ParsePayload decodes a normalizer reply. Markdown fences and text around
// the JSON object are tolerated; anything else is PayloadMalformed.
func ParsePayload(raw string) Payload {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return Payload{Status: PayloadMalformed, Err: fmt.Errorf("no JSON object found in response")}
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return Payload{Status: PayloadMalformed, Err: fmt.Errorf("invalid JSON object in response")}
	}

	var reply aiReply
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &reply); err != nil {
		return Payload{Status: PayloadMalformed, Err: fmt.Errorf("unmarshaling json: %w", err)}
	}

	return Payload{
		Status:   PayloadWellFormed,
		Title:    strings.TrimSpace(reply.Title),
		Amount:   reply.Amount.Float64(),
		Date:     normalizeDate(reply.Date),
		Category: strings.TrimSpace(reply.Category),
	}
}

// AsDraft returns the payload on its own, without heuristic fields: the
// sanitized reply when well-formed, the degraded draft otherwise.
func (p Payload) AsDraft(text string) Draft {
	if p.Status != PayloadWellFormed {
		return degradedDraft(text, "")
	}
	return Draft{
		Title:    p.Title,
		Amount:   p.Amount,
		Date:     p.Date,
		Category: category.Normalize(p.Category),
	}
}
