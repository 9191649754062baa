package scanning

import "context"

// Recognition is the raw text read from a receipt image
type Recognition struct {
	Text string `json:"text"`
}

// ProgressFunc receives recognition progress as a percentage in [0,100]
type ProgressFunc func(percent int)

// Recognizer defines the interface for optical character recognition
type Recognizer interface {
	// Recognize reads all text from an image or PDF. progress may be nil.
	Recognize(ctx context.Context, imageData []byte, contentType string, progress ProgressFunc) (*Recognition, error)
	// Close closes the recognizer and releases resources
	Close() error
}

// Normalizer defines the interface for language-model categorization. The
// returned string is the model's raw reply and must be parsed with
// ParsePayload; it is untrusted and may not be JSON at all.
type Normalizer interface {
	Categorize(ctx context.Context, text string) (string, error)
	// Close closes the normalizer and releases resources
	Close() error
}

var (
	_ Recognizer = (*Gemini)(nil)
	_ Recognizer = (*Ollama)(nil)
	_ Normalizer = (*Gemini)(nil)
	_ Normalizer = (*Ollama)(nil)
	_ Normalizer = (*OpenAI)(nil)
)
