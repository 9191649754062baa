package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Recognizer and Normalizer using a local Ollama server.
// Recognition needs a vision model (llava, qwen2-vl, ...); categorization
// works with any instruction-following text model.
type Ollama struct {
	baseURL     string
	visionModel string
	textModel   string
	client      *http.Client
}

// NewOllama creates a new Ollama instance
func NewOllama(baseURL, visionModel, textModel string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if visionModel == "" {
		visionModel = "llava"
	}
	if textModel == "" {
		textModel = "llama3.1"
	}

	return &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		visionModel: visionModel,
		textModel:   textModel,
		client: &http.Client{
			Timeout: 5 * time.Minute, // vision models are slow on CPU
		},
	}, nil
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatRequest is the body of /api/chat
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// ollamaChatChunk is one line of a streamed /api/chat reply
type ollamaChatChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

// ollamaGenerateRequest is the body of /api/generate
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Recognize transcribes the receipt with the vision model. The chat reply
// is streamed as NDJSON and progress advances per chunk.
func (o *Ollama) Recognize(ctx context.Context, imageData []byte, contentType string, progress ProgressFunc) (*Recognition, error) {
	p := NewProgress(progress)
	p.Report(0)

	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}
	p.Report(20)

	reqBody := ollamaChatRequest{
		Model:  o.visionModel,
		Stream: true,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an OCR engine. You output the text found in images and nothing else.",
			},
			{
				Role:    "user",
				Content: recognizePrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	resp, err := o.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	p.Report(30)

	var text strings.Builder
	dec := json.NewDecoder(resp.Body)
	chunks := 0
	for {
		var chunk ollamaChatChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding stream: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama stream error: %s", chunk.Error)
		}
		text.WriteString(chunk.Message.Content)
		chunks++
		p.Report(streamProgress(chunks))
		if chunk.Done {
			break
		}
	}
	p.Done()

	return &Recognition{Text: strings.TrimSpace(text.String())}, nil
}

// Categorize asks the text model for the structured expense fields in JSON mode
func (o *Ollama) Categorize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := o.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:   o.textModel,
		System:  categorizePrompt(),
		Prompt:  text,
		Stream:  false,
		Format:  "json",
		Options: &ollamaOptions{Temperature: 0},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if genResp.Response == "" {
		return "", fmt.Errorf("ollama returned empty response")
	}
	return genResp.Response, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}

func (o *Ollama) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}
