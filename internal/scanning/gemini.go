package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini implements Recognizer and Normalizer using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Recognize transcribes the receipt. The reply is streamed so progress
// advances with every chunk that arrives.
func (g *Gemini) Recognize(ctx context.Context, imageData []byte, contentType string, progress ProgressFunc) (*Recognition, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	p := NewProgress(progress)
	p.Report(0)

	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}
	p.Report(20)

	// genai.ImageData wants the format suffix, not the MIME type
	iter := g.model.GenerateContentStream(ctx, genai.ImageData("png", pngData), genai.Text(recognizePrompt))
	p.Report(30)

	var text strings.Builder
	chunks := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("streaming content: %w", err)
		}
		text.WriteString(responseText(resp))
		chunks++
		p.Report(streamProgress(chunks))
	}
	p.Done()

	return &Recognition{Text: strings.TrimSpace(text.String())}, nil
}

// Categorize asks Gemini for the structured expense fields
func (g *Gemini) Categorize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(categorizePrompt()), genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	reply := responseText(resp)
	if reply == "" {
		return "", fmt.Errorf("no response from gemini")
	}
	return reply, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// streamProgress maps the number of streamed chunks onto 30..95
func streamProgress(chunks int) int {
	p := 30 + chunks*5
	if p > 95 {
		return 95
	}
	return p
}
