package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"google.golang.org/genai"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// DefaultGeminiModel is used when Gemini.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

const transcribePrompt = `Transcribe this bank statement page as plain text.
Keep every table row on a single line with its columns in the printed order,
separated by at least two spaces. Copy dates and amounts exactly as printed.
Do not summarise, translate or add commentary. Do not use markdown.`

// Gemini transcribes page images with a Gemini model.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini OCR engine. An empty model selects DefaultGeminiModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Recognize(ctx context.Context, img image.Image) (string, models.ExtractionMethod, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", models.MethodOCRGemini, fmt.Errorf("gemini: encoding page image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: buf.Bytes()}},
			},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", models.MethodOCRGemini, fmt.Errorf("gemini: generate content: %w", err)
	}
	text := stripFences(resp.Text())
	if text == "" {
		return "", models.MethodOCRGemini, fmt.Errorf("gemini: empty response from model")
	}
	return text, models.MethodOCRGemini, nil
}

// stripFences removes a markdown code fence the model may add anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i != -1 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
