package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/receipt-validator/internal/logger"
	"google.golang.org/genai"
)

// GeminiReceiptExtractor is the ReceiptExtractor backed by a Gemini vision model.
// The genai client is created once and shared across calls.
type GeminiReceiptExtractor struct {
	client *genai.Client
	model  string
	now    func() time.Time
}

// NewGeminiClient creates the genai client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// NewGeminiReceiptExtractor creates an extractor using model, or DefaultModelName when empty.
func NewGeminiReceiptExtractor(client *genai.Client, model string) *GeminiReceiptExtractor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiReceiptExtractor{client: client, model: model, now: time.Now}
}

// Extract sends the image with the receipt instructions and schema, then
// transforms the model JSON into a TransactionRecord. No retry is attempted.
func (g *GeminiReceiptExtractor) Extract(ctx context.Context, image []byte) (*ExtractionResult, error) {
	mimeType, err := sniffImageType(image)
	if err != nil {
		return nil, newExtractionError(err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildReceiptPrompt()},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   receiptSchema(),
		Temperature:      genai.Ptr[float32](0),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, newExtractionError(fmt.Errorf("generate content: %w", err))
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, newExtractionError(errors.New("empty response from model"))
	}

	clean := cleanModelJSON(rawText)
	record, err := parseModelOutput(ctx, clean)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Str("raw_response", rawText).Msg("model output rejected")
		return nil, err
	}

	return &ExtractionResult{
		Record:      record,
		RawOutput:   clean,
		Model:       g.model,
		ExtractedAt: g.now().UTC(),
	}, nil
}

// sniffImageType detects the MIME type of image and rejects non-images.
func sniffImageType(image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	mimeType := http.DetectContentType(image)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("unsupported image type %q", mimeType)
	}
	return mimeType, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost JSON object if there is prose around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
