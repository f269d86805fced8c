package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"ai-image-editor-backend/internal/inference"
)

// ContentGenerator is the part of *genai.Models the client uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models  ContentGenerator
	model   string
	fetcher inference.Fetcher
}

func NewClient(ctx context.Context, apiKey, model string, fetcher inference.Fetcher) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return NewClientWithGenerator(client.Models, model, fetcher), nil
}

func NewClientWithGenerator(models ContentGenerator, model string, fetcher inference.Fetcher) *Client {
	return &Client{
		models:  models,
		model:   model,
		fetcher: fetcher,
	}
}

func (c *Client) Name() string {
	return "gemini:" + c.model
}

// Generate sends the source image inline with the instruction. Gemini answers
// with inline image parts, so the result is always the inline shape or
// Unrecognized.
func (c *Client) Generate(ctx context.Context, req inference.Request) (inference.Output, error) {
	source, contentType, err := c.fetcher.Fetch(ctx, req.ImageURL)
	if err != nil {
		return inference.Output{}, fmt.Errorf("failed to read source image: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.Prompt},
			{InlineData: &genai.Blob{Data: source, MIMEType: inference.DetectContentType(source, contentType)}},
		},
	}}

	result, err := c.models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return inference.Output{}, fmt.Errorf("failed to generate content: %w", err)
	}

	return DecodeResponse(result), nil
}

// DecodeResponse returns the first inline image part of the first candidate.
func DecodeResponse(result *genai.GenerateContentResponse) inference.Output {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return inference.Unrecognized("no candidates")
	}

	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return inference.Inline(part.InlineData.Data, part.InlineData.MIMEType)
		}
		if part.Text != "" {
			text = part.Text
		}
	}

	return inference.Unrecognized("no image part; text: " + text)
}
