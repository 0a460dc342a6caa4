// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package imagegen

import (
	"context"

	"google.golang.org/genai"
)

// ContentGenerator is the part of textgen.Generator the Gemini provider needs.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Gemini asks an image capable Gemini model for a picture.
type Gemini struct {
	Generator ContentGenerator
	Model     string
}

// Generate implements Provider. The first inline image part wins.
func (g *Gemini) Generate(ctx context.Context, prompt string) (Image, error) {
	resp, err := g.Generator.GenerateContent(ctx, g.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return Image{}, err
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return Image{}, ErrNoImage
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			contentType := part.InlineData.MIMEType
			if contentType == "" {
				contentType = "image/png"
			}

			return Image{Data: part.InlineData.Data, ContentType: contentType}, nil
		}
	}

	return Image{}, ErrNoImage
}
