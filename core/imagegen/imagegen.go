// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package imagegen turns prompts into images.

Two providers exist: ClipDrop's text-to-image endpoint and Gemini's image
capable models.
*/
package imagegen

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoImage is returned when a provider answered without image data.
var ErrNoImage = errors.New("no image data returned from model")

// Image is a generated picture.
type Image struct {
	Data        []byte
	ContentType string
}

// Provider generates one image for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (Image, error)
}

// UpstreamError is a provider reply that was not an image.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Details    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error (status code: %d): %s", e.Provider, e.StatusCode, e.Details)
}
