// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
)

const clipdropTextToImagePath = "/text-to-image/v1"

// Clipdrop calls ClipDrop's text-to-image API.
type Clipdrop struct {
	APIKey string
	// BaseURL is https://clipdrop-api.co unless overridden.
	BaseURL string
}

// Generate implements Provider.
func (c *Clipdrop) Generate(ctx context.Context, prompt string) (Image, error) {
	resp, body, err := requests.Do(ctx, requests.RequestOptions{
		Method:      http.MethodPost,
		URL:         strings.TrimSuffix(c.BaseURL, "/") + clipdropTextToImagePath,
		Destination: audit.ToClipdrop,
		Header:      http.Header{"X-Api-Key": []string{c.APIKey}},
		Multipart:   &requests.Multipart{Fields: map[string]string{"prompt": prompt}},
	})
	if err != nil {
		return Image{}, fmt.Errorf("clipdrop: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode >= http.StatusBadRequest || !strings.HasPrefix(contentType, "image/") {
		return Image{}, &UpstreamError{
			Provider:   "Clipdrop",
			StatusCode: resp.StatusCode,
			Details:    string(body),
		}
	}

	if len(body) == 0 {
		return Image{}, ErrNoImage
	}

	return Image{Data: body, ContentType: contentType}, nil
}
