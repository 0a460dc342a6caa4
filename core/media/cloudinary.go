// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package media stores images on Cloudinary and builds delivery URLs with
AI transformations applied.
*/
package media

import (
	"context"
	"crypto/sha1" // #nosec G505 -- Cloudinary's signature scheme is SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
)

var (
	// ErrNoSecureURL is returned when an upload succeeded without a delivery URL.
	ErrNoSecureURL = errors.New("Cloudinary did not return an image URL")
	// ErrNoPublicID is returned when an upload succeeded without an asset id.
	ErrNoPublicID = errors.New("Cloudinary upload failed")
)

// BackgroundRemoval is the transformation that cuts out the subject.
const BackgroundRemoval = "e_background_removal"

// GenerativeRemove returns the transformation that erases object from a picture.
//
// The object is a single path segment, so "/", "," and ";" are escaped;
// ":" separates effect parameters and is escaped as well.
func GenerativeRemove(object string) string {
	return "e_gen_remove:prompt_" + strings.ReplaceAll(url.PathEscape(strings.TrimSpace(object)), ":", "%3A")
}

// Asset is an uploaded image.
type Asset struct {
	PublicID  string
	SecureURL string
}

// UploadInput is an image to upload, optionally transformed on the way in.
type UploadInput struct {
	Data           []byte
	Filename       string
	ContentType    string
	Transformation string
}

// Cloudinary is a signed-upload client for one cloud.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	// UploadURL is https://api.cloudinary.com unless overridden.
	UploadURL string
	// DeliveryURL is https://res.cloudinary.com unless overridden.
	DeliveryURL string
	Folder      string

	now func() time.Time
}

// Upload sends input to Cloudinary's image upload endpoint.
func (c *Cloudinary) Upload(ctx context.Context, input UploadInput) (Asset, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(now().Unix(), 10),
	}

	if c.Folder != "" {
		params["folder"] = c.Folder
	}

	if input.Transformation != "" {
		params["transformation"] = input.Transformation
	}

	fields := make(map[string]string, len(params)+2)
	for k, v := range params {
		fields[k] = v
	}

	fields["api_key"] = c.APIKey
	fields["signature"] = Sign(params, c.APISecret)

	filename := input.Filename
	if filename == "" {
		filename = "upload"
	}

	result, err := requests.JSON(ctx, requests.RequestOptions{
		Method:      http.MethodPost,
		URL:         fmt.Sprintf("%s/v1_1/%s/image/upload", strings.TrimSuffix(c.UploadURL, "/"), url.PathEscape(c.CloudName)),
		Destination: audit.ToCloudinary,
		Multipart: &requests.Multipart{
			Fields: fields,
			Files: []requests.FilePart{{
				Field:       "file",
				Filename:    filename,
				ContentType: input.ContentType,
				Data:        input.Data,
			}},
		},
	})
	if err != nil {
		return Asset{}, fmt.Errorf("cloudinary upload: %w", err)
	}

	return Asset{
		PublicID:  result.Get("public_id").String(),
		SecureURL: result.Get("secure_url").String(),
	}, nil
}

// URL builds the https delivery URL of publicID with transformation applied.
func (c *Cloudinary) URL(publicID, transformation string) string {
	var b strings.Builder

	b.WriteString(strings.TrimSuffix(c.DeliveryURL, "/"))
	b.WriteString("/")
	b.WriteString(url.PathEscape(c.CloudName))
	b.WriteString("/image/upload/")

	if transformation != "" {
		b.WriteString(transformation)
		b.WriteString("/")
	}

	b.WriteString(publicID)

	return b.String()
}

// Sign computes Cloudinary's request signature: the hex SHA-1 of the
// parameters sorted by name, joined as k=v pairs with '&', followed by secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret)) // #nosec G401

	return hex.EncodeToString(sum[:])
}
