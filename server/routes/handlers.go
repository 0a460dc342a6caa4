// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/creations"
	"codeberg.org/quickai/quickai/core/events"
	"codeberg.org/quickai/quickai/core/imagegen"
	"codeberg.org/quickai/quickai/core/media"
	"codeberg.org/quickai/quickai/core/quota"
	"codeberg.org/quickai/quickai/core/uploads"
)

// publishTimeout bounds the wait for the event broker after a response is ready.
const publishTimeout = 3 * time.Second

// TextGenerator writes text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ImageHost stores images and serves transformed versions of them.
type ImageHost interface {
	Upload(ctx context.Context, input media.UploadInput) (media.Asset, error)
	URL(publicID, transformation string) string
}

// CreationStore persists creations.
type CreationStore interface {
	Insert(ctx context.Context, c *creations.Creation) error
	ListByUser(ctx context.Context, userID string) ([]creations.Creation, error)
	ListPublished(ctx context.Context) ([]creations.Creation, error)
	ToggleLike(ctx context.Context, id int64, userID string) (bool, error)
}

// QuotaChecker gates features by plan and free usage.
type QuotaChecker interface {
	CheckFreeFeature(u quota.Usage) error
	CheckPremiumFeature(u quota.Usage) error
	Reserve(ctx context.Context, u quota.Usage) (quota.Refund, error)
}

// Handlers serves the API. Every field must be set except Uploads and
// Events, which may be nil.
type Handlers struct {
	Text      TextGenerator
	Images    imagegen.Provider
	Media     ImageHost
	Creations CreationStore
	Quota     QuotaChecker
	Uploads   uploads.Store
	Events    events.Publisher

	// Ping reports whether the datastore is reachable.
	Ping func(ctx context.Context) error

	ResumeMaxBytes int64
	UploadMaxBytes int64
}

// usage returns the caller resolved by the authentication middleware.
func usage(r *http.Request) (quota.Usage, error) {
	u, ok := quota.FromContext(r.Context())
	if !ok || u.UserID == "" {
		return quota.Usage{}, NewHTTPError(http.StatusUnauthorized, "Not authenticated", nil)
	}

	return u, nil
}

// bindJSON decodes the request body into obj and validates its binding
// tags. invalid is shown to the user when validation fails.
func bindJSON(r *http.Request, obj any, invalid string) error {
	if r.Body == nil {
		return badRequest("Invalid request body.", nil)
	}

	if err := json.NewDecoder(r.Body).Decode(obj); err != nil {
		return badRequest("Invalid request body.", err)
	}

	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return badRequest(invalid, err)
	}

	return nil
}

// bindForm parses a multipart form of at most h.UploadMaxBytes into obj.
// The caller must call the returned cleanup function.
func (h *Handlers) bindForm(w http.ResponseWriter, r *http.Request, obj any) (func(), error) {
	if h.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.UploadMaxBytes)
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	if err := binding.FormMultipart.Bind(r, obj); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return cleanup, NewHTTPError(http.StatusRequestEntityTooLarge, "File too large.", err)
		}

		return cleanup, badRequest("Invalid form data.", err)
	}

	return cleanup, nil
}

// readFile reads an uploaded file and archives a copy.
func (h *Handlers) readFile(ctx context.Context, fh *multipart.FileHeader) (uploads.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return uploads.Upload{}, fmt.Errorf("opening uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return uploads.Upload{}, fmt.Errorf("reading uploaded file: %w", err)
	}

	u := uploads.Upload{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}

	if h.Uploads != nil && len(data) > 0 {
		if key, err := h.Uploads.Save(ctx, u); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("filename", fh.Filename).Msg("Failed to archive upload")
		} else {
			log.Ctx(ctx).Debug().Str("key", key).Msg("Upload archived")
		}
	}

	return u, nil
}

// save stores c and announces it.
func (h *Handlers) save(ctx context.Context, c *creations.Creation) error {
	if err := h.Creations.Insert(ctx, c); err != nil {
		return internalError("Failed to save the creation.", err)
	}

	if h.Events == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := events.NewCreationEvent(c.ID, c.UserID, string(c.Type), c.Publish, c.CreatedAt)
	if err := h.Events.Publish(ctx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Int64("creation_id", c.ID).
			Msg("Failed to publish creation event")
	}

	return nil
}
