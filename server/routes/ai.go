// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/creations"
	"codeberg.org/quickai/quickai/core/imagegen"
	"codeberg.org/quickai/quickai/core/media"
	"codeberg.org/quickai/quickai/core/quota"
	"codeberg.org/quickai/quickai/core/resume"
	"codeberg.org/quickai/quickai/core/textgen"
)

const (
	defaultArticleLength = 800
	blogTitleMaxTokens   = 100
	resumeMaxTokens      = 1000
)

type articleRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Length int    `json:"length" binding:"omitempty,min=1,max=4096"`
	// Older clients misspell the field.
	Lenght int `json:"lenght" binding:"omitempty,min=1,max=4096"`
}

type blogTitleRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type imageRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	Publish bool   `json:"publish"`
}

type imageForm struct {
	Image  *multipart.FileHeader `form:"image"`
	Object string                `form:"object"`
}

type resumeForm struct {
	Resume *multipart.FileHeader `form:"resume"`
}

// GenerateArticle writes an article of about the requested length.
func (h *Handlers) GenerateArticle(w http.ResponseWriter, r *http.Request) error {
	var req articleRequest
	if err := bindJSON(r, &req, "A prompt and a length between 1 and 4096 are required."); err != nil {
		return err
	}

	length := cmp.Or(req.Length, req.Lenght, defaultArticleLength)

	return h.generateText(w, r, strings.TrimSpace(req.Prompt), length, creations.KindArticle)
}

// GenerateBlogTitle suggests titles for a topic.
func (h *Handlers) GenerateBlogTitle(w http.ResponseWriter, r *http.Request) error {
	var req blogTitleRequest
	if err := bindJSON(r, &req, "A prompt is required."); err != nil {
		return err
	}

	return h.generateText(w, r, strings.TrimSpace(req.Prompt), blogTitleMaxTokens, creations.KindBlogTitle)
}

// generateText runs a free-tier text generation and charges it.
func (h *Handlers) generateText(
	w http.ResponseWriter,
	r *http.Request,
	prompt string,
	maxTokens int,
	kind creations.Kind,
) error {
	ctx := r.Context()

	u, err := usage(r)
	if err != nil {
		return err
	}

	if prompt == "" {
		return badRequest("A prompt is required.", nil)
	}

	if err := h.Quota.CheckFreeFeature(u); err != nil {
		return reject(w, err)
	}

	refund, err := h.Quota.Reserve(ctx, u)
	if errors.Is(err, quota.ErrLimitReached) {
		return reject(w, err)
	} else if err != nil {
		return internalError("Failed to check usage.", err)
	}

	text, err := h.Text.Generate(ctx, prompt, maxTokens)
	if err != nil {
		giveBack(ctx, refund, u.UserID)

		return generationError(err)
	}

	c := &creations.Creation{UserID: u.UserID, Prompt: prompt, Content: text, Type: kind}
	if err := h.save(ctx, c); err != nil {
		giveBack(ctx, refund, u.UserID)

		return err
	}

	return content(w, text)
}

// giveBack returns a reserved generation the caller did not get.
func giveBack(ctx context.Context, refund quota.Refund, userID string) {
	if err := refund(context.WithoutCancel(ctx)); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("Failed to refund free usage")
	}
}

// GenerateImage draws an image for a prompt and hosts it.
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	u, err := usage(r)
	if err != nil {
		return err
	}

	if err := h.Quota.CheckPremiumFeature(u); err != nil {
		return reject(w, err)
	}

	var req imageRequest
	if err := bindJSON(r, &req, "A prompt is required."); err != nil {
		return err
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return badRequest("A prompt is required.", nil)
	}

	img, err := h.Images.Generate(ctx, prompt)
	if err != nil {
		var upstream *imagegen.UpstreamError
		if errors.As(err, &upstream) {
			if writeErr := WriteJSON(w, http.StatusInternalServerError, UpstreamErrorResponse{
				Success: false,
				Error:   upstream.Provider + " error",
				Details: upstream.Details,
			}); writeErr != nil {
				return writeErr
			}

			return err
		}

		return internalError("Image generation failed.", err)
	}

	asset, err := h.Media.Upload(ctx, media.UploadInput{
		Data:        img.Data,
		Filename:    "generated" + extension(img.ContentType),
		ContentType: img.ContentType,
	})
	if err != nil {
		return internalError("Image upload failed.", err)
	}

	if asset.SecureURL == "" {
		return internalError("Cloudinary did not return an image URL.", media.ErrNoSecureURL)
	}

	c := &creations.Creation{
		UserID:  u.UserID,
		Prompt:  prompt,
		Content: asset.SecureURL,
		Type:    creations.KindImage,
		Publish: req.Publish,
	}
	if err := h.save(ctx, c); err != nil {
		return err
	}

	return content(w, asset.SecureURL)
}

// RemoveImageBackground cuts the subject out of an uploaded image.
func (h *Handlers) RemoveImageBackground(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	u, err := usage(r)
	if err != nil {
		return err
	}

	if err := h.Quota.CheckPremiumFeature(u); err != nil {
		return reject(w, err)
	}

	var form imageForm

	cleanup, err := h.bindForm(w, r, &form)
	defer cleanup()

	if err != nil {
		return err
	}

	if form.Image == nil {
		return badRequest("No image file provided.", nil)
	}

	upload, err := h.readFile(ctx, form.Image)
	if err != nil {
		return badRequest("No image file provided.", err)
	}

	asset, err := h.Media.Upload(ctx, media.UploadInput{
		Data:           upload.Data,
		Filename:       upload.Filename,
		ContentType:    upload.ContentType,
		Transformation: media.BackgroundRemoval,
	})
	if err != nil {
		return internalError("Image upload failed.", err)
	}

	if asset.SecureURL == "" {
		return internalError("Cloudinary did not return an image URL.", media.ErrNoSecureURL)
	}

	c := &creations.Creation{
		UserID:  u.UserID,
		Prompt:  "Remove background from image",
		Content: asset.SecureURL,
		Type:    creations.KindImage,
	}
	if err := h.save(ctx, c); err != nil {
		return err
	}

	return content(w, asset.SecureURL)
}

// RemoveImageObject erases a named object from an uploaded image.
func (h *Handlers) RemoveImageObject(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	u, err := usage(r)
	if err != nil {
		return err
	}

	if err := h.Quota.CheckPremiumFeature(u); err != nil {
		return reject(w, err)
	}

	var form imageForm

	cleanup, err := h.bindForm(w, r, &form)
	defer cleanup()

	if err != nil {
		return err
	}

	if form.Image == nil {
		return badRequest("No image file provided.", nil)
	}

	object := strings.TrimSpace(form.Object)
	if object == "" {
		return badRequest("Describe the object to remove.", nil)
	}

	upload, err := h.readFile(ctx, form.Image)
	if err != nil {
		return badRequest("No image file provided.", err)
	}

	asset, err := h.Media.Upload(ctx, media.UploadInput{
		Data:        upload.Data,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
	})
	if err != nil {
		return internalError("Image upload failed.", err)
	}

	if asset.PublicID == "" {
		return internalError("Cloudinary upload failed.", media.ErrNoPublicID)
	}

	imageURL := h.Media.URL(asset.PublicID, media.GenerativeRemove(object))

	c := &creations.Creation{
		UserID:  u.UserID,
		Prompt:  fmt.Sprintf("Removed %s from image", object),
		Content: imageURL,
		Type:    creations.KindImage,
	}
	if err := h.save(ctx, c); err != nil {
		return err
	}

	return content(w, imageURL)
}

// ResumeReview critiques an uploaded PDF resume.
func (h *Handlers) ResumeReview(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	u, err := usage(r)
	if err != nil {
		return err
	}

	if err := h.Quota.CheckPremiumFeature(u); err != nil {
		return reject(w, err)
	}

	var form resumeForm

	cleanup, err := h.bindForm(w, r, &form)
	defer cleanup()

	if err != nil {
		return err
	}

	if form.Resume == nil {
		return badRequest("No resume file provided.", nil)
	}

	if h.ResumeMaxBytes > 0 && form.Resume.Size > h.ResumeMaxBytes {
		return WriteError(w, http.StatusOK,
			fmt.Sprintf("Resume file size exceeds allowed size (%s).", formatMB(h.ResumeMaxBytes)))
	}

	upload, err := h.readFile(ctx, form.Resume)
	if err != nil {
		return badRequest("No resume file provided.", err)
	}

	text, err := resume.ExtractText(upload.Data)
	if err != nil {
		return badRequest("Uploaded resume appears to be empty or unreadable.", err)
	}

	review, err := h.Text.Generate(ctx, resume.Prompt(text), resumeMaxTokens)
	if err != nil {
		return generationError(err)
	}

	c := &creations.Creation{
		UserID:  u.UserID,
		Prompt:  "Review the uploaded resume",
		Content: review,
		Type:    creations.KindResumeReview,
	}
	if err := h.save(ctx, c); err != nil {
		return err
	}

	return content(w, review)
}

func generationError(err error) error {
	if errors.Is(err, textgen.ErrEmptyResponse) {
		return internalError("AI did not return any content.", err)
	}

	return internalError("Text generation failed.", err)
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func formatMB(n int64) string {
	const mb = 1024 * 1024

	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}

	return fmt.Sprintf("%.1fMB", float64(n)/mb)
}
