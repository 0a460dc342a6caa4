// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/quickai/quickai/core/creations"
	"codeberg.org/quickai/quickai/core/events"
	"codeberg.org/quickai/quickai/core/identity"
	"codeberg.org/quickai/quickai/core/imagegen"
	"codeberg.org/quickai/quickai/core/media"
	"codeberg.org/quickai/quickai/core/quota"
	"codeberg.org/quickai/quickai/core/uploads"
)

const testFreeLimit = 10

type handlerFunc = func(http.ResponseWriter, *http.Request) error

var (
	freeUser    = quota.Usage{Principal: identity.Principal{UserID: "user_free", Plan: identity.PlanFree}, FreeUsage: 3}
	exhausted   = quota.Usage{Principal: identity.Principal{UserID: "user_free", Plan: identity.PlanFree}, FreeUsage: testFreeLimit}
	premiumUser = quota.Usage{Principal: identity.Principal{UserID: "user_premium", Plan: identity.PlanPremium}}

	errUpstream = errors.New("upstream unavailable")
)

type fakeText struct {
	reply     string
	err       error
	prompts   []string
	maxTokens []int
}

func (f *fakeText) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.maxTokens = append(f.maxTokens, maxTokens)

	return f.reply, f.err
}

type fakeImages struct {
	img     imagegen.Image
	err     error
	prompts []string
}

func (f *fakeImages) Generate(_ context.Context, prompt string) (imagegen.Image, error) {
	f.prompts = append(f.prompts, prompt)

	return f.img, f.err
}

type fakeHost struct {
	asset  media.Asset
	err    error
	inputs []media.UploadInput
}

func (f *fakeHost) Upload(_ context.Context, input media.UploadInput) (media.Asset, error) {
	f.inputs = append(f.inputs, input)

	return f.asset, f.err
}

func (f *fakeHost) URL(publicID, transformation string) string {
	return "https://res.example.com/demo/image/upload/" + transformation + "/" + publicID
}

type fakeStore struct {
	items     []creations.Creation
	insertErr error
	listErr   error
}

func (f *fakeStore) Insert(_ context.Context, c *creations.Creation) error {
	if f.insertErr != nil {
		return f.insertErr
	}

	c.ID = int64(len(f.items) + 1)
	c.CreatedAt = time.Now()
	f.items = append(f.items, *c)

	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]creations.Creation, error) {
	var out []creations.Creation

	for _, c := range f.items {
		if c.UserID == userID {
			out = append(out, c)
		}
	}

	return out, f.listErr
}

func (f *fakeStore) ListPublished(context.Context) ([]creations.Creation, error) {
	var out []creations.Creation

	for _, c := range f.items {
		if c.Publish {
			out = append(out, c)
		}
	}

	return out, f.listErr
}

func (f *fakeStore) ToggleLike(_ context.Context, id int64, userID string) (bool, error) {
	for i := range f.items {
		c := &f.items[i]
		if c.ID != id {
			continue
		}

		if idx := slices.Index(c.Likes, userID); idx >= 0 {
			c.Likes = slices.Delete(c.Likes, idx, idx+1)

			return false, nil
		}

		c.Likes = append(c.Likes, userID)

		return true, nil
	}

	return false, creations.ErrNotFound
}

type fakeQuota struct {
	reserved   int
	refunded   int
	reserveErr error
	refundErr  error
}

func (f *fakeQuota) CheckFreeFeature(u quota.Usage) error {
	if !u.IsPremium() && u.FreeUsage >= testFreeLimit {
		return quota.ErrLimitReached
	}

	return nil
}

func (f *fakeQuota) CheckPremiumFeature(u quota.Usage) error {
	if !u.IsPremium() {
		return quota.ErrPremiumOnly
	}

	return nil
}

func (f *fakeQuota) Reserve(context.Context, quota.Usage) (quota.Refund, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}

	f.reserved++

	return func(context.Context) error {
		f.refunded++

		return f.refundErr
	}, nil
}

type fakeUploads struct {
	saved []uploads.Upload
}

func (f *fakeUploads) Save(_ context.Context, u uploads.Upload) (string, error) {
	f.saved = append(f.saved, u)

	return fmt.Sprintf("uploads/%d-%s", len(f.saved), u.Filename), nil
}

type fakeEvents struct {
	published []events.CreationEvent
	err       error
}

func (f *fakeEvents) Publish(_ context.Context, e events.CreationEvent) error {
	f.published = append(f.published, e)

	return f.err
}

func (f *fakeEvents) Close() error { return nil }

type fixture struct {
	h       *Handlers
	text    *fakeText
	images  *fakeImages
	host    *fakeHost
	store   *fakeStore
	quota   *fakeQuota
	uploads *fakeUploads
	events  *fakeEvents
}

func newFixture() *fixture {
	f := &fixture{
		text:    &fakeText{reply: "generated text"},
		images:  &fakeImages{img: imagegen.Image{Data: []byte("png"), ContentType: "image/png"}},
		host:    &fakeHost{asset: media.Asset{PublicID: "quickai/abc123", SecureURL: "https://res.example.com/demo/image/upload/quickai/abc123.png"}},
		store:   &fakeStore{},
		quota:   &fakeQuota{},
		uploads: &fakeUploads{},
		events:  &fakeEvents{},
	}

	f.h = &Handlers{
		Text:           f.text,
		Images:         f.images,
		Media:          f.host,
		Creations:      f.store,
		Quota:          f.quota,
		Uploads:        f.uploads,
		Events:         f.events,
		ResumeMaxBytes: 5 * 1024 * 1024,
		UploadMaxBytes: 10 * 1024 * 1024,
	}

	return f
}

func withUsage(r *http.Request, u *quota.Usage) *http.Request {
	if u == nil {
		return r
	}

	return r.WithContext(quota.WithUsage(r.Context(), *u))
}

func jsonRequest(target, body string, u *quota.Usage) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	return withUsage(r, u)
}

type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, target string, files []formFile, fields map[string]string, u *quota.Usage) *http.Request {
	t.Helper()

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)

	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}

	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
		header.Set("Content-Type", file.contentType)

		part, err := mw.CreatePart(header)
		require.NoError(t, err)

		_, err = io.Copy(part, bytes.NewReader(file.data))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, target, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	return withUsage(r, u)
}

func assertHTTPError(t *testing.T, err error, statusCode int, message string) {
	t.Helper()

	var httpErr *HTTPError

	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, statusCode, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, message)
}
