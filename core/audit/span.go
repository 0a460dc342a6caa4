// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path"
	"runtime/trace"
	"strconv"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog/log"
)

// Span represents an HTTP request in flight, either served to a user or sent upstream.
type Span struct {
	// only these fields are set automatically
	task     *trace.Task
	start    time.Time
	duration time.Duration
	metric   *servertiming.Metric

	Destination TrafficDestination
	RequestID   string
	Method      string
	URL         string
	StatusCode  int
	Error       error
	Body        []byte // Body is not logged as is; only for response saving
}

// TrafficDestination describes the logical destination of an HTTP request.
type TrafficDestination string

// Constants for traffic destinations.
const (
	ToUser       TrafficDestination = "user"
	ToGemini     TrafficDestination = "gemini"
	ToClipdrop   TrafficDestination = "clipdrop"
	ToCloudinary TrafficDestination = "cloudinary"
	ToIdentity   TrafficDestination = "identity"
	ToStorage    TrafficDestination = "storage"
	ToBroker     TrafficDestination = "broker"

	responseFilePermissions = 0o600
)

var (
	// SaveResponses indicates whether to save upstream response bodies to storage.
	SaveResponses bool

	// ResponseDirectory is the directory where response bodies are saved.
	ResponseDirectory string
)

func (span Span) ServerTimingName() string {
	// base64 without trailing '=' to match the header token syntax
	return string(span.Destination) + "$" + span.Method + "$" + base64.RawURLEncoding.EncodeToString([]byte(span.URL))
}

func (span *Span) Begin(ctx context.Context) context.Context {
	span.start = time.Now()

	ctx, span.task = trace.NewTask(ctx, "http."+string(span.Destination))
	if servertimingContext := servertiming.FromContext(ctx); servertimingContext != nil {
		span.metric = servertimingContext.NewMetric(span.ServerTimingName())
		span.metric.Extra = make(map[string]string)
		span.metric.Extra["start"] = strconv.FormatFloat(float64(span.start.UnixNano())/float64(time.Millisecond), 'f', -1, 64)
	}

	return ctx
}

// End stops the span clock. Calling it more than once is harmless.
func (span *Span) End() {
	if span.task != nil {
		span.duration = time.Since(span.start)
		span.task.End()

		if span.metric != nil {
			span.metric.Duration = span.duration
		}

		span.task = nil
	}
}

// Duration reports how long the span ran. Zero until End is called.
func (span Span) Duration() time.Duration {
	return span.duration
}

// Log logs the span at debug level, or at warn level when it failed.
// Failed upstream responses are saved first when SaveResponses is set.
func (span Span) Log() {
	filename := span.saveResponse()

	event := log.Debug()
	if span.failed() {
		event = log.Warn()
	}

	event = event.
		Str("sys", "http").
		Str("destination", string(span.Destination)).
		Str("request_id", span.RequestID).
		Str("method", span.Method).
		Str("url", span.URL).
		Int("status_code", span.StatusCode).
		Str("len", humanizeSize(len(span.Body))).
		Dur("dur", span.duration)

	if filename != "" {
		event = event.Str("response_filename", filename)
	}

	event.Err(span.Error).Send()
}

// failed reports an upstream call that errored or a request answered with a
// server error.
func (span Span) failed() bool {
	if span.Destination == ToUser {
		return span.StatusCode >= http.StatusInternalServerError
	}

	return span.Error != nil
}

// saveResponse dumps an upstream body to ResponseDirectory and returns the
// file name, or "" when nothing was saved.
func (span Span) saveResponse() string {
	if !SaveResponses || span.Destination == ToUser || len(span.Body) == 0 {
		return ""
	}

	filename := path.Join(ResponseDirectory, string(span.Destination)+"-"+span.RequestID)

	if err := os.WriteFile(filename, span.Body, responseFilePermissions); err != nil {
		log.Err(err).Str("request_id", span.RequestID).Msg("Failed to save response")

		return ""
	}

	return filename
}

var sizeUnits = []string{"K", "M", "G"}

// humanizeSize formats a byte count with a binary unit suffix.
func humanizeSize(x int) string {
	if x < 1024 {
		return strconv.Itoa(x)
	}

	size := float64(x)
	unit := ""

	for _, u := range sizeUnits {
		if size < 1024 {
			break
		}

		size /= 1024
		unit = u
	}

	return fmt.Sprintf("%.2f%s", size, unit)
}
