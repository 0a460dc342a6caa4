// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package uploads archives the files users upload before they are sent to
the image service.

Files are stored under keys of the form "yyyy/mm/dd/<uuid>-<name>", either
in a local directory or in an S3 bucket.
*/
package uploads

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyUpload = errors.New("upload has no content")

// Upload is a file received from a user.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Store saves uploads and returns the key they were stored under.
type Store interface {
	Save(ctx context.Context, u Upload) (string, error)
}

// Options select and configure a Store.
type Options struct {
	Backend string
	Dir     string
	Bucket  string
	Prefix  string
}

// New returns the Store for opts.Backend ("disk" or "s3").
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "disk":
		return &Disk{Dir: opts.Dir}, nil
	case "s3":
		return NewS3(ctx, opts.Bucket, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown upload backend %q", opts.Backend)
	}
}

// Key returns a fresh storage key for a file named filename received at t.
func Key(t time.Time, filename string) string {
	return t.UTC().Format("2006/01/02") + "/" + uuid.NewString() + "-" + sanitize(filename)
}

const maxNameLength = 100

func sanitize(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))

	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)

	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLength {
		name = name[len(name)-maxNameLength:]
	}

	if name == "" || name == "_" {
		return "upload"
	}

	return name
}
