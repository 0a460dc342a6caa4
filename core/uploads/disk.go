// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Disk stores uploads below Dir.
type Disk struct {
	Dir string

	now func() time.Time
}

// Save implements Store.
func (d *Disk) Save(ctx context.Context, u Upload) (string, error) {
	if len(u.Data) == 0 {
		return "", ErrEmptyUpload
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}

	key := Key(now(), u.Filename)
	dest := filepath.Join(d.Dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	if err := os.WriteFile(dest, u.Data, 0o640); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("key", key).
		Int("bytes", len(u.Data)).
		Msg("Archived upload")

	return key, nil
}
