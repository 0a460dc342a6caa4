// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"codeberg.org/quickai/quickai/config"
)

// savedBucket is the on-disk form of a bucket. Token counts are not kept,
// so restored buckets start full.
type savedBucket struct {
	Key      string    `json:"key"`
	LastSeen time.Time `json:"last_seen"`
	Rate     float64   `json:"rate"`
	Burst    int       `json:"burst"`
}

// Save writes every bucket to w as an indented JSON array.
func Save(w io.Writer) error {
	saved := []savedBucket{}

	buckets.Range(func(_, value any) bool {
		b, ok := value.(*bucket)
		if !ok {
			return true
		}

		b.mu.Lock()
		saved = append(saved, savedBucket{
			Key:      b.key,
			LastSeen: b.lastSeen,
			Rate:     float64(b.tokens.Limit()),
			Burst:    b.tokens.Burst(),
		})
		b.mu.Unlock()

		return true
	})

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(saved); err != nil {
		return fmt.Errorf("encode limiter state: %w", err)
	}

	log.Info().Int("count", len(saved)).Msg("Saved limiter state")

	return nil
}

// Load replaces the in-memory buckets with those read from r. An empty
// input keeps the current state.
func Load(r io.Reader) error {
	var saved []savedBucket

	if err := json.NewDecoder(r).Decode(&saved); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return fmt.Errorf("decode limiter state: %w", err)
	}

	buckets.Clear()

	for _, s := range saved {
		if s.Key == "" {
			continue
		}

		buckets.Store(s.Key, newBucket(s.Key, rate.Limit(s.Rate), s.Burst, s.LastSeen))
	}

	log.Info().Int("count", len(saved)).Msg("Loaded limiter state")

	return nil
}

// Init restores the state file, if there is one. Any failure leaves the
// limiter with a fresh state.
func Init() {
	path := config.Global.Limiter.StateFilepath

	file, err := os.Open(path) // #nosec:G304
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("file", path).Msg("No limiter state file, starting fresh")

		return
	} else if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Could not open limiter state file, starting fresh")

		return
	}
	defer file.Close()

	if err := Load(file); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Could not read limiter state file, starting fresh")
	}
}

// Fini writes the state file.
func Fini() error {
	path := config.Global.Limiter.StateFilepath

	file, err := os.Create(path) // #nosec:G304
	if err != nil {
		return fmt.Errorf("create limiter state file: %w", err)
	}

	if err := Save(file); err != nil {
		_ = file.Close()

		return err
	}

	return file.Close()
}
