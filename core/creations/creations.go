// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package creations stores the articles, titles, images and reviews users
generate, and the likes on published images.
*/
package creations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"codeberg.org/quickai/quickai/core/feedcache"
)

// Kind is the type of a creation.
type Kind string

const (
	KindArticle      Kind = "article"
	KindBlogTitle    Kind = "blog-title"
	KindImage        Kind = "image"
	KindResumeReview Kind = "resume-review"
)

// ErrNotFound is returned when a creation does not exist.
var ErrNotFound = errors.New("Creation not found")

// Creation is a row of the creations table.
type Creation struct {
	ID        int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string                      `gorm:"type:text;index;not null" json:"user_id"`
	Prompt    string                      `gorm:"type:text;not null" json:"prompt"`
	Content   string                      `gorm:"type:text;not null" json:"content"`
	Type      Kind                        `gorm:"type:text;not null" json:"type"`
	Publish   bool                        `gorm:"not null;default:false" json:"publish"`
	Likes     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"likes"`
	CreatedAt time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// Store reads and writes creations.
type Store struct {
	db   *gorm.DB
	feed *feedcache.Feed
}

// NewStore returns a Store on db. feed may be nil to disable caching of the
// published list.
func NewStore(db *gorm.DB, feed *feedcache.Feed) *Store {
	return &Store{db: db, feed: feed}
}

// Migrate creates or updates the creations table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Creation{}); err != nil {
		return fmt.Errorf("migrating creations: %w", err)
	}

	return nil
}

// Insert saves c and fills in its ID and timestamps.
func (s *Store) Insert(ctx context.Context, c *Creation) error {
	if c.Likes == nil {
		c.Likes = datatypes.JSONSlice[string]{}
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("inserting %s creation: %w", c.Type, err)
	}

	if c.Publish {
		s.feed.Invalidate(feedcache.PublishedKey)
	}

	return nil
}

// ListByUser returns the creations of userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Creation, error) {
	list := []Creation{}

	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("listing creations of user: %w", err)
	}

	return list, nil
}

// ListPublished returns every published creation, newest first.
func (s *Store) ListPublished(ctx context.Context) ([]Creation, error) {
	return feedcache.Load(ctx, s.feed, feedcache.PublishedKey, func(ctx context.Context) ([]Creation, error) {
		list := []Creation{}

		err := s.db.WithContext(ctx).
			Where("publish = ?", true).
			Order("created_at DESC").
			Find(&list).Error
		if err != nil {
			return nil, fmt.Errorf("listing published creations: %w", err)
		}

		return list, nil
	})
}

// ToggleLike adds userID to the likes of creation id, or removes it when
// already present. It reports whether the creation is now liked by userID.
func (s *Store) ToggleLike(ctx context.Context, id int64, userID string) (bool, error) {
	var liked bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Creation

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&c, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		if lo.Contains(c.Likes, userID) {
			c.Likes = lo.Without(c.Likes, userID)
		} else {
			c.Likes = append(c.Likes, userID)
			liked = true
		}

		return tx.Model(&c).Update("likes", c.Likes).Error
	})
	if errors.Is(err, ErrNotFound) {
		return false, ErrNotFound
	} else if err != nil {
		return false, fmt.Errorf("toggling like on creation %d: %w", id, err)
	}

	s.feed.Invalidate(feedcache.PublishedKey)

	return liked, nil
}
