// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package events announces new creations to other services through Kafka or
SQS. Publishing is best effort: callers log failures and carry on.
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreationCreated is the type of the event sent for every new creation.
const CreationCreated = "creation.created"

// CreationEvent describes a stored creation.
type CreationEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CreationID int64     `json:"creation_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Publish    bool      `json:"publish"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewCreationEvent returns a CreationCreated event with a fresh ID.
func NewCreationEvent(creationID int64, userID, kind string, publish bool, createdAt time.Time) CreationEvent {
	return CreationEvent{
		ID:         uuid.NewString(),
		Type:       CreationCreated,
		CreationID: creationID,
		UserID:     userID,
		Kind:       kind,
		Publish:    publish,
		CreatedAt:  createdAt.UTC(),
	}
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e CreationEvent) error
	Close() error
}

// Options select and configure a Publisher.
type Options struct {
	Backend   string
	Brokers   []string
	Topic     string
	QueueName string
}

// New returns the Publisher for opts.Backend ("none", "kafka" or "sqs").
func New(ctx context.Context, opts Options) (Publisher, error) {
	switch opts.Backend {
	case "", "none":
		return Nop{}, nil
	case "kafka":
		return NewKafka(opts.Brokers, opts.Topic), nil
	case "sqs":
		return NewSQS(ctx, opts.QueueName)
	default:
		return nil, fmt.Errorf("unknown event backend %q", opts.Backend)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, CreationEvent) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

func encode(e CreationEvent) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Type, err)
	}

	return body, nil
}
