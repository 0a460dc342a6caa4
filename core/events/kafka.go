// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to a topic, keyed by user so that the events of a
// user stay ordered.
type Kafka struct {
	Writer messageWriter
}

// NewKafka returns a Kafka publisher for topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				log.Warn().Str("sys", "kafka").Msgf(msg, args...)
			}),
		},
	}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, e CreationEvent) error {
	body, err := encode(e)
	if err != nil {
		return err
	}

	err = k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "creation_id", Value: []byte(strconv.FormatInt(e.CreationID, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("writing %s event: %w", e.Type, err)
	}

	return nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.Writer.Close()
}
