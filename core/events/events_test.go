// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var created = time.Date(2025, 3, 9, 12, 0, 0, 0, time.FixedZone("CET", 3600))

func TestNewCreationEvent(t *testing.T) {
	t.Parallel()

	e := NewCreationEvent(7, "user_1", "image", true, created)

	assert.Len(t, e.ID, 36)
	assert.Equal(t, CreationCreated, e.Type)
	assert.Equal(t, time.UTC, e.CreatedAt.Location())

	body, err := json.Marshal(e)
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, int64(7), parsed.Get("creation_id").Int())
	assert.Equal(t, "user_1", parsed.Get("user_id").String())
	assert.Equal(t, "image", parsed.Get("kind").String())
	assert.True(t, parsed.Get("publish").Bool())
	assert.Equal(t, "2025-03-09T11:00:00Z", parsed.Get("created_at").String())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}

	f.msgs = append(f.msgs, msgs...)

	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true

	return nil
}

func TestKafkaPublish(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	pub := &Kafka{Writer: w}

	require.NoError(t, pub.Publish(context.Background(), NewCreationEvent(3, "user_9", "article", false, created)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "user_9", string(msg.Key))
	assert.Equal(t, int64(3), gjson.GetBytes(msg.Value, "creation_id").Int())
	assert.Equal(t, kafka.Header{Key: "creation_id", Value: []byte("3")}, msg.Headers[1])

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, pub.Publish(context.Background(), NewCreationEvent(4, "user_9", "article", false, created)), "leader not available")
}

type fakeSQS struct {
	input *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in

	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublish(t *testing.T) {
	t.Parallel()

	client := &fakeSQS{}
	pub := &SQS{Client: client, QueueURL: "https://sqs.eu-west-1.amazonaws.com/1/quickai"}

	require.NoError(t, pub.Publish(context.Background(), NewCreationEvent(11, "user_2", "resume-review", false, created)))

	assert.Equal(t, pub.QueueURL, aws.ToString(client.input.QueueUrl))
	assert.Equal(t, "resume-review", gjson.Get(aws.ToString(client.input.MessageBody), "kind").String())
	assert.Equal(t, CreationCreated, aws.ToString(client.input.MessageAttributes["type"].StringValue))
}

func TestNew(t *testing.T) {
	t.Parallel()

	pub, err := New(context.Background(), Options{Backend: "none"})
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), CreationEvent{}))

	pub, err = New(context.Background(), Options{Backend: "kafka", Brokers: []string{"localhost:9092"}, Topic: "quickai.creations"})
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, pub)
	assert.NoError(t, pub.Close())

	_, err = New(context.Background(), Options{Backend: "sqs"})
	assert.ErrorIs(t, err, ErrNoQueue)

	_, err = New(context.Background(), Options{Backend: "nats"})
	assert.Error(t, err)
}
