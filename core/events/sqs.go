// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/requests"
)

var ErrNoQueue = errors.New("no SQS queue configured")

type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS sends events to a queue.
type SQS struct {
	Client   sendMessageAPI
	QueueURL string
}

// NewSQS resolves the URL of queueName with the default AWS configuration
// chain.
func NewSQS(ctx context.Context, queueName string) (*SQS, error) {
	if queueName == "" {
		return nil, ErrNoQueue
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(requests.NewClient(audit.ToBroker)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := sqs.NewFromConfig(cfg)

	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("resolving queue %s: %w", queueName, err)
	}

	return &SQS{Client: client, QueueURL: aws.ToString(resp.QueueUrl)}, nil
}

// Publish implements Publisher.
func (s *SQS) Publish(ctx context.Context, e CreationEvent) error {
	body, err := encode(e)
	if err != nil {
		return err
	}

	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sending %s event: %w", e.Type, err)
	}

	return nil
}

// Close implements Publisher. The SQS client holds no resources.
func (s *SQS) Close() error {
	return nil
}
