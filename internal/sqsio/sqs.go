// Package sqsio wraps the SQS operations the pipeline stages use.
package sqsio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the slice of the SQS client the stages need.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue binds a client to one queue URL.
type Queue struct {
	Client API
	URL    string
}

// SendJSON marshals v and enqueues it as a single message.
func (q *Queue) SendJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	body := string(b)
	_, err = q.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.URL,
		MessageBody: &body,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Delete acknowledges a consumed message by receipt handle.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.URL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
