package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
)

const (
	// DefaultWaitSeconds is the SQS long-poll maximum.
	DefaultWaitSeconds = 20

	maxMessages = 1
)

var (
	// ErrQueueUnavailable wraps every receive or delete failure.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrStaleReceipt is additionally wrapped when the receipt handle is no longer valid,
	// usually because the visibility timeout expired and the message was handed out again.
	ErrStaleReceipt = errors.New("stale receipt handle")
)

// Message is one received SQS message, valid for a single processing attempt.
type Message struct {
	ID                string
	Body              string
	ReceiptHandle     string
	Attributes        map[string]string
	MessageAttributes map[string]string
}

// ReceiveCount returns ApproximateReceiveCount, or "" when SQS did not send it.
func (m Message) ReceiveCount() string {
	return m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
}

// Client long-polls one queue.
type Client struct {
	api      aws.SQSAPI
	queueURL string
	wait     int32
	log      zerolog.Logger
}

// NewClient returns a Client for queueURL. waitSeconds outside 1..20 falls back to 20; short
// polling would turn empty receives into a busy loop.
func NewClient(api aws.SQSAPI, queueURL string, waitSeconds int, log zerolog.Logger) *Client {
	if waitSeconds < 1 || waitSeconds > DefaultWaitSeconds {
		waitSeconds = DefaultWaitSeconds
	}
	return &Client{
		api:      api,
		queueURL: queueURL,
		wait:     int32(waitSeconds),
		log:      log.With().Str("component", "queue").Logger(),
	}
}

// Receive blocks for up to the wait time and returns at most one message. An empty result is
// not an error.
func (c *Client) Receive(ctx context.Context) ([]Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    &c.queueURL,
		MaxNumberOfMessages:         maxMessages,
		WaitTimeSeconds:             c.wait,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameAll},
		MessageAttributeNames:       []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: receive: %w", ErrQueueUnavailable, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, fromSQS(m))
	}
	return msgs, nil
}

// Delete acknowledges msg. Failures are returned for logging; the message is redelivered
// after its visibility timeout either way.
func (c *Client) Delete(ctx context.Context, msg Message) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &msg.ReceiptHandle,
	})
	if err != nil {
		if isStaleReceipt(err) {
			return fmt.Errorf("%w: delete %s: %w: %w", ErrQueueUnavailable, msg.ID, ErrStaleReceipt, err)
		}
		return fmt.Errorf("%w: delete %s: %w", ErrQueueUnavailable, msg.ID, err)
	}

	c.log.Info().Str("message_id", msg.ID).Msg("message deleted")
	return nil
}

func isStaleReceipt(err error) bool {
	var invalid *sqstypes.ReceiptHandleIsInvalid
	if errors.As(err, &invalid) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ReceiptHandleIsInvalid", "InvalidParameterValue":
			return true
		}
	}
	return false
}

func fromSQS(m sqstypes.Message) Message {
	msg := Message{
		ID:                deref(m.MessageId),
		Body:              deref(m.Body),
		ReceiptHandle:     deref(m.ReceiptHandle),
		Attributes:        make(map[string]string, len(m.Attributes)),
		MessageAttributes: make(map[string]string, len(m.MessageAttributes)),
	}
	for k, v := range m.Attributes {
		msg.Attributes[k] = v
	}
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			msg.MessageAttributes[k] = *v.StringValue
		}
	}
	return msg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
