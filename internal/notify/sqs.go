package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

var ErrNoQueueURL = errors.New("sqs sink needs a queue url as target")

type SQSSink struct {
	Client   *sqs.Client
	QueueURL string
}

// NewSQSSink resolves credentials and region from the default AWS chain.
func NewSQSSink(ctx context.Context, queueURL string) (*SQSSink, error) {
	if queueURL == "" {
		return nil, ErrNoQueueURL
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &SQSSink{Client: sqs.NewFromConfig(cfg), QueueURL: queueURL}, nil
}

func (s *SQSSink) Publish(ctx context.Context, c job.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(string(c.Outcome))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send completion to queue: %w", err)
	}
	return nil
}

func (s *SQSSink) Close() error { return nil }
