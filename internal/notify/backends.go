package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/segmentio/kafka-go"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/events"
)

// New builds the backend named by cfg.Notify.Backend.
func New(ctx context.Context, cfg config.Config, rdb *events.RedisClient) (Notifier, error) {
	switch strings.ToLower(cfg.Notify.Backend) {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis notifier requires a redis client")
		}
		return NewRedis(rdb), nil
	case "sns":
		return NewSNS(ctx, cfg.Notify.AWSRegion, cfg.Notify.SNSTopicArn)
	case "kafka":
		return NewKafka(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
	case "none", "":
		return Noop(), nil
	}
	return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
}

type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type redisNotifier struct {
	client publisher
}

func NewRedis(client *events.RedisClient) Notifier {
	return &redisNotifier{client: client}
}

func (r *redisNotifier) Notify(ctx context.Context, evt Event) error {
	data, err := evt.marshal()
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, events.SettlementChannel, data)
}

func (r *redisNotifier) Close() error { return nil }

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsNotifier struct {
	client   snsAPI
	topicARN string
}

func NewSNS(ctx context.Context, region, topicARN string) (Notifier, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("SNS_TOPIC_ARN not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &snsNotifier{client: sns.NewFromConfig(awsCfg), topicARN: topicARN}, nil
}

func (s *snsNotifier) Notify(ctx context.Context, evt Event) error {
	data, err := evt.marshal()
	if err != nil {
		return err
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.Type)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", s.topicARN, err)
	}
	return nil
}

func (s *snsNotifier) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaNotifier struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) (Notifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS not set")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &kafkaNotifier{writer: w}, nil
}

func (k *kafkaNotifier) Notify(ctx context.Context, evt Event) error {
	data, err := evt.marshal()
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Key()),
		Value: data,
	})
}

func (k *kafkaNotifier) Close() error {
	return k.writer.Close()
}
