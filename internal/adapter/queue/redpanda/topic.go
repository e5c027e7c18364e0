package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// errTopicExists is the Kafka TOPIC_ALREADY_EXISTS error code.
const errTopicExists = 36

// ensureTopic creates topic when the cluster does not have it yet.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return errors.New("topic name cannot be empty")
	}
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("invalid topic layout: partitions=%d replication=%d", partitions, replicationFactor)
	}
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = topic
	t.NumPartitions = partitions
	t.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, t)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("create topic request: %w", err)
	}
	ct, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	return topicResult(ct)
}

// topicResult treats an existing topic as success.
func topicResult(resp *kmsg.CreateTopicsResponse) error {
	for _, t := range resp.Topics {
		switch t.ErrorCode {
		case 0:
			slog.Info("topic created", slog.String("topic", t.Topic))
		case errTopicExists:
			slog.Debug("topic already exists", slog.String("topic", t.Topic))
		default:
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("create topic %s: %s (code %d)", t.Topic, msg, t.ErrorCode)
		}
	}
	return nil
}
