package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer feeds a consumer group's messages to a handler. A message whose handler keeps
// failing after Attempts tries is logged and committed past; the reconciliation job polls
// the processor for any payment such a message was about.
type Consumer struct {
	Attempts int
	Backoff  time.Duration

	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID, clientID string, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	g, err := sarama.NewConsumerGroup(brokers, groupID, NewConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka: consumer group %s: %w", groupID, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{Attempts: 3, Backoff: 500 * time.Millisecond, group: g, handler: handler, logger: logger}, nil
}

// Run consumes topics until ctx ends, rejoining the group after every rebalance.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		err := c.group.Consume(ctx, topics, c)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := c.deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.ErrorContext(ctx, "kafka message dropped after retries",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) deliver(ctx context.Context, msg *sarama.ConsumerMessage) error {
	attempts := max(c.Attempts, 1)
	var err error
	for i := range attempts {
		if err = c.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		c.logger.WarnContext(ctx, "kafka message failed; retrying",
			"topic", msg.Topic, "offset", msg.Offset, "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Backoff):
		}
	}
	return err
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)
