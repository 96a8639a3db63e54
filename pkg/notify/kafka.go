package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes the run summary to a topic, keyed by run id
type KafkaChannel struct {
	writer messageWriter
}

func NewKafkaChannel(brokers []string, topic string) *KafkaChannel {
	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(webhookPayload{Subject: msg.Subject, Body: msg.Body, Summary: msg.Summary})
	if err != nil {
		return err
	}

	key := ""
	if msg.Summary != nil {
		key = msg.Summary.RunID
	}

	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "headline", Value: []byte(headline(msg))},
		},
	})
}

func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}

func headline(msg Message) string {
	if msg.Summary == nil {
		return ""
	}
	return string(msg.Summary.Headline)
}
