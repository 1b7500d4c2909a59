// Package stream publishes domain events to Kafka.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

// Publisher writes one keyed message.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}}
}

// Publish is synchronous so the caller's timeout bounds it.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// NopPublisher drops messages; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }

func New(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Infow("kafka not configured, event stream disabled")
		return NopPublisher{}
	}
	p := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Infow("closing kafka writer")
			return p.Close()
		},
	})
	return p
}

var Module = fx.Options(
	fx.Provide(New),
)
