package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PubsubNotifierConfig holds configuration for the Pub/Sub notifier.
type PubsubNotifierConfig struct {
	TopicID string
	// PublishConfirmationTimeout bounds how long a background confirmation waits.
	PublishConfirmationTimeout time.Duration
}

// NewPubsubNotifierDefaults provides a config with sensible defaults.
func NewPubsubNotifierDefaults(topicID string) *PubsubNotifierConfig {
	return &PubsubNotifierConfig{
		TopicID:                    topicID,
		PublishConfirmationTimeout: 30 * time.Second,
	}
}

// PubsubNotifier publishes cache events as JSON messages to a Pub/Sub topic.
type PubsubNotifier struct {
	topic          *pubsub.Topic
	logger         zerolog.Logger
	confirmTimeout time.Duration
}

// NewPubsubNotifier creates a notifier for an existing topic.
// It accepts a context to verify that the target topic exists before returning.
func NewPubsubNotifier(ctx context.Context, cfg *PubsubNotifierConfig, client *pubsub.Client, logger zerolog.Logger) (*PubsubNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	timeout := cfg.PublishConfirmationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PubsubNotifier{
		topic:          topic,
		logger:         logger.With().Str("component", "PubsubNotifier").Str("topic_id", cfg.TopicID).Logger(),
		confirmTimeout: timeout,
	}, nil
}

// Notify queues the event for publishing and confirms the result asynchronously,
// so the cache operation that produced it is never blocked on the broker.
func (p *PubsubNotifier) Notify(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to marshal cache event.")
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":      string(ev.Type),
			"partition": ev.Partition,
		},
	})

	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), p.confirmTimeout)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			p.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to publish cache event.")
			return
		}
		p.logger.Debug().Str("published_msg_id", msgID).Str("event_id", ev.ID).Msg("Cache event published.")
	}()
}

// Stop flushes any pending messages for the topic, respecting the context's timeout.
func (p *PubsubNotifier) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}

	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
