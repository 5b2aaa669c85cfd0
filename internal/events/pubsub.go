// Package events provides completion event publishers: Google Cloud
// Pub/Sub for production and memory for development and tests.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher wraps a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher creates a publisher for the provided topic.
func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// Publish marshals the payload to JSON and publishes it to the topic.
// The topic argument is ignored; the bound topic is used.
func (p *PubSubPublisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
