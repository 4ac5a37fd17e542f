// Package search notifies the search-index collaborator when a record's
// state, category or attributes change. Notification is fire-and-forget:
// the engines never block a transition on indexing, and an indexing
// failure never rolls one back.
package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"go-classifieds-app/internal/config"
	"go-classifieds-app/internal/logger"
)

// Document is the change event published for the indexer.
type Document struct {
	SubjectID   string    `json:"subject_id"`
	SubjectKind string    `json:"subject_kind"`
	Vertical    string    `json:"vertical"`
	State       string    `json:"state"`
	Action      string    `json:"action"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Notifier is the search-index collaborator seen by the engines.
type Notifier interface {
	NotifyChanged(doc Document)
}

// RedisNotifier publishes change events to a Redis channel consumed by
// the external indexer.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

// NewRedisNotifier creates a notifier against the configured Redis instance.
func NewRedisNotifier(cfg config.RedisConfig, log logger.Logger) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisNotifier{client: client, channel: cfg.Channel, log: log}
}

// NotifyChanged publishes the event in the background with its own
// timeout. Errors are logged and dropped.
func (n *RedisNotifier) NotifyChanged(doc Document) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		payload, err := json.Marshal(doc)
		if err != nil {
			n.log.Error(err, "Failed to marshal index event")
			return
		}
		if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
			n.log.Error(err, "Failed to publish index event")
		}
	}()
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// NoopNotifier discards events. Used by tests and by deployments without
// a search backend.
type NoopNotifier struct{}

// NotifyChanged does nothing.
func (NoopNotifier) NotifyChanged(Document) {}
