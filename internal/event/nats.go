// Package event publishes video lifecycle events over NATS JetStream, so
// downstream consumers (notification workers, search indexers) can react
// to pipeline state changes without polling the videostore.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vaultstream/vaultstream/internal/metrics"
	"github.com/vaultstream/vaultstream/internal/model"
)

// Publisher publishes the video lifecycle events the Pipeline Orchestrator
// raises as a video moves through its state machine.
type Publisher interface {
	PublishVideoProcessing(ctx context.Context, v model.Video) error
	PublishVideoReady(ctx context.Context, v model.Video) error
	PublishVideoFailed(ctx context.Context, v model.Video) error
	Close() error
}

// noop is used when NATS isn't configured — the pipeline runs identically,
// just without anyone downstream being notified.
type noop struct{}

func (n *noop) Close() error { return nil }
func (n *noop) PublishVideoProcessing(ctx context.Context, v model.Video) error { return nil }
func (n *noop) PublishVideoReady(ctx context.Context, v model.Video) error      { return nil }
func (n *noop) PublishVideoFailed(ctx context.Context, v model.Video) error     { return nil }

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext

	dedup   map[string]time.Time
	mutex   sync.RWMutex
	metrics *metrics.Metrics
}

// NewPublisherFromEnv creates a publisher from natsURL. An empty URL, or a
// failed connect/stream-init, falls back to the noop publisher rather than
// failing startup — event publishing is a side effect, not a dependency of
// the pipeline's correctness.
func NewPublisherFromEnv(natsURL string) Publisher {
	if natsURL == "" {
		return &noop{}
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:      nc,
		js:      js,
		dedup:   make(map[string]time.Time),
		metrics: metrics.NewMetrics(),
	}
}

// initStreams creates the VAULTSTREAM_VIDEOS stream for all video lifecycle
// events if it doesn't already exist.
func initStreams(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "VAULTSTREAM_VIDEOS",
		Subjects:  []string{"vaultstream.videos.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create VAULTSTREAM_VIDEOS stream: %w", err)
	}
	return nil
}

// EventEnvelope wraps every event published to NATS with common metadata.
type EventEnvelope struct {
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup reports whether key was published within the last 2 minutes —
// guards against duplicate events from a crash-recovery requeue re-running
// a stage that had already published before the crash.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := p.dedup[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range p.dedup {
		if t.Before(cutoff) {
			delete(p.dedup, k)
		}
	}
	p.dedup[key] = time.Now()
}

func (p *natsPub) publish(subject, eventType, dedupKey string, payload interface{}) (err error) {
	if p.shouldDedup(dedupKey) {
		return nil
	}

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.EventPublishTotal.WithLabelValues(eventType, status).Inc()
		p.metrics.EventPublishDuration.WithLabelValues(eventType, status).Observe(time.Since(start).Seconds())
	}()

	envelope := EventEnvelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if _, err = p.js.Publish(subject, b); err != nil {
		return err
	}

	p.updateDedup(dedupKey)
	return nil
}

func (p *natsPub) PublishVideoProcessing(ctx context.Context, v model.Video) error {
	return p.publish("vaultstream.videos.processing", "vaultstream.videos.processing", v.ID+":processing", v.Metadata())
}

func (p *natsPub) PublishVideoReady(ctx context.Context, v model.Video) error {
	return p.publish("vaultstream.videos.ready", "vaultstream.videos.ready", v.ID+":ready", v.Metadata())
}

func (p *natsPub) PublishVideoFailed(ctx context.Context, v model.Video) error {
	return p.publish("vaultstream.videos.failed", "vaultstream.videos.failed", v.ID+":failed", v.Metadata())
}
