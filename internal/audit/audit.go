// Package audit publishes audit events for mutating tool operations to Kafka.
//
// # Overview
//
// Every create, update, and delete performed through a tool can emit an
// [Event] describing what changed. Events are Avro-encoded in the Confluent
// wire format and produced to a single Kafka topic. The stream is optional:
// a nil *Publisher is valid and all methods on it are no-ops, so tool code
// emits unconditionally.
//
// # Delivery Semantics
//
// Emission is fire-and-forget. Emit places the event on a bounded buffer and
// returns immediately; a background worker drains the buffer and produces to
// Kafka synchronously. When the buffer is full the event is dropped and
// counted — an audit outage must never block or fail a tool call.
//
// # Ordering
//
// The record key is a deterministic hash of the table and sys_id, so all
// events for one record land on the same partition and stay ordered.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ThrownLemon/snow-mcp/internal/config"
	"github.com/ThrownLemon/snow-mcp/internal/observability"
)

// Actions recorded in audit events.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event describes a single mutation performed through a tool.
type Event struct {
	Action    string    // create, update, delete
	Table     string    // ServiceNow table name
	SysID     string    // sys_id of the affected record
	Tool      string    // tool operation that performed the mutation
	Timestamp time.Time // when the mutation completed
}

// Publisher produces Avro-encoded audit events to Kafka. A nil Publisher is
// valid; Emit, Run, and Close on a nil receiver do nothing.
type Publisher struct {
	client     *kgo.Client
	serializer *AvroSerializer
	topic      string
	subject    string
	events     chan Event
	logger     *slog.Logger
}

// NewPublisher creates an audit Publisher from configuration. The caller must
// run the worker via Run and Close the publisher on shutdown.
func NewPublisher(cfg config.AuditConfig, logger *slog.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()), // -1: wait for all in-sync replicas
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.RetryTimeout(30 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka client: %w", err)
	}

	return &Publisher{
		client:     client,
		serializer: NewAvroSerializer(NewHTTPRegistryClient(cfg.SchemaRegistryURL)),
		topic:      cfg.Topic,
		subject:    cfg.Topic + "-value",
		events:     make(chan Event, cfg.BufferSize),
		logger:     logger.With("component", "audit"),
	}, nil
}

// Emit queues an event for publication. Never blocks: when the buffer is
// full the event is dropped and counted.
func (p *Publisher) Emit(event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		observability.Metrics.AuditDroppedTotal.Inc()
		p.logger.Warn("audit buffer full, dropping event",
			"table", event.Table,
			"action", event.Action,
		)
	}
}

// Run drains the event buffer and produces to Kafka. Blocks until the
// context is cancelled. Should be run in its own goroutine.
func (p *Publisher) Run(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.logger.Info("audit publisher starting", "topic", p.topic)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("audit publisher shutting down")
			return ctx.Err()
		case event := <-p.events:
			if err := p.publish(ctx, event); err != nil {
				p.logger.Error("failed to publish audit event",
					"error", err,
					"table", event.Table,
					"action", event.Action,
				)
			}
		}
	}
}

// publish serializes one event and produces it synchronously.
func (p *Publisher) publish(ctx context.Context, event Event) error {
	value, err := p.serializer.Serialize(ctx, p.subject, eventSchema, eventRecord(event))
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   Key(event),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "table", Value: []byte(event.Table)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}

	results := p.client.ProduceSync(ctx, rec)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("producing to %s: %w", p.topic, err)
	}

	observability.Metrics.AuditEventsTotal.WithLabelValues(event.Table, event.Action).Inc()
	p.logger.Debug("audit event published",
		"table", event.Table,
		"action", event.Action,
		"sys_id", event.SysID,
		"partition", results[0].Record.Partition,
		"offset", results[0].Record.Offset,
	)
	return nil
}

// Close flushes pending messages and closes the Kafka connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}

// eventRecord converts an Event into the map shape the Avro schema expects.
func eventRecord(e Event) map[string]interface{} {
	return map[string]interface{}{
		"action":    e.Action,
		"table":     e.Table,
		"sys_id":    e.SysID,
		"tool":      e.Tool,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
	}
}
