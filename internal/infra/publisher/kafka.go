// Package publisher forwards archive ingestion outcomes to Kafka so that
// consumers can follow background jobs without polling the API.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/observability/metrics"
	"sonde-catalog/internal/resilience/circuitbreaker"
)

// DefaultTopic receives one message per archive item.
const DefaultTopic = "sonde-ingest-outcomes"

// Config selects the brokers and topic. An empty broker list disables
// publishing.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ConfigFromEnv reads KAFKA_BROKERS (comma-separated), KAFKA_OUTCOME_TOPIC
// and KAFKA_BATCH_TIMEOUT. An unparsable batch timeout is an error.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Brokers:      ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		Topic:        DefaultTopic,
		BatchTimeout: 100 * time.Millisecond,
	}
	if topic := strings.TrimSpace(os.Getenv("KAFKA_OUTCOME_TOPIC")); topic != "" {
		cfg.Topic = topic
	}
	if val := os.Getenv("KAFKA_BATCH_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid KAFKA_BATCH_TIMEOUT: %v", err)
		}
		cfg.BatchTimeout = d
	}
	return cfg, cfg.Validate()
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// Validate checks an enabled configuration.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Topic == "" {
		return errors.New("kafka outcome topic is required when brokers are set")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("kafka batch timeout must not be negative, got %v", c.BatchTimeout)
	}
	return nil
}

// OutcomeMessage is the JSON value of one published outcome.
type OutcomeMessage struct {
	JobID      string `json:"job_id"`
	ArchiveURL string `json:"archive_url"`
	Index      int    `json:"index"`
	SourceURL  string `json:"source_url"`
	Status     string `json:"status"`
	ItemID     string `json:"item_id,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Position   int    `json:"position,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes outcomes keyed by job ID, so all outcomes of a job
// land on one partition in listing order.
type KafkaPublisher struct {
	writer         messageWriter
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewKafkaPublisher creates a producer for cfg.Topic.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newPublisher(w)
}

func newPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer:         w,
		circuitBreaker: circuitbreaker.New(circuitbreaker.PublisherConfig()),
	}
}

// Publish sends every outcome of a job in one WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, jobID, archiveURL string, outcomes []entity.IngestionOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(outcomes))
	for i, o := range outcomes {
		msg, err := serializeOutcome(jobID, archiveURL, i, o)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	_, err := circuitbreaker.Do(p.circuitBreaker, func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msgs...)
	})
	metrics.RecordOutcomesPublished(err == nil, len(msgs))
	if err != nil {
		return fmt.Errorf("publish outcomes of job %s: %w", jobID, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func statusOf(o entity.IngestionOutcome) string {
	switch {
	case o.Succeeded():
		return "succeeded"
	case o.Kind() == entity.KindCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func serializeOutcome(jobID, archiveURL string, index int, o entity.IngestionOutcome) (kafkago.Message, error) {
	body := OutcomeMessage{
		JobID:      jobID,
		ArchiveURL: archiveURL,
		Index:      index,
		SourceURL:  o.SourceURL,
		Status:     statusOf(o),
		ItemID:     o.ItemID,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		body.ErrorKind = string(o.Kind())
		body.Position = o.Position()
		body.Error = o.Err.Error()
	}

	data, err := json.Marshal(body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(jobID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "job_id", Value: []byte(jobID)},
			{Key: "status", Value: []byte(body.Status)},
		},
	}, nil
}
