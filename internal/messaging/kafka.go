package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/config"
)

const (
	EventModelRetrained           = "model.retrained"
	EventRecommendationsGenerated = "recommendations.generated"

	ConsumerGroup = "basketrec-retrainers"
	maxRetries    = 3
)

// ModelRetrainedEvent announces a newly installed snapshot.
type ModelRetrainedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Version     uuid.UUID `json:"version"`
	TrainingRun string    `json:"training_run"`
	Users       int       `json:"users"`
	Items       int       `json:"items"`
	KeptItems   int       `json:"kept_items"`
	Reason      string    `json:"reason,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecommendationsGeneratedEvent records one served list.
type RecommendationsGeneratedEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	UserID       int64     `json:"user_id"`
	ItemIDs      []int64   `json:"item_ids"`
	Sources      []string  `json:"sources"`
	Short        bool      `json:"short"`
	ColdStart    bool      `json:"cold_start"`
	ModelVersion uuid.UUID `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// RetrainCommand asks a serving instance to retrain from its data source.
type RetrainCommand struct {
	CommandID    uuid.UUID `json:"command_id"`
	TakeNPopular int       `json:"take_n_popular,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RetryCount   int       `json:"retry_count"`
	Timestamp    time.Time `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Stats() kafka.ReaderStats
	Close() error
}

// MessageBus publishes model and recommendation events and consumes retrain
// commands.
type MessageBus struct {
	modelEvents messageWriter
	recEvents   messageWriter
	dlqWriter   messageWriter
	commands    messageReader
	topics      topics
	logger      *logrus.Logger
}

type topics struct {
	modelEvents     string
	recommendations string
	retrainCommands string
	dlq             string
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	t := topics{
		modelEvents:     cfg.Kafka.Topics.ModelEvents,
		recommendations: cfg.Kafka.Topics.Recommendations,
		retrainCommands: cfg.Kafka.Topics.RetrainCommands,
		dlq:             cfg.Kafka.Topics.RetrainCommands + "-dlq",
	}

	newWriter := func(topic string, async bool) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        async,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}
	}

	return &MessageBus{
		modelEvents: newWriter(t.modelEvents, false),
		recEvents:   newWriter(t.recommendations, true),
		dlqWriter:   newWriter(t.dlq, false),
		commands: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          t.retrainCommands,
			GroupID:        ConsumerGroup,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		topics: t,
		logger: logger,
	}, nil
}

func (mb *MessageBus) PublishModelRetrained(ctx context.Context, event ModelRetrainedEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	msg, err := encode(event.Version.String(), EventModelRetrained, event.EventID, event.Timestamp, event)
	if err != nil {
		return err
	}

	if err := mb.write(ctx, mb.modelEvents, msg); err != nil {
		mb.logger.WithError(err).WithField("version", event.Version).Error("Failed to publish model event")
		return err
	}

	mb.logger.WithFields(logrus.Fields{
		"version": event.Version,
		"topic":   mb.topics.modelEvents,
	}).Info("Model event published")
	return nil
}

func (mb *MessageBus) PublishRecommendations(ctx context.Context, event RecommendationsGeneratedEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	msg, err := encode(strconv.FormatInt(event.UserID, 10), EventRecommendationsGenerated, event.EventID, event.Timestamp, event)
	if err != nil {
		return err
	}
	return mb.write(ctx, mb.recEvents, msg)
}

func encode(key, eventType string, id uuid.UUID, ts time.Time, payload interface{}) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id.String())},
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "timestamp", Value: []byte(ts.Format(time.RFC3339))},
		},
	}, nil
}

func (mb *MessageBus) write(ctx context.Context, w messageWriter, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// ConsumeRetrainCommands blocks, handing every retrain command to handler
// until ctx is cancelled. Commands that keep failing go to the DLQ.
func (mb *MessageBus) ConsumeRetrainCommands(ctx context.Context, handler func(context.Context, RetrainCommand) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		message, err := mb.commands.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).Error("Failed to read message from Kafka")
			continue
		}

		var cmd RetrainCommand
		if err := json.Unmarshal(message.Value, &cmd); err != nil {
			mb.logger.WithError(err).Error("Failed to unmarshal retrain command")
			continue
		}

		if err := mb.processWithRetry(ctx, cmd, handler, time.Second); err != nil {
			mb.logger.WithError(err).WithField("command_id", cmd.CommandID).Error("Failed to process retrain command after retries")
			if dlqErr := mb.sendToDLQ(ctx, cmd, err); dlqErr != nil {
				mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, cmd RetrainCommand, handler func(context.Context, RetrainCommand) error, baseDelay time.Duration) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"command_id": cmd.CommandID,
				"attempt":    attempt,
				"delay":      delay,
			}).Info("Retrying retrain command")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		cmd.RetryCount = attempt
		if err := handler(ctx, cmd); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"command_id": cmd.CommandID,
				"attempt":    attempt,
			}).Warn("Retrain command failed")

			if attempt == maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		mb.logger.WithFields(logrus.Fields{
			"command_id": cmd.CommandID,
			"attempt":    attempt,
		}).Info("Retrain command processed")
		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, cmd RetrainCommand, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": cmd,
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(cmd.CommandID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "command_id", Value: []byte(cmd.CommandID.String())},
			{Key: "original_topic", Value: []byte(mb.topics.retrainCommands)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"command_id": cmd.CommandID,
		"error":      originalError.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	for name, w := range map[string]messageWriter{
		"model events":    mb.modelEvents,
		"recommendations": mb.recEvents,
		"DLQ":             mb.dlqWriter,
	} {
		if err := w.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close %s writer: %w", name, err))
		}
	}

	if err := mb.commands.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}

// GetMetrics returns Kafka consumer metrics for monitoring
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.commands.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
