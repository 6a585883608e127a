// Package queue moves proofing jobs between the flow's submit step and the
// worker pool. Kafka carries the payload in production; an in-process runner
// serves development and tests.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"idv-gateway/internal/platform/kafka/consumer"
	"idv-gateway/internal/platform/kafka/producer"
	"idv-gateway/internal/proofing"
)

// Enqueuer schedules a proofing job. Enqueue is fire-and-forget with
// at-least-once delivery; duplicate execution is safe because the result
// commit is write-once.
type Enqueuer interface {
	Enqueue(ctx context.Context, args proofing.Args) error
}

// messageProducer is the slice of the kafka producer the enqueuer needs.
type messageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Kafka publishes job payloads to the proofing topic, keyed by session uuid
// so duplicate submissions for one session stay ordered.
type Kafka struct {
	producer messageProducer
	topic    string
}

// NewKafka creates a kafka-backed enqueuer.
func NewKafka(p messageProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

var _ Enqueuer = (*Kafka)(nil)

func (k *Kafka) Enqueue(ctx context.Context, args proofing.Args) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal job args: %w", err)
	}

	err = k.producer.Produce(ctx, &producer.Message{
		Topic: k.topic,
		Key:   []byte(args.SessionUUID),
		Value: payload,
		Headers: map[string]string{
			"trace_id": args.TraceID,
		},
	})
	if err != nil {
		return fmt.Errorf("enqueue proofing job: %w", err)
	}
	return nil
}

// Worker adapts the proofing job to the kafka consumer loop.
type Worker struct {
	job    *proofing.Job
	logger *slog.Logger
}

// NewWorker creates the consumer handler for proofing messages.
func NewWorker(job *proofing.Job, logger *slog.Logger) *Worker {
	return &Worker{job: job, logger: logger}
}

var _ consumer.Handler = (*Worker)(nil)

// Handle unmarshals one job payload and performs it. Undecodable payloads are
// committed rather than redelivered forever.
func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	var args proofing.Args
	if err := json.Unmarshal(msg.Value, &args); err != nil {
		w.logger.Error("dropping undecodable proofing message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err)
		return nil
	}
	return w.job.Perform(ctx, args)
}

// InProc runs jobs on a goroutine in the enqueueing process. Used when kafka
// is not configured.
type InProc struct {
	job    *proofing.Job
	logger *slog.Logger
}

// NewInProc creates the in-process runner.
func NewInProc(job *proofing.Job, logger *slog.Logger) *InProc {
	return &InProc{job: job, logger: logger}
}

var _ Enqueuer = (*InProc)(nil)

func (i *InProc) Enqueue(ctx context.Context, args proofing.Args) error {
	go func() {
		// Detach from the request context: the job outlives the submit call.
		if err := i.job.Perform(context.WithoutCancel(ctx), args); err != nil {
			i.logger.Error("in-process proofing job failed", "error", err)
		}
	}()
	return nil
}
