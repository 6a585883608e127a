package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/platform/kafka/consumer"
	"idv-gateway/internal/platform/kafka/producer"
	"idv-gateway/internal/platform/logger"
	"idv-gateway/internal/proofing"
)

type capturingProducer struct {
	messages []*producer.Message
	err      error
}

func (p *capturingProducer) Produce(_ context.Context, msg *producer.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type stubVerifier struct {
	resp *docauth.Response
}

func (s *stubVerifier) Verify(_ context.Context, _ docauth.CaptureInput) (*docauth.Response, error) {
	return s.resp, nil
}

func TestKafkaEnqueue(t *testing.T) {
	p := &capturingProducer{}
	q := NewKafka(p, "idv.proofing.jobs")

	args := proofing.Args{SessionUUID: "s1", TraceID: "trace-1"}
	require.NoError(t, q.Enqueue(context.Background(), args))

	require.Len(t, p.messages, 1)
	msg := p.messages[0]
	assert.Equal(t, "idv.proofing.jobs", msg.Topic)
	assert.Equal(t, []byte("s1"), msg.Key)
	assert.Equal(t, "trace-1", msg.Headers["trace_id"])

	var decoded proofing.Args
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "s1", decoded.SessionUUID)
}

func TestWorkerHandle_PerformsJob(t *testing.T) {
	st := store.NewMemory(30 * time.Minute)
	require.NoError(t, st.Create(context.Background(), &capture.Session{UUID: "s1", CreatedAt: time.Now()}))

	job := proofing.New(&stubVerifier{resp: &docauth.Response{Success: true}}, nil, st, logger.New(), nil)
	worker := NewWorker(job, logger.New())

	payload, err := json.Marshal(proofing.Args{SessionUUID: "s1"})
	require.NoError(t, err)

	err = worker.Handle(context.Background(), &consumer.Message{
		Topic: "idv.proofing.jobs",
		Value: payload,
	})
	require.NoError(t, err)

	got, err := st.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)
}

func TestWorkerHandle_DropsUndecodablePayload(t *testing.T) {
	job := proofing.New(&stubVerifier{resp: &docauth.Response{Success: true}},
		nil, store.NewMemory(time.Minute), logger.New(), nil)
	worker := NewWorker(job, logger.New())

	err := worker.Handle(context.Background(), &consumer.Message{Value: []byte("not json")})

	assert.NoError(t, err, "bad payloads are committed, not redelivered")
}

func TestInProcEnqueue_RunsJob(t *testing.T) {
	st := store.NewMemory(30 * time.Minute)
	require.NoError(t, st.Create(context.Background(), &capture.Session{UUID: "s1", CreatedAt: time.Now()}))

	job := proofing.New(&stubVerifier{resp: &docauth.Response{Success: true}}, nil, st, logger.New(), nil)
	q := NewInProc(job, logger.New())

	require.NoError(t, q.Enqueue(context.Background(), proofing.Args{SessionUUID: "s1"}))

	require.Eventually(t, func() bool {
		got, err := st.Get(context.Background(), "s1")
		return err == nil && got.Result != nil
	}, time.Second, 10*time.Millisecond)
}
