package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/application/ingestion"
	"portfolio-rag-api/internal/domain/entity"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
)

func TestBackoffConfig_CalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(3))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(10))
}

func TestStream_DLQStream(t *testing.T) {
	assert.Equal(t, "dlq:ingest:tasks", Stream("ingest:tasks").DLQStream())
}

func TestNewIngestMessage_RoundTripsTaskAndMetadata(t *testing.T) {
	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-1")
	task := ingestion.Task{JobID: 42, SourceType: entity.SourceTypeUpload, Source: "a.md", Filename: "a.md", Content: []byte("# hi")}

	msg, err := NewIngestMessage(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeIngest, msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "42", msg.GetMetadata("job_id"))
	assert.Equal(t, "req-1", msg.GetMetadata("request_id"))
	assert.Empty(t, msg.GetMetadata("trace_id"))

	var got ingestion.Task
	require.NoError(t, msg.UnmarshalPayload(&got))
	assert.Equal(t, task, got)
}

func TestDecodeMessage(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]any{}})
	assert.Error(t, err)
	_, err = decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"data": "{"}})
	assert.Error(t, err)

	decoded, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]any{
		"data": `{"id":"m1","type":"ingest_task","payload":{"job_id":7}}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "m1", decoded.ID)
	assert.Equal(t, MessageTypeIngest, decoded.Type)
}

type stubRunner struct {
	err error
	got []ingestion.Task
}

func (r *stubRunner) Run(_ context.Context, task ingestion.Task) error {
	r.got = append(r.got, task)
	return r.err
}

func TestIngestHandler(t *testing.T) {
	ctx := context.Background()
	msg, err := NewIngestMessage(ctx, ingestion.Task{JobID: 3, SourceType: entity.SourceTypeLink, Source: "https://example.com"})
	require.NoError(t, err)

	runner := &stubRunner{}
	require.NoError(t, IngestHandler(runner)(ctx, msg))
	require.Len(t, runner.got, 1)
	assert.Equal(t, int64(3), runner.got[0].JobID)

	// 任务级失败已落库，不重投
	runner.err = apperrors.Wrap(errors.New("HTTP 500"), apperrors.CodeJobExhausted, "ingestion attempts exhausted")
	assert.NoError(t, IngestHandler(runner)(ctx, msg))

	runner.err = apperrors.Wrap(errors.New("database is locked"), apperrors.CodeDatabaseError, "failed to update ingestion job")
	assert.Error(t, IngestHandler(runner)(ctx, msg))

	bad := &Message{ID: "x", Type: MessageTypeIngest, Payload: []byte(`"not a task"`)}
	assert.NoError(t, IngestHandler(runner)(ctx, bad))
}
