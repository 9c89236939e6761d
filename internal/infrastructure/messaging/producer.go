package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"portfolio-rag-api/internal/application/ingestion"
	apperrors "portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
	pkgtracer "portfolio-rag-api/pkg/tracer"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// Len 流中的消息数
func (p *Producer) Len(ctx context.Context, stream Stream) (int64, error) {
	return p.client.XLen(ctx, string(stream)).Result()
}

// IngestQueue 把导入任务投递到 Redis Stream
type IngestQueue struct {
	producer *Producer
	stream   Stream
}

var _ ingestion.Queue = (*IngestQueue)(nil)

// NewIngestQueue 创建 Redis Stream 导入队列
func NewIngestQueue(producer *Producer, stream Stream) *IngestQueue {
	return &IngestQueue{producer: producer, stream: stream}
}

// Enqueue 发布导入任务，附带请求与链路标识
func (q *IngestQueue) Enqueue(ctx context.Context, task ingestion.Task) error {
	msg, err := NewIngestMessage(ctx, task)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeQueueError, "failed to encode ingestion task")
	}
	id, err := q.producer.Publish(ctx, q.stream, msg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeQueueError, "failed to enqueue ingestion task")
	}
	logger.Debug(ctx, "ingestion task published", "stream", q.stream, "stream_message_id", id, "job_id", task.JobID)
	return nil
}

// NewIngestMessage 构造导入任务消息
func NewIngestMessage(ctx context.Context, task ingestion.Task) (*Message, error) {
	msg, err := NewMessage(MessageTypeIngest, task)
	if err != nil {
		return nil, err
	}
	msg.SetMetadata("job_id", strconv.FormatInt(task.JobID, 10))
	msg.SetMetadata("request_id", logger.RequestID(ctx))
	msg.SetMetadata("trace_id", pkgtracer.TraceID(ctx))
	return msg, nil
}
