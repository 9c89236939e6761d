package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
)

// QueryRunRepository 问答记录仓储实现
type QueryRunRepository struct {
	client *Client
}

// NewQueryRunRepository 创建问答记录仓储
func NewQueryRunRepository(client *Client) *QueryRunRepository {
	return &QueryRunRepository{client: client}
}

var _ repository.QueryRunRepository = (*QueryRunRepository)(nil)

// Create 写入问答记录
func (r *QueryRunRepository) Create(ctx context.Context, run *entity.QueryRun) error {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create query run: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取问答记录
func (r *QueryRunRepository) GetByID(ctx context.Context, id int64) (*entity.QueryRun, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.GetByID")
	defer span.End()

	var run entity.QueryRun
	if err := getDB(ctx, r.client.db).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get query run: %w", err)
	}
	return &run, nil
}

// ListWithFeedback 最近的问答记录，附带反馈
func (r *QueryRunRepository) ListWithFeedback(ctx context.Context, limit int) ([]*entity.QueryRunWithFeedback, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.ListWithFeedback")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var runs []*entity.QueryRun
	if err := db.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list query runs: %w", err)
	}
	if len(runs) == 0 {
		return []*entity.QueryRunWithFeedback{}, nil
	}

	ids := make([]int64, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	var feedback []*entity.QueryRunFeedback
	if err := db.Where("query_run_id IN ?", ids).Find(&feedback).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list query run feedback: %w", err)
	}
	byRun := make(map[int64]*entity.QueryRunFeedback, len(feedback))
	for _, fb := range feedback {
		byRun[fb.QueryRunID] = fb
	}

	out := make([]*entity.QueryRunWithFeedback, 0, len(runs))
	for _, run := range runs {
		item := &entity.QueryRunWithFeedback{QueryRun: *run}
		if fb, ok := byRun[run.ID]; ok {
			isCorrect := fb.IsCorrect
			ts := fb.CreatedAt
			item.FeedbackIsCorrect = &isCorrect
			item.FeedbackNote = fb.Note
			item.FeedbackTsUTC = &ts
		}
		out = append(out, item)
	}
	return out, nil
}

// UpsertFeedback 写入或覆盖反馈（每个问答至多一条）
func (r *QueryRunRepository) UpsertFeedback(ctx context.Context, feedback *entity.QueryRunFeedback) (*entity.QueryRunFeedback, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.UpsertFeedback")
	defer span.End()

	db := getDB(ctx, r.client.db)
	feedback.CreatedAt = db.NowFunc()
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ts_utc", "is_correct", "note"}),
	}).Create(feedback).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to upsert feedback: %w", err)
	}

	var saved entity.QueryRunFeedback
	if err := db.First(&saved, "query_run_id = ?", feedback.QueryRunID).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to reload feedback: %w", err)
	}
	return &saved, nil
}

type aggregateRow struct {
	Value   *float64
	Samples int64
}

// ConfidenceSince since 起问答的平均正确概率
func (r *QueryRunRepository) ConfidenceSince(ctx context.Context, since time.Time) (float64, int64, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.ConfidenceSince")
	defer span.End()

	var row aggregateRow
	if err := getDB(ctx, r.client.db).Model(&entity.QueryRun{}).
		Select("AVG(correctness_probability) AS value, COUNT(correctness_probability) AS samples").
		Where("ts_utc >= ?", since.UTC()).
		Scan(&row).Error; err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to aggregate confidence: %w", err)
	}
	return deref(row.Value), row.Samples, nil
}

// FeedbackSince since 起反馈的正确率
func (r *QueryRunRepository) FeedbackSince(ctx context.Context, since time.Time) (float64, int64, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.QueryRunRepository.FeedbackSince")
	defer span.End()

	var row aggregateRow
	if err := getDB(ctx, r.client.db).Model(&entity.QueryRunFeedback{}).
		Select("AVG(CASE WHEN is_correct THEN 1.0 ELSE 0.0 END) AS value, COUNT(*) AS samples").
		Where("ts_utc >= ?", since.UTC()).
		Scan(&row).Error; err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	return deref(row.Value), row.Samples, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
