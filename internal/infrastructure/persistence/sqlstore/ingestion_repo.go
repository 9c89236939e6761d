package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-rag-api/internal/domain/entity"
	"portfolio-rag-api/internal/domain/repository"
)

// IngestionJobRepository 导入任务仓储实现
type IngestionJobRepository struct {
	client *Client
}

// NewIngestionJobRepository 创建导入任务仓储
func NewIngestionJobRepository(client *Client) *IngestionJobRepository {
	return &IngestionJobRepository{client: client}
}

var _ repository.IngestionJobRepository = (*IngestionJobRepository)(nil)

// Create 创建任务
func (r *IngestionJobRepository) Create(ctx context.Context, job *entity.IngestionJob) error {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestionJobRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *IngestionJobRepository) GetByID(ctx context.Context, id int64) (*entity.IngestionJob, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestionJobRepository.GetByID")
	defer span.End()

	var job entity.IngestionJob
	if err := getDB(ctx, r.client.db).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}
	return &job, nil
}

// Update 更新任务
func (r *IngestionJobRepository) Update(ctx context.Context, job *entity.IngestionJob) error {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestionJobRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update ingestion job: %w", err)
	}
	return nil
}

// List 最近的任务
func (r *IngestionJobRepository) List(ctx context.Context, limit int) ([]*entity.IngestionJob, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestionJobRepository.List")
	defer span.End()

	var jobs []*entity.IngestionJob
	if err := getDB(ctx, r.client.db).Order("id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ingestion jobs: %w", err)
	}
	return jobs, nil
}

// ListAll 全部任务
func (r *IngestionJobRepository) ListAll(ctx context.Context) ([]*entity.IngestionJob, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestionJobRepository.ListAll")
	defer span.End()

	var jobs []*entity.IngestionJob
	if err := getDB(ctx, r.client.db).Order("id ASC").Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ingestion jobs: %w", err)
	}
	return jobs, nil
}

// IngestedSourceRepository 已导入来源仓储实现
type IngestedSourceRepository struct {
	client *Client
}

// NewIngestedSourceRepository 创建已导入来源仓储
func NewIngestedSourceRepository(client *Client) *IngestedSourceRepository {
	return &IngestedSourceRepository{client: client}
}

var _ repository.IngestedSourceRepository = (*IngestedSourceRepository)(nil)

// Record 登记来源
func (r *IngestedSourceRepository) Record(ctx context.Context, source *entity.IngestedSource) error {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestedSourceRepository.Record")
	defer span.End()

	if err := getDB(ctx, r.client.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(source).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record ingested source: %w", err)
	}
	return nil
}

// List 最近登记的来源
func (r *IngestedSourceRepository) List(ctx context.Context, limit int) ([]*entity.IngestedSource, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestedSourceRepository.List")
	defer span.End()

	var sources []*entity.IngestedSource
	if err := getDB(ctx, r.client.db).Order("id DESC").Limit(limit).Find(&sources).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ingested sources: %w", err)
	}
	return sources, nil
}

// Count 来源总数
func (r *IngestedSourceRepository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestedSourceRepository.Count")
	defer span.End()

	var n int64
	if err := getDB(ctx, r.client.db).Model(&entity.IngestedSource{}).Count(&n).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count ingested sources: %w", err)
	}
	return n, nil
}

// Clear 删除全部登记
func (r *IngestedSourceRepository) Clear(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IngestedSourceRepository.Clear")
	defer span.End()

	res := getDB(ctx, r.client.db).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entity.IngestedSource{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to clear ingested sources: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// IndexStateRepository 索引状态仓储实现
type IndexStateRepository struct {
	client *Client
}

// NewIndexStateRepository 创建索引状态仓储
func NewIndexStateRepository(client *Client) *IndexStateRepository {
	return &IndexStateRepository{client: client}
}

var _ repository.IndexStateRepository = (*IndexStateRepository)(nil)

// Get 获取索引状态，缺失时返回零值
func (r *IndexStateRepository) Get(ctx context.Context) (*entity.IndexState, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IndexStateRepository.Get")
	defer span.End()

	var state entity.IndexState
	if err := getDB(ctx, r.client.db).First(&state, "id = ?", entity.IndexStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entity.IndexState{ID: entity.IndexStateID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get index state: %w", err)
	}
	return &state, nil
}

// MarkReset 记录一次重置
func (r *IndexStateRepository) MarkReset(ctx context.Context) (*entity.IndexState, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.IndexStateRepository.MarkReset")
	defer span.End()

	db := getDB(ctx, r.client.db)
	now := db.NowFunc()
	state := entity.IndexState{ID: entity.IndexStateID, LastResetUTC: &now, ResetCount: 1}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_reset_utc": now,
			"reset_count":    gorm.Expr("index_state.reset_count + 1"),
		}),
	}).Create(&state).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to mark index reset: %w", err)
	}
	return r.Get(ctx)
}

// AppSettingRepository 应用设置仓储实现
type AppSettingRepository struct {
	client *Client
}

// NewAppSettingRepository 创建应用设置仓储
func NewAppSettingRepository(client *Client) *AppSettingRepository {
	return &AppSettingRepository{client: client}
}

var _ repository.AppSettingRepository = (*AppSettingRepository)(nil)

// Get 读取设置
func (r *AppSettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.AppSettingRepository.Get")
	defer span.End()

	var setting entity.AppSetting
	if err := getDB(ctx, r.client.db).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		span.RecordError(err)
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return setting.Value, true, nil
}

// Set 写入设置
func (r *AppSettingRepository) Set(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "sqlstore.AppSettingRepository.Set")
	defer span.End()

	db := getDB(ctx, r.client.db)
	setting := entity.AppSetting{Key: key, Value: value, UpdatedAt: db.NowFunc()}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_utc"}),
	}).Create(&setting).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
