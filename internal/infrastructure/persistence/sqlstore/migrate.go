package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"portfolio-rag-api/internal/domain/entity"
)

// models 需要建表的实体
var models = []any{
	&entity.RequestLog{},
	&entity.RetrievalEvent{},
	&entity.EvalRun{},
	&entity.QueryRun{},
	&entity.QueryRunFeedback{},
	&entity.IngestionJob{},
	&entity.IngestedSource{},
	&entity.IndexState{},
	&entity.AppSetting{},
}

// Migrate 建表（幂等），并初始化 index_state 单行
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlstore.Migrate")
	defer span.End()

	db := c.db.WithContext(ctx)
	if err := db.AutoMigrate(models...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	state := entity.IndexState{ID: entity.IndexStateID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to seed index state: %w", err)
	}
	return nil
}
