//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/infrastructure/persistence/sqlstore"
	"portfolio-rag-api/internal/interfaces/http/handler"
	"portfolio-rag-api/internal/interfaces/http/router"
)

// InitializeCore 初始化数据层与应用服务（job-worker、ragctl）
func InitializeCore(ctx context.Context, cfg *config.Config) (*Core, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		wire.Struct(new(Core), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		wire.Struct(new(Core), "*"),
		RouterSet,
		ProvideIngestQueue,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// DataSet 存储、缓存、向量索引与模型网关
var DataSet = wire.NewSet(
	ProvideDatabase,
	sqlstore.NewIngestionJobRepository,
	sqlstore.NewIngestedSourceRepository,
	sqlstore.NewIndexStateRepository,
	sqlstore.NewAppSettingRepository,
	sqlstore.NewRequestLogRepository,
	sqlstore.NewRetrievalEventRepository,
	sqlstore.NewEvalRunRepository,
	sqlstore.NewQueryRunRepository,
	ProvideRedisClient,
	ProvideCache,
	ProvideGateway,
	ProvideVectorIndex,
)

// ServiceSet 应用服务
var ServiceSet = wire.NewSet(
	ProvideChunker,
	ProvideIndexer,
	ProvidePipeline,
	ProvideFetcher,
	ProvideIngestionController,
	ProvideQueryService,
	ProvideAggregator,
	ProvideHarness,
)

// RouterSet HTTP 层
var RouterSet = wire.NewSet(
	ProvideRateLimiter,
	ProvideHealthHandler,
	ProvideQueryHandler,
	ProvideIngestHandler,
	handler.NewMetricsHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
