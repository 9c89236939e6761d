// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"

	"portfolio-rag-api/internal/application/evaluation"
	"portfolio-rag-api/internal/application/ingestion"
	"portfolio-rag-api/internal/application/query"
	"portfolio-rag-api/internal/application/retrieval"
	"portfolio-rag-api/internal/application/telemetry"
	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/infrastructure/document"
	"portfolio-rag-api/internal/infrastructure/llm"
	"portfolio-rag-api/internal/infrastructure/messaging"
	"portfolio-rag-api/internal/infrastructure/persistence/memory"
	"portfolio-rag-api/internal/infrastructure/persistence/milvus"
	"portfolio-rag-api/internal/infrastructure/persistence/redis"
	"portfolio-rag-api/internal/infrastructure/persistence/sqlstore"
	"portfolio-rag-api/internal/interfaces/http/handler"
	"portfolio-rag-api/internal/interfaces/http/middleware"
	"portfolio-rag-api/internal/interfaces/http/router"
	"portfolio-rag-api/pkg/logger"
)

// Core 各进程共用的数据层与应用服务
type Core struct {
	Config    *config.Config
	DB        *sqlstore.Client
	Redis     *redis.Client
	Gateway   *llm.Gateway
	Index     retrieval.VectorIndex
	Indexer   *retrieval.Indexer
	Pipeline  *retrieval.Pipeline
	Ingestion *ingestion.Controller
	Query     *query.Service
	Telemetry *telemetry.Aggregator
	Harness   *evaluation.Harness
}

// App API 网关：Core + 路由 + 进程内导入队列
type App struct {
	Core   *Core
	Router *router.Router
	// Pool 仅在 ingest.queue.backend=memory 时非空
	Pool *ingestion.WorkerPool
}

// ProvideDatabase 打开数据库并执行迁移
func ProvideDatabase(ctx context.Context, cfg *config.Config) (*sqlstore.Client, func(), error) {
	client, err := sqlstore.NewClient(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端；未启用时返回 nil
// 队列走 redis_stream 时 redis 必须可用，否则只是降级为无缓存、无限流
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		if cfg.Ingest.Queue.Backend == config.QueueBackendRedisStream {
			return nil, nil, err
		}
		logger.Warn(ctx, "redis not available, cache and rate limit disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideCache redis 不可用时返回 nil
func ProvideCache(client *redis.Client) *redis.Cache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

// ProvideRateLimiter redis 不可用时返回 nil 接口
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideGateway 提供模型网关
func ProvideGateway(ctx context.Context, cfg *config.Config) (*llm.Gateway, error) {
	return llm.NewGateway(ctx, &cfg.LLM)
}

// ProvideVectorIndex 按 vector.backend 提供向量索引
func ProvideVectorIndex(ctx context.Context, cfg *config.Config) (retrieval.VectorIndex, func(), error) {
	switch cfg.Vector.Backend {
	case config.VectorBackendMemory:
		return memory.NewVectorIndex(), func() {}, nil
	case config.VectorBackendMilvus, "":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		return milvus.NewChunkIndex(client, cfg.Vector.Collection), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}

// ProvideChunker 提供切分器
func ProvideChunker(cfg *config.Config) (*retrieval.Chunker, error) {
	return retrieval.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
}

// ProvideIndexer 提供索引写入器
func ProvideIndexer(cfg *config.Config, chunker *retrieval.Chunker, gw *llm.Gateway, index retrieval.VectorIndex) *retrieval.Indexer {
	return retrieval.NewIndexer(chunker, gw, index, cfg.RAG.EmbedBatchSize)
}

// ProvidePipeline 提供检索问答管线
func ProvidePipeline(cfg *config.Config, gw *llm.Gateway, index retrieval.VectorIndex) *retrieval.Pipeline {
	return retrieval.NewPipeline(gw, index, cfg.RAG.TopK)
}

// ProvideFetcher 提供链接抓取器
func ProvideFetcher(cfg *config.Config) *document.Fetcher {
	policy := document.URLPolicy{
		AllowedHosts:    cfg.Ingest.AllowedHostList(),
		BlockedHosts:    cfg.Ingest.BlockedHostList(),
		AllowPrivateIPs: cfg.Ingest.AllowPrivateIPs,
	}
	return document.NewFetcher(policy, cfg.Ingest.FetchTimeout, cfg.Ingest.MaxUploadBytes)
}

// ProvideIngestionController 提供导入控制器
func ProvideIngestionController(
	cfg *config.Config,
	jobs *sqlstore.IngestionJobRepository,
	sources *sqlstore.IngestedSourceRepository,
	state *sqlstore.IndexStateRepository,
	indexer *retrieval.Indexer,
	fetcher *document.Fetcher,
) *ingestion.Controller {
	return ingestion.NewController(jobs, sources, state, indexer, fetcher, ingestion.Options{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		LinkMaxRetries: cfg.Ingest.LinkMaxRetries,
		LinkBackoff:    cfg.Ingest.LinkBackoff,
	})
}

// ProvideQueryService 提供问答服务
func ProvideQueryService(
	cfg *config.Config,
	pipeline *retrieval.Pipeline,
	gw *llm.Gateway,
	events *sqlstore.RetrievalEventRepository,
	runs *sqlstore.QueryRunRepository,
	settings *sqlstore.AppSettingRepository,
	cache *redis.Cache,
) *query.Service {
	svc := query.NewService(pipeline, gw, events, runs, settings)
	if cache != nil {
		svc.WithModelsCache(cache, cfg.Cache.ModelsTTL)
	}
	return svc
}

// ProvideAggregator 提供指标汇总
func ProvideAggregator(
	cfg *config.Config,
	requests *sqlstore.RequestLogRepository,
	evalRuns *sqlstore.EvalRunRepository,
	runs *sqlstore.QueryRunRepository,
	jobs *sqlstore.IngestionJobRepository,
	cache *redis.Cache,
) *telemetry.Aggregator {
	agg := telemetry.NewAggregator(requests, evalRuns, runs, jobs)
	if cache != nil {
		agg.WithSummaryCache(cache, cfg.Cache.SummaryTTL)
	}
	return agg
}

// ProvideHarness 提供离线评测
func ProvideHarness(
	cfg *config.Config,
	pipeline *retrieval.Pipeline,
	events *sqlstore.RetrievalEventRepository,
	evalRuns *sqlstore.EvalRunRepository,
) *evaluation.Harness {
	return evaluation.NewHarness(pipeline, events, evalRuns, cfg.EvalTopK())
}

// ProvideIngestQueue 为控制器挂上导入队列；memory 后端返回需要启动的 worker pool
func ProvideIngestQueue(cfg *config.Config, ctrl *ingestion.Controller, client *redis.Client) (*ingestion.WorkerPool, error) {
	q := cfg.Ingest.Queue
	switch q.Backend {
	case config.QueueBackendMemory, "":
		pool := ingestion.NewWorkerPool(ctrl, cfg.Ingest.Workers, q.Size)
		ctrl.SetQueue(pool)
		return pool, nil
	case config.QueueBackendRedisStream:
		if client == nil {
			return nil, fmt.Errorf("ingest queue %s requires redis", q.Backend)
		}
		producer := messaging.NewProducer(client.Redis(), q.MaxLen)
		ctrl.SetQueue(messaging.NewIngestQueue(producer, messaging.Stream(q.Stream)))
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ingest queue backend: %s", q.Backend)
	}
}

// ProvideHealthHandler 数据库与向量索引为必需依赖
func ProvideHealthHandler(db *sqlstore.Client, index retrieval.VectorIndex, gw *llm.Gateway, client *redis.Client) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "database", Pinger: db, Required: true},
		{Name: "gateway", Pinger: gw},
	}
	if p, ok := index.(handler.Pinger); ok {
		deps = append(deps, handler.Dependency{Name: "vector_index", Pinger: p, Required: true})
	}
	if client != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Pinger: client})
	}
	return handler.NewHealthHandler(deps...)
}

// ProvideQueryHandler 提供问答处理器
func ProvideQueryHandler(cfg *config.Config, svc *query.Service) *handler.QueryHandler {
	return handler.NewQueryHandler(svc, cfg.RAG.MaxTopK)
}

// ProvideIngestHandler 提供导入处理器
func ProvideIngestHandler(cfg *config.Config, ctrl *ingestion.Controller) *handler.IngestHandler {
	return handler.NewIngestHandler(ctrl, cfg.Ingest.MaxUploadBytes)
}

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers router.Handlers, requests *sqlstore.RequestLogRepository, limiter middleware.RateLimiter) *router.Router {
	return router.New(cfg, handlers, router.Options{
		RequestLogs:  requests,
		RateLimiter:  limiter,
		RateLimitKey: redis.BuildRateLimitKey,
	})
}
