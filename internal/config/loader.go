// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	apperrors "portfolio-rag-api/pkg/errors"
)

// DefaultConfigFile 默认配置文件路径，可通过 CONFIG_FILE 覆盖
const DefaultConfigFile = "configs/config.yaml"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile 从指定的基础配置文件加载，同目录下的 config.<APP_ENV>.yaml 作为可选覆盖
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载基础配置（缺失时完全依赖默认值与环境变量）
	if err := loadConfigFile(v, path, true); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(filepath.Dir(path), fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		// 未定义且无默认值时保留原样，便于排查
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验会导致运行期错误的配置组合
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return apperrors.New(apperrors.CodeConfiguration, "rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return apperrors.New(apperrors.CodeConfiguration, "rag.chunk_overlap must be smaller than rag.chunk_size")
	}
	if c.RAG.TopK <= 0 {
		return apperrors.New(apperrors.CodeConfiguration, "rag.top_k must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return apperrors.New(apperrors.CodeConfiguration, "unsupported database.driver").WithDetail(c.Database.Driver)
	}
	switch c.Vector.Backend {
	case VectorBackendMilvus, VectorBackendMemory:
	default:
		return apperrors.New(apperrors.CodeConfiguration, "unsupported vector.backend").WithDetail(c.Vector.Backend)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return apperrors.New(apperrors.CodeConfiguration, "unsupported llm.provider").WithDetail(c.LLM.Provider)
	}
	switch c.Ingest.Queue.Backend {
	case QueueBackendMemory:
	case QueueBackendRedisStream:
		if !c.Cache.Redis.Enabled {
			return apperrors.New(apperrors.CodeConfiguration, "ingest.queue.backend=redis_stream requires cache.redis.enabled")
		}
	default:
		return apperrors.New(apperrors.CodeConfiguration, "unsupported ingest.queue.backend").WithDetail(c.Ingest.Queue.Backend)
	}
	return nil
}

// EvalTopK 评测使用的 top_k
func (c *Config) EvalTopK() int {
	if c.Eval.TopK > 0 {
		return c.Eval.TopK
	}
	return c.RAG.TopK
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "portfolio-rag-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "127.0.0.1")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "180s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")

	// 数据库默认值
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "data/app.db")
	v.SetDefault("database.sqlite.busy_timeout", "5s")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "portfolio_rag")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	// Redis 默认值
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.models_ttl", "30s")
	v.SetDefault("cache.summary_ttl", "0s")

	// 向量索引默认值
	v.SetDefault("vector.backend", "milvus")
	v.SetDefault("vector.collection", "portfolio_docs")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.user", "")
	v.SetDefault("vector.milvus.password", "")
	v.SetDefault("vector.milvus.collection_prefix", "")
	v.SetDefault("vector.milvus.dimension", 768)
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	// 网关默认值
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://127.0.0.1:11434")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.chat_model", "llama3.2:3b")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("llm.timeout", "120s")

	// 检索问答默认值
	v.SetDefault("rag.chunk_size", 900)
	v.SetDefault("rag.chunk_overlap", 150)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.max_top_k", 15)
	v.SetDefault("rag.embed_batch_size", 32)

	// 导入默认值
	v.SetDefault("ingest.max_upload_bytes", 10*1024*1024)
	v.SetDefault("ingest.allowed_hosts", "")
	v.SetDefault("ingest.blocked_hosts", "localhost,127.0.0.1,0.0.0.0")
	v.SetDefault("ingest.allow_private_ips", false)
	v.SetDefault("ingest.link_max_retries", 2)
	v.SetDefault("ingest.link_backoff", "1s")
	v.SetDefault("ingest.fetch_timeout", "20s")
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.queue.backend", "memory")
	v.SetDefault("ingest.queue.size", 64)
	v.SetDefault("ingest.queue.stream", "ingest:tasks")
	v.SetDefault("ingest.queue.group", "ingest-workers")
	v.SetDefault("ingest.queue.max_len", 10000)
	v.SetDefault("ingest.queue.block_timeout", "5s")

	// 路径默认值
	v.SetDefault("paths.docs_dir", "data/docs")
	v.SetDefault("paths.benchmark_path", "data/benchmarks/golden_eval.jsonl")
	v.SetDefault("paths.reports_dir", "data/reports")

	// 评测默认值
	v.SetDefault("eval.top_k", 0)
	v.SetDefault("eval.gate.min_eval_coverage", 1.0)
	v.SetDefault("eval.gate.min_recall_at_5", 0.45)
	v.SetDefault("eval.gate.min_eval_pass_rate", 0.5)
	v.SetDefault("eval.gate.max_latency_p95_ms", 20000.0)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.write_api_key", "")
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.cors.allowed_origins", []string{"http://127.0.0.1:5173", "http://localhost:5173"})
}
