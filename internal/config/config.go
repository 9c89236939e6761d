// Package config 提供配置加载和管理功能
package config

import (
	"strings"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	RAG           RAGConfig           `yaml:"rag" mapstructure:"rag"`
	Ingest        IngestConfig        `yaml:"ingest" mapstructure:"ingest"`
	Paths         PathsConfig         `yaml:"paths" mapstructure:"paths"`
	Eval          EvalConfig          `yaml:"eval" mapstructure:"eval"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 关系型存储配置
type DatabaseConfig struct {
	// Driver sqlite | postgres
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// SQLiteConfig 嵌入式 SQLite 配置
type SQLiteConfig struct {
	Path        string        `yaml:"path" mapstructure:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// ModelsTTL 模型列表缓存时长
	ModelsTTL time.Duration `yaml:"models_ttl" mapstructure:"models_ttl"`
	// SummaryTTL 指标汇总缓存时长，0 表示不缓存
	SummaryTTL time.Duration `yaml:"summary_ttl" mapstructure:"summary_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// 可选后端
const (
	VectorBackendMilvus     = "milvus"
	VectorBackendMemory     = "memory"
	QueueBackendMemory      = "memory"
	QueueBackendRedisStream = "redis_stream"
)

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Backend milvus | memory
	Backend    string       `yaml:"backend" mapstructure:"backend"`
	Collection string       `yaml:"collection" mapstructure:"collection"`
	Milvus     MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	Dimension          int    `yaml:"dimension" mapstructure:"dimension"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// LLMConfig 生成与向量化网关配置
type LLMConfig struct {
	// Provider ollama | openai
	Provider   string        `yaml:"provider" mapstructure:"provider"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	ChatModel  string        `yaml:"chat_model" mapstructure:"chat_model"`
	EmbedModel string        `yaml:"embed_model" mapstructure:"embed_model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RAGConfig 检索问答参数
type RAGConfig struct {
	ChunkSize      int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	TopK           int `yaml:"top_k" mapstructure:"top_k"`
	MaxTopK        int `yaml:"max_top_k" mapstructure:"max_top_k"`
	EmbedBatchSize int `yaml:"embed_batch_size" mapstructure:"embed_batch_size"`
}

// IngestConfig 导入任务配置
type IngestConfig struct {
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	AllowedHosts    string        `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
	BlockedHosts    string        `yaml:"blocked_hosts" mapstructure:"blocked_hosts"`
	AllowPrivateIPs bool          `yaml:"allow_private_ips" mapstructure:"allow_private_ips"`
	LinkMaxRetries  int           `yaml:"link_max_retries" mapstructure:"link_max_retries"`
	LinkBackoff     time.Duration `yaml:"link_backoff" mapstructure:"link_backoff"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	Queue           QueueConfig   `yaml:"queue" mapstructure:"queue"`
}

// QueueConfig 导入任务队列配置
type QueueConfig struct {
	// Backend memory | redis_stream
	Backend      string        `yaml:"backend" mapstructure:"backend"`
	Size         int           `yaml:"size" mapstructure:"size"`
	Stream       string        `yaml:"stream" mapstructure:"stream"`
	Group        string        `yaml:"group" mapstructure:"group"`
	MaxLen       int64         `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
}

// AllowedHostList 解析允许的主机列表
func (c IngestConfig) AllowedHostList() []string {
	return splitHosts(c.AllowedHosts)
}

// BlockedHostList 解析屏蔽的主机列表
func (c IngestConfig) BlockedHostList() []string {
	return splitHosts(c.BlockedHosts)
}

func splitHosts(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// PathsConfig 本地路径配置
type PathsConfig struct {
	DocsDir       string `yaml:"docs_dir" mapstructure:"docs_dir"`
	BenchmarkPath string `yaml:"benchmark_path" mapstructure:"benchmark_path"`
	ReportsDir    string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// EvalConfig 离线评测配置
type EvalConfig struct {
	// TopK 为 0 时使用 rag.top_k
	TopK int            `yaml:"top_k" mapstructure:"top_k"`
	Gate EvalGateConfig `yaml:"gate" mapstructure:"gate"`
}

// EvalGateConfig 评测门禁阈值
type EvalGateConfig struct {
	MinEvalCoverage float64 `yaml:"min_eval_coverage" mapstructure:"min_eval_coverage"`
	MinRecallAt5    float64 `yaml:"min_recall_at_5" mapstructure:"min_recall_at_5"`
	MinEvalPassRate float64 `yaml:"min_eval_pass_rate" mapstructure:"min_eval_pass_rate"`
	MaxLatencyP95Ms float64 `yaml:"max_latency_p95_ms" mapstructure:"max_latency_p95_ms"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// WriteAPIKey 非空时写接口需要 X-API-Key
	WriteAPIKey string          `yaml:"write_api_key" mapstructure:"write_api_key"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
