package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	AI        AIConfig
	Graph     GraphConfig
	Scheduler SchedulerConfig
	Search    SearchConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Host string
	Port string
	DB   int
	TTL  int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type AIConfig struct {
	OpenAIAPIKey   string
	BaseURL        string
	EmbeddingModel string
	AnalysisModel  string
	MaxTokens      int
	Temperature    float64
}

// GraphConfig 知识图谱引擎参数
// 相似度阈值来自对特定嵌入模型的离线标定，属于可调配置而非固定不变量
type GraphConfig struct {
	TopicMatchThreshold   float64 // 话题归类相似度阈值
	CrossQueryThreshold   float64 // 跨查询回声相似度阈值
	CrossQueryTopK        int     // 每个来源的跨查询匹配数上限
	BridgeMinSimilarity   float64 // 桥接源对两侧质心的最小相似度
	DedupThreshold        float64 // 近重复判定相似度阈值
	GapMinTopicSimilarity float64 // 话题对进入缺口候选的最小质心相似度
	GapMinMemberCount     int64   // 话题进入缺口候选的最小成员数
	VectorSize            int     // 嵌入向量维度
}

// SchedulerConfig 自主研究调度配置
type SchedulerConfig struct {
	Enabled         bool
	IntervalMinutes int
	MaxDirections   int // 每轮处理的缺口数上限
}

type SearchConfig struct {
	Endpoint   string // 外部检索协作方地址
	MaxResults int
}

type VectorStoreConfig struct {
	Provider   string
	Milvus     MilvusConfig
	VectorSize int
}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	TLS        bool
	Distance   string
}

var AppConfig *Config

// VectorStore 向量存储配置（顶层单独保存，便于按provider切换实现）
var VectorStore *VectorStoreConfig

// LoadConfig 从环境变量和可选的config.yaml加载配置
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// 配置文件可选，缺失时仅使用环境变量和默认值
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 配置文件存在时启用热加载
		v.OnConfigChange(func(e fsnotify.Event) {
			cfg, verr := buildConfig(v)
			if verr == nil {
				AppConfig = cfg
				VectorStore = buildVectorStoreConfig(v)
			}
		})
		v.WatchConfig()
	}

	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}

	AppConfig = cfg
	VectorStore = buildVectorStoreConfig(v)
	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8002")
	v.SetDefault("server.env", "production")

	v.SetDefault("database.url", "postgres://localhost:5432/researchgraph?sslmode=disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 3600)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "research-graph-events")

	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.analysis_model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.2)

	// 图谱阈值默认值（针对text-embedding-3-small标定）
	v.SetDefault("graph.topic_match_threshold", 0.71)
	v.SetDefault("graph.cross_query_threshold", 0.54)
	v.SetDefault("graph.cross_query_top_k", 5)
	v.SetDefault("graph.bridge_min_similarity", 0.4)
	v.SetDefault("graph.dedup_threshold", 0.95)
	v.SetDefault("graph.gap_min_topic_similarity", 0.45)
	v.SetDefault("graph.gap_min_member_count", 2)
	v.SetDefault("graph.vector_size", 1536)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_minutes", 60)
	v.SetDefault("scheduler.max_directions", 3)

	v.SetDefault("search.max_results", 10)

	v.SetDefault("vectorstore.provider", "milvus")
	v.SetDefault("vectorstore.milvus.address", "localhost:19530")
	v.SetDefault("vectorstore.milvus.collection", "research_sources")
	v.SetDefault("vectorstore.milvus.database", "default")
	v.SetDefault("vectorstore.milvus.distance", "COSINE")
}

func buildConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Env:  v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Redis: RedisConfig{
			Host: v.GetString("redis.host"),
			Port: v.GetString("redis.port"),
			DB:   v.GetInt("redis.db"),
			TTL:  v.GetInt("redis.ttl"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
			Enabled: v.GetBool("kafka.enabled"),
		},
		AI: AIConfig{
			OpenAIAPIKey:   v.GetString("ai.openai_api_key"),
			BaseURL:        v.GetString("ai.base_url"),
			EmbeddingModel: v.GetString("ai.embedding_model"),
			AnalysisModel:  v.GetString("ai.analysis_model"),
			MaxTokens:      v.GetInt("ai.max_tokens"),
			Temperature:    v.GetFloat64("ai.temperature"),
		},
		Graph: GraphConfig{
			TopicMatchThreshold:   v.GetFloat64("graph.topic_match_threshold"),
			CrossQueryThreshold:   v.GetFloat64("graph.cross_query_threshold"),
			CrossQueryTopK:        v.GetInt("graph.cross_query_top_k"),
			BridgeMinSimilarity:   v.GetFloat64("graph.bridge_min_similarity"),
			DedupThreshold:        v.GetFloat64("graph.dedup_threshold"),
			GapMinTopicSimilarity: v.GetFloat64("graph.gap_min_topic_similarity"),
			GapMinMemberCount:     v.GetInt64("graph.gap_min_member_count"),
			VectorSize:            v.GetInt("graph.vector_size"),
		},
		Scheduler: SchedulerConfig{
			Enabled:         v.GetBool("scheduler.enabled"),
			IntervalMinutes: v.GetInt("scheduler.interval_minutes"),
			MaxDirections:   v.GetInt("scheduler.max_directions"),
		},
		Search: SearchConfig{
			Endpoint:   v.GetString("search.endpoint"),
			MaxResults: v.GetInt("search.max_results"),
		},
	}

	if cfg.Graph.TopicMatchThreshold <= 0 || cfg.Graph.TopicMatchThreshold > 1 {
		return nil, fmt.Errorf("invalid graph.topic_match_threshold: %f", cfg.Graph.TopicMatchThreshold)
	}
	if cfg.Graph.DedupThreshold <= cfg.Graph.TopicMatchThreshold {
		return nil, fmt.Errorf("graph.dedup_threshold must exceed graph.topic_match_threshold")
	}

	return cfg, nil
}

func buildVectorStoreConfig(v *viper.Viper) *VectorStoreConfig {
	return &VectorStoreConfig{
		Provider:   v.GetString("vectorstore.provider"),
		VectorSize: v.GetInt("graph.vector_size"),
		Milvus: MilvusConfig{
			Address:    v.GetString("vectorstore.milvus.address"),
			Username:   v.GetString("vectorstore.milvus.username"),
			Password:   v.GetString("vectorstore.milvus.password"),
			Collection: v.GetString("vectorstore.milvus.collection"),
			Database:   v.GetString("vectorstore.milvus.database"),
			TLS:        v.GetBool("vectorstore.milvus.tls"),
			Distance:   v.GetString("vectorstore.milvus.distance"),
		},
	}
}
