package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/database"
	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/kafka"
	"github.com/aihub/researchgraph/internal/logger"
	"github.com/aihub/researchgraph/internal/repository"
	"github.com/aihub/researchgraph/internal/services"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 基础设施
	providers := []interface{}{
		func() (*config.Config, error) {
			cfg := config.GetAppConfig()
			if cfg == nil {
				return nil, fmt.Errorf("config not loaded")
			}
			return cfg, nil
		},
		func() *zap.Logger {
			return logger.GetLogger()
		},
		database.NewDB,
		func(cfg *config.Config) (*redis.Client, error) {
			return database.NewRedis(cfg)
		},
		newHealthChecker,
		newVectorStore,
		newEmbedder,
		newAnalysisService,
		newLabeler,
		newSearchProvider,
		newKafkaProducer,
	}

	// 仓库
	providers = append(providers,
		repository.NewTopicRepository,
		repository.NewQueryRepository,
		repository.NewSourceRepository,
		repository.NewConnectionRepository,
		repository.NewDirectionRepository,
	)

	// 图谱组件
	providers = append(providers,
		newTopicClassifier,
		newCrossQueryMatcher,
		newDedupEngine,
		newBridgeGapAnalyzer,
	)

	// 服务
	providers = append(providers,
		newResearchService,
		newSchedulerService,
		services.NewGraphService,
		services.NewMetricsService,
	)

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}

func newHealthChecker(db *gorm.DB, log *zap.Logger) (*database.HealthChecker, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return database.NewHealthChecker(sqlDB, log), nil
}

// newVectorStore 按配置选择向量存储实现，Milvus不可用时回退到数据库余弦扫描
func newVectorStore(cfg *config.Config, db *gorm.DB, log *zap.Logger) graph.VectorStore {
	vsCfg := config.VectorStore
	if vsCfg != nil && vsCfg.Provider == "milvus" {
		store, err := graph.NewMilvusVectorStore(graph.MilvusOptions{
			Address:    vsCfg.Milvus.Address,
			Username:   vsCfg.Milvus.Username,
			Password:   vsCfg.Milvus.Password,
			Collection: vsCfg.Milvus.Collection,
			Database:   vsCfg.Milvus.Database,
			UseTLS:     vsCfg.Milvus.TLS,
			VectorSize: cfg.Graph.VectorSize,
		})
		if err == nil {
			log.Info("milvus vector store initialized", zap.String("address", vsCfg.Milvus.Address))
			return store
		}
		log.Warn("milvus unavailable, falling back to database vector store", zap.Error(err))
	}
	return graph.NewDatabaseVectorStore(db)
}

func newEmbedder(cfg *config.Config) graph.Embedder {
	return graph.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.BaseURL, cfg.AI.EmbeddingModel)
}

func newAnalysisService(cfg *config.Config) graph.AnalysisService {
	return graph.NewOpenAIAnalysisService(cfg.AI.OpenAIAPIKey, cfg.AI.BaseURL, cfg.AI.AnalysisModel, cfg.AI.MaxTokens, cfg.AI.Temperature)
}

func newLabeler(cfg *config.Config) graph.Labeler {
	return graph.NewOpenAILabeler(cfg.AI.OpenAIAPIKey, cfg.AI.BaseURL, cfg.AI.AnalysisModel)
}

func newSearchProvider(cfg *config.Config) graph.SearchProvider {
	return graph.NewHTTPSearchProvider(cfg.Search.Endpoint)
}

// newKafkaProducer 事件发布可选，未启用或创建失败时返回nil
func newKafkaProducer(cfg *config.Config, log *zap.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled {
		return nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Warn("kafka producer unavailable, events disabled", zap.Error(err))
		return nil
	}
	return producer
}

func newTopicClassifier(topics repository.TopicRepository, queries repository.QueryRepository, labeler graph.Labeler, cfg *config.Config, log *zap.Logger) *graph.TopicClassifier {
	return graph.NewTopicClassifier(topics, queries, labeler, cfg.Graph.TopicMatchThreshold, log)
}

func newCrossQueryMatcher(store graph.VectorStore, queries repository.QueryRepository, sources repository.SourceRepository, cfg *config.Config, log *zap.Logger) *graph.CrossQueryMatcher {
	return graph.NewCrossQueryMatcher(store, queries, sources, cfg.Graph.CrossQueryThreshold, cfg.Graph.CrossQueryTopK, log)
}

func newDedupEngine(store graph.VectorStore, sources repository.SourceRepository, cfg *config.Config, log *zap.Logger) *graph.DedupEngine {
	return graph.NewDedupEngine(store, sources, cfg.Graph.DedupThreshold, log)
}

func newBridgeGapAnalyzer(topics repository.TopicRepository, store graph.VectorStore, cfg *config.Config, log *zap.Logger) *graph.BridgeGapAnalyzer {
	return graph.NewBridgeGapAnalyzer(topics, store, cfg.Graph.BridgeMinSimilarity, cfg.Graph.GapMinTopicSimilarity, cfg.Graph.GapMinMemberCount, log)
}

func newResearchService(
	queries repository.QueryRepository,
	sources repository.SourceRepository,
	connections repository.ConnectionRepository,
	store graph.VectorStore,
	embedder graph.Embedder,
	analysis graph.AnalysisService,
	classifier *graph.TopicClassifier,
	matcher *graph.CrossQueryMatcher,
	producer *kafka.Producer,
	log *zap.Logger,
) *services.ResearchService {
	return services.NewResearchService(queries, sources, connections, store, embedder, analysis, classifier, matcher, producer, log)
}

func newSchedulerService(
	topics repository.TopicRepository,
	directions repository.DirectionRepository,
	analyzer *graph.BridgeGapAnalyzer,
	labeler graph.Labeler,
	search graph.SearchProvider,
	research *services.ResearchService,
	producer *kafka.Producer,
	redisCli *redis.Client,
	cfg *config.Config,
	log *zap.Logger,
) *services.SchedulerService {
	return services.NewSchedulerService(topics, directions, analyzer, labeler, search, research, producer, redisCli, cfg.Scheduler, cfg.Search, cfg.Redis.TTL, log)
}
