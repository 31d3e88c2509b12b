package router

import (
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/dig"

	"github.com/aihub/researchgraph/app/controllers"
	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/database"
	"github.com/aihub/researchgraph/internal/graph"
	"github.com/aihub/researchgraph/internal/repository"
	"github.com/aihub/researchgraph/internal/services"
)

// Init 注册全部路由，必须在依赖容器构建完成后调用
func Init(container *dig.Container) error {
	return container.Invoke(func(
		cfg *config.Config,
		checker *database.HealthChecker,
		store graph.VectorStore,
		embedder graph.Embedder,
		search graph.SearchProvider,
		directions repository.DirectionRepository,
		research *services.ResearchService,
		graphSvc *services.GraphService,
		scheduler *services.SchedulerService,
	) {
		web.Router("/", &controllers.RootController{}, "get:Index")

		healthController := controllers.NewHealthController(checker, store, embedder)
		web.Router("/health", healthController, "get:Health")
		web.Router("/ready", healthController, "get:Ready")

		web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

		queryController := controllers.NewQueryController(research, graphSvc, search, cfg.Search.MaxResults)
		web.Router("/api/queries", queryController, "post:Submit")
		web.Router("/api/queries/:id/connections", queryController, "get:Connections")

		topicController := controllers.NewTopicController(graphSvc)
		web.Router("/api/topics", topicController, "get:List")
		// 具体路由必须在参数路由之前注册
		web.Router("/api/topics/gaps", topicController, "get:Gaps")
		web.Router("/api/topics/bridges", topicController, "get:Bridges")

		dedupController := controllers.NewDedupController(graphSvc)
		web.Router("/api/dedup/sweep", dedupController, "post:Sweep")

		schedulerController := controllers.NewSchedulerController(scheduler, directions)
		web.Router("/api/scheduler/run", schedulerController, "post:Run")
		web.Router("/api/scheduler/directions", schedulerController, "get:Directions")
	})
}
