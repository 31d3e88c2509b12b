package bootstrap

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/database"
	"github.com/aihub/researchgraph/internal/di"
	"github.com/aihub/researchgraph/internal/kafka"
	"github.com/aihub/researchgraph/internal/logger"
	"github.com/aihub/researchgraph/internal/services"
)

// App 持有需要在退出时释放的生命周期资源
type App struct {
	Container    *dig.Container
	cleanupTasks []func() error
	cancelJobs   context.CancelFunc
}

// Init 按顺序初始化配置、日志、依赖容器与后台任务
func Init() (*App, error) {
	// .env缺失不算错误
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		return nil, err
	}

	app := &App{Container: container}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return logger.Sync()
	})

	// 连接落地资源，注册反向顺序的清理任务
	err := container.Invoke(func(db *gorm.DB, redisCli *redis.Client, producer *kafka.Producer) {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return database.CloseDB(db)
		})
		app.cleanupTasks = append(app.cleanupTasks, redisCli.Close)
		if producer != nil {
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}
	})
	if err != nil {
		return nil, err
	}

	// 后台任务：数据库健康探测常驻，自主研究调度按配置开启
	jobCtx, cancel := context.WithCancel(context.Background())
	app.cancelJobs = cancel
	err = container.Invoke(func(checker *database.HealthChecker, scheduler *services.SchedulerService) {
		go checker.Start(jobCtx)
		if config.AppConfig.Scheduler.Enabled {
			go scheduler.Start(jobCtx)
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	logger.Info("application bootstrap complete",
		zap.String("env", config.AppConfig.Server.Env),
		zap.Bool("scheduler_enabled", config.AppConfig.Scheduler.Enabled))
	return app, nil
}

// Shutdown 按获取的反向顺序释放资源
func (a *App) Shutdown() {
	if a.cancelJobs != nil {
		a.cancelJobs()
	}
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("cleanup task failed: %v", err)
		}
	}
}
