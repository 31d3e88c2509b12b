package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/app/bootstrap"
	"github.com/aihub/researchgraph/app/router"
	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	if err := router.Init(app.Container); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	web.BConfig.AppName = "Research Graph Service"
	web.BConfig.CopyRequestBody = true
	if port, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = port
	}

	logger.Info("🚀 Starting Research Graph Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
