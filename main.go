package main

import (
	"context"

	"school_equipment_portal/app"
	"school_equipment_portal/config"
	"school_equipment_portal/routes"

	"go.uber.org/zap"

	_ "time/tzdata"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	repo := routes.RegisterRoutes(application.Router, application)

	// 首次启动没有管理员时，给 BOOTSTRAP_ADMIN_EMAIL 发一个管理员邀请
	if _, err := app.BootstrapFirstAdmin(context.Background(), application.Config, repo); err != nil {
		zap.S().Warnf("bootstrap admin: %v", err)
	}

	application.StartJobs(repo)

	port := application.Config.Port
	zap.S().Infof("listening on :%s", port)
	if err := application.Router.Run(":" + port); err != nil {
		zap.S().Fatalf("server: %v", err)
	}
}
