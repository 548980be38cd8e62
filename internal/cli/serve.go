package cli

import (
	"exam_proctor_backend/internal/app"
	"exam_proctor_backend/pkg/logger"
	"log"

	"github.com/spf13/cobra"
)

var forceMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP / WebSocket 服务",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "只执行数据库迁移，完成后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.ForceMigrate = true
		cfg.MigrateOnly = true

		app.NewApp(cfg)
		defer logger.Log.Sync()

		log.Println("数据库迁移完成，退出程序")
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ForceMigrate = forceMigrate

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	application.Run()
	return nil
}
