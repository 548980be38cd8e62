// Package cli 定义 exam-backend 的命令行入口
package cli

import (
	"exam_proctor_backend/internal/config"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configDir string
	version   = "dev" // 构建时通过 ldflags 注入
)

var rootCmd = &cobra.Command{
	Use:           "exam-backend",
	Short:         "候选人在线考试与监考服务",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	// 不带子命令时等同于 serve
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "配置文件目录")
	serveCmd.Flags().BoolVar(&forceMigrate, "migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "最近考试条数，<=0 表示全部")

	rootCmd.AddCommand(serveCmd, migrateCmd, reportCmd)
}

// loadConfig .env 不存在时忽略
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute main 入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
