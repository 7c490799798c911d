package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pong_nexus/internal/app"
	"pong_nexus/internal/shared/config"
	"pong_nexus/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "pongd.ini")

	// 1. 加载 .ini 配置
	cfg, err := config.LoadIni(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 2. 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 3. 绑定端口，失败即退出
	appServer := app.New(cfg)
	if _, err := appServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := appServer.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		stop()
		os.Exit(1)
	}
}
