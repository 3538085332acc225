package main

import (
	"embed"
	"flag"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"websentry/internal/config"
	"websentry/internal/logger"
)

//go:embed all:frontend/dist
var assets embed.FS

// main 仪表盘入口
func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New(logger.Options{Level: "error", Writer: []string{"console"}}).
			Err(err, "加载配置失败")
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Writer: cfg.Log.Writer,
		File:   cfg.Log.File,
	})

	app := NewApp(cfg, log)

	err = wails.Run(&options.App{
		Title:  "websentry",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Err(err, "运行仪表盘失败")
		os.Exit(1)
	}
}
