package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"websentry/internal/config"
	"websentry/internal/logger"
	"websentry/pkg/api"
	"websentry/pkg/model"
)

// main 无界面入口：附加目标后持续拦截，直到收到终止信号
func main() {
	configPath := flag.String("config", "", "配置文件路径")
	target := flag.String("target", "", "要附加的目标 ID，留空选第一个页面")
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

	svc := api.NewService(cfg, log)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		log.Err(err, "启动服务失败")
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Attach(ctx, model.TargetID(*target)); err != nil {
		log.Err(err, "附加目标失败", "devtools", cfg.DevTools.URL)
		os.Exit(1)
	}

	// 消费广播事件，无界面时仅做摘要日志
	go func() {
		for evt := range svc.SubscribeEvents() {
			if evt.Type == model.EventStatsUpdate && evt.Snapshot != nil {
				log.Debug("状态更新",
					"requests", evt.Snapshot.Stats.Requests,
					"alerts", evt.Snapshot.Stats.Alerts,
					"avgTime", evt.Snapshot.Stats.AvgTime)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("收到终止信号，退出")
}
