package main

import (
	"context"

	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"websentry/internal/config"
	"websentry/internal/logger"
	"websentry/pkg/api"
	"websentry/pkg/model"
)

// App 仪表盘应用：绑定服务方法给前端，并把核心广播事件转发为
// wails 事件（statsUpdate / open-alerts 等）
type App struct {
	ctx context.Context
	cfg *config.Config
	log logger.Logger
	svc api.Service
}

func NewApp(cfg *config.Config, l logger.Logger) *App {
	return &App{cfg: cfg, log: l, svc: api.NewService(cfg, l)}
}

// startup 启动服务并开始事件转发
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if err := a.svc.Start(ctx); err != nil {
		a.log.Err(err, "启动服务失败")
		return
	}
	go a.forwardEvents()
}

// shutdown 停止服务
func (a *App) shutdown(ctx context.Context) {
	if err := a.svc.Close(); err != nil {
		a.log.Err(err, "停止服务失败")
	}
}

// forwardEvents 把核心广播透传给前端，前端缺席时事件自然丢弃
func (a *App) forwardEvents() {
	for evt := range a.svc.SubscribeEvents() {
		wruntime.EventsEmit(a.ctx, evt.Type, evt)
	}
}

// ListTargets 供前端调用：列出可附加目标
func (a *App) ListTargets() ([]model.TargetInfo, error) {
	return a.svc.ListTargets(a.ctx)
}

// Attach 附加目标
func (a *App) Attach(target string) error {
	return a.svc.Attach(a.ctx, model.TargetID(target))
}

// Detach 分离目标
func (a *App) Detach(target string) error {
	return a.svc.Detach(model.TargetID(target))
}

// Snapshot 当前统计与日志
func (a *App) Snapshot() model.Snapshot {
	return a.svc.Snapshot()
}

// Monitoring 监控开关状态
func (a *App) Monitoring() bool {
	return a.svc.Monitoring()
}

// SetMonitoring 更新监控开关
func (a *App) SetMonitoring(enabled bool) error {
	return a.svc.SetMonitoring(enabled)
}

// BlockDomain 拉黑域名
func (a *App) BlockDomain(domain string) error {
	return a.svc.BlockDomain(domain)
}

// UnblockDomain 解除拉黑
func (a *App) UnblockDomain(domain string) error {
	return a.svc.UnblockDomain(domain)
}

// BlockedDomains 当前黑名单
func (a *App) BlockedDomains() []string {
	return a.svc.BlockedDomains()
}

// OpenAlerts 切到告警视图
func (a *App) OpenAlerts() {
	a.svc.OpenAlerts()
}
