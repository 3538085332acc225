package api

import (
	"context"

	"websentry/internal/config"
	"websentry/internal/logger"
	"websentry/internal/service"
	"websentry/pkg/model"
)

// Service 服务接口
type Service interface {
	// Start 打开状态库并恢复持久化状态
	Start(ctx context.Context) error

	// ListTargets 列出可附加的页面目标
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)

	// Attach 附加目标并开启拦截，target 为空时选第一个页面目标
	Attach(ctx context.Context, target model.TargetID) error

	// Detach 分离目标
	Detach(target model.TargetID) error

	// Monitoring 当前监控开关状态
	Monitoring() bool

	// SetMonitoring 更新监控开关并持久化
	SetMonitoring(enabled bool) error

	// BlockDomain 将域名加入持久化黑名单（去重）
	BlockDomain(domain string) error

	// UnblockDomain 将域名移出黑名单
	UnblockDomain(domain string) error

	// BlockedDomains 当前黑名单
	BlockedDomains() []string

	// OpenAlerts 请求界面切到告警视图
	OpenAlerts()

	// Snapshot 当前统计与日志的完整副本
	Snapshot() model.Snapshot

	// SubscribeEvents 订阅广播事件
	SubscribeEvents() <-chan model.Event

	// Close 分离全部目标并关闭状态库
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) Service {
	return service.New(cfg, l)
}
