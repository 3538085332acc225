package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"websentry/internal/cdp"
	"websentry/internal/classifier"
	"websentry/internal/config"
	"websentry/internal/logger"
	"websentry/internal/state"
	"websentry/internal/storage"
	"websentry/pkg/model"
)

// Service 组装全部组件的门面：状态恢复、目标管理、控制面操作。
// 共享可变状态只通过 state 包的契约变更，本层不直接碰日志切片
type Service struct {
	id  model.SessionID
	cfg *config.Config
	log logger.Logger

	mu      sync.Mutex
	started bool

	store     *state.Store
	redirects *state.RedirectTracker
	monitor   *state.Monitor
	blocklist *state.BlockList
	persist   *storage.Store
	cls       *classifier.Client
	ctrl      *cdp.Controller
	manager   *cdp.Manager
}

// New 创建服务实例，Start 之前不可用
func New(cfg *config.Config, l logger.Logger) *Service {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		id:  model.SessionID(uuid.NewString()),
		cfg: cfg,
		log: l,
	}
}

// Start 打开状态库，恢复统计/日志/开关/黑名单，装配拦截管线
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("service already started")
	}

	persist, err := storage.Open(s.cfg.Sqlite.Dsn, s.cfg.Sqlite.Prefix, s.log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	snapshot, monitorEnabled, blocked, err := persist.Load()
	if err != nil {
		// 单键损坏不阻止启动，丢弃坏状态从空开始
		s.log.Err(err, "恢复持久化状态失败，从空状态启动")
		snapshot, monitorEnabled, blocked = model.Snapshot{}, true, nil
	}

	s.persist = persist
	s.store = state.NewStore()
	s.store.Restore(snapshot)
	s.redirects = state.NewRedirectTracker()
	s.monitor = state.NewMonitor(monitorEnabled)
	s.blocklist = state.NewBlockList(blocked)

	s.cls = classifier.New(
		s.cfg.Classifier.Endpoint,
		s.cfg.Classifier.URLEndpoint,
		time.Duration(s.cfg.Classifier.TimeoutMS)*time.Millisecond,
		s.log,
	)

	excluded := []string{s.cfg.Classifier.Endpoint}
	if s.cfg.Classifier.URLEndpoint != "" {
		excluded = append(excluded, s.cfg.Classifier.URLEndpoint)
	}

	s.ctrl = cdp.NewController(cdp.ControllerConfig{
		Classifier:       s.cls,
		Store:            s.store,
		Redirects:        s.redirects,
		Monitor:          s.monitor,
		Blocklist:        s.blocklist,
		Persist:          persist,
		Logger:           s.log,
		AlertTiers:       s.cfg.Alerts.Tiers,
		ExcludedPrefixes: excluded,
	})
	s.manager = cdp.NewManager(s.cfg.DevTools.URL, s.ctrl, s.log)

	s.started = true
	s.log.Info("服务已启动", "session", string(s.id),
		"monitoring", s.monitor.Enabled(), "blocked", len(blocked))
	return nil
}

// ListTargets 列出可附加的页面目标
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	m, err := s.require()
	if err != nil {
		return nil, err
	}
	return m.manager.ListTargets(ctx)
}

// Attach 附加目标并开启拦截
func (s *Service) Attach(ctx context.Context, target model.TargetID) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	return m.manager.Attach(ctx, target)
}

// Detach 分离目标
func (s *Service) Detach(target model.TargetID) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	return m.manager.Detach(target)
}

// Monitoring 当前监控开关状态
func (s *Service) Monitoring() bool {
	m, err := s.require()
	if err != nil {
		return false
	}
	return m.monitor.Enabled()
}

// SetMonitoring 持久化是事实来源：先写库，成功后推送到内存开关
func (s *Service) SetMonitoring(enabled bool) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if err := m.persist.SaveMonitorEnabled(enabled); err != nil {
		return fmt.Errorf("persist monitor flag: %w", err)
	}
	m.monitor.Set(enabled)
	m.ctrl.Publish(model.Event{Type: model.EventMonitorUpdate, Enabled: enabled})
	s.log.Info("监控开关已更新", "enabled", enabled)
	return nil
}

// BlockDomain 去重加入黑名单并立即持久化
func (s *Service) BlockDomain(domain string) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if !m.blocklist.Add(domain) {
		return nil
	}
	if err := m.persist.SaveBlocked(m.blocklist.List()); err != nil {
		return fmt.Errorf("persist block list: %w", err)
	}
	m.ctrl.Publish(model.Event{Type: model.EventBlockedUpdate, Domain: domain})
	s.log.Info("域名已拉黑", "domain", domain)
	return nil
}

// UnblockDomain 移出黑名单并持久化
func (s *Service) UnblockDomain(domain string) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if !m.blocklist.Remove(domain) {
		return nil
	}
	if err := m.persist.SaveBlocked(m.blocklist.List()); err != nil {
		return fmt.Errorf("persist block list: %w", err)
	}
	m.ctrl.Publish(model.Event{Type: model.EventBlockedUpdate, Domain: domain})
	s.log.Info("域名已解除拉黑", "domain", domain)
	return nil
}

// BlockedDomains 当前黑名单
func (s *Service) BlockedDomains() []string {
	m, err := s.require()
	if err != nil {
		return nil
	}
	return m.blocklist.List()
}

// OpenAlerts 请求界面切到告警视图
func (s *Service) OpenAlerts() {
	m, err := s.require()
	if err != nil {
		return
	}
	m.ctrl.Publish(model.Event{Type: model.EventOpenAlerts})
}

// Snapshot 当前统计与日志的完整副本
func (s *Service) Snapshot() model.Snapshot {
	m, err := s.require()
	if err != nil {
		return model.Snapshot{}
	}
	return m.store.Snapshot()
}

// SubscribeEvents 订阅广播事件
func (s *Service) SubscribeEvents() <-chan model.Event {
	m, err := s.require()
	if err != nil {
		ch := make(chan model.Event)
		close(ch)
		return ch
	}
	return m.ctrl.Events()
}

// Close 分离全部目标并关闭状态库
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.manager.DetachAll()
	err := s.persist.Close()
	s.started = false
	s.log.Info("服务已停止", "session", string(s.id))
	return err
}

// require 返回自身，未启动时报错。持锁拷贝指针避免与 Start 竞争
func (s *Service) require() (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, fmt.Errorf("service not started")
	}
	return s, nil
}
