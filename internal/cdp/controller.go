package cdp

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"websentry/internal/classifier"
	"websentry/internal/features"
	"websentry/internal/logger"
	"websentry/internal/state"
	"websentry/pkg/model"
)

// 自流量与遥测噪声抑制：命中即不进入分类管线
var excludedSubstrings = []string{"/v1/traces", "/analytics", "/telemetry"}

var excludedSchemes = []string{"chrome://", "chrome-extension://", "devtools://", "about:"}

// Transport 面向单个目标的回传通道，由 CDP 会话实现。
// 全部操作尽力而为：目标已关闭时的失败由调用方吞掉
type Transport interface {
	Continue(ctx context.Context, requestID string) error
	Fail(ctx context.Context, requestID string) error
	Inject(ctx context.Context, script string) error
}

// Classifier 分类客户端的最小面，便于测试替换
type Classifier interface {
	Classify(ctx context.Context, fr model.FeatureRecord) classifier.Result
	ClassifyURL(ctx context.Context, uf model.URLFeatureRecord) classifier.Result
	URLAnalysisEnabled() bool
}

// Persister 快照持久化的最小面
type Persister interface {
	SaveSnapshot(model.Snapshot) error
}

// ControllerConfig 编排器装配参数
type ControllerConfig struct {
	Classifier Classifier
	Store      *state.Store
	Redirects  *state.RedirectTracker
	Monitor    *state.Monitor
	Blocklist  *state.BlockList
	Persist    Persister
	Logger     logger.Logger
	// AlertTiers 触发告警路径的判定层级
	AlertTiers []string
	// ExcludedPrefixes 额外的 URL 前缀排除集（分类器自身端点等）
	ExcludedPrefixes []string
}

// Controller 事件驱动的编排器。每个请求事件独立走
// Admitted → Extracting → AwaitingVerdict → {Recorded | Dropped}，
// 日志变更按判定到达顺序在 recordMu 上串行化。任何单事件失败
// 都不得影响后续事件处理
type Controller struct {
	classifier Classifier
	store      *state.Store
	redirects  *state.RedirectTracker
	monitor    *state.Monitor
	blocklist  *state.BlockList
	persist    Persister
	log        logger.Logger

	alertTiers map[model.Verdict]bool
	excluded   []string

	events   chan model.Event
	recordMu sync.Mutex

	limMu    sync.Mutex
	limiters map[model.TargetID]*rate.Limiter
}

// NewController 创建编排器
func NewController(cfg ControllerConfig) *Controller {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	tiers := make(map[model.Verdict]bool, len(cfg.AlertTiers))
	for _, t := range cfg.AlertTiers {
		tiers[classifier.Normalize(t)] = true
	}
	return &Controller{
		classifier: cfg.Classifier,
		store:      cfg.Store,
		redirects:  cfg.Redirects,
		monitor:    cfg.Monitor,
		blocklist:  cfg.Blocklist,
		persist:    cfg.Persist,
		log:        l,
		alertTiers: tiers,
		excluded:   cfg.ExcludedPrefixes,
		events:     make(chan model.Event, 64),
		limiters:   make(map[model.TargetID]*rate.Limiter),
	}
}

// Events 广播通道。无人消费时事件被丢弃而非阻塞
func (c *Controller) Events() <-chan model.Event {
	return c.events
}

// Publish 对外发布一条广播事件（控制面使用）
func (c *Controller) Publish(evt model.Event) {
	c.sendEvent(evt)
}

// HandleRequest 处理一次被拦截的请求。请求在网关判定后立即放行，
// 分类异步完成，绝不阻塞页面加载；每个请求恰好被放行或失败一次
func (c *Controller) HandleRequest(ctx context.Context, tr Transport, requestID string, ev *model.RequestEvent) {
	// 网关：自流量与遥测直接放行，不计数不提取
	if c.isExcluded(ev.URL) {
		c.release(ctx, tr, requestID)
		return
	}

	// 黑名单强制执行，独立于监控开关
	host := hostOf(ev.URL)
	if host != "" && c.blocklist.Contains(host) {
		c.deny(ctx, tr, requestID)
		c.store.IncBlocked()
		c.recordMu.Lock()
		c.store.RecordTraffic(model.TrafficEntry{
			Time:           ev.Timestamp.Format("15:04:05"),
			URL:            ev.URL,
			Method:         ev.Method,
			Classification: model.VerdictBlocked,
		})
		snap := c.store.Snapshot()
		c.recordMu.Unlock()
		c.persistAndBroadcast(snap)
		c.log.Info("请求命中黑名单", "host", host, "url", ev.URL)
		return
	}

	// 监控关闭：旁路一切，不计数不提取
	if !c.monitor.Enabled() {
		c.release(ctx, tr, requestID)
		return
	}

	c.release(ctx, tr, requestID)

	// 崩溃在提取途中也要反映一次尝试，计数先于提取
	c.store.IncRequests()
	fr := features.ExtractRequest(ev)

	// 目标中途关闭不得中断进行中的分类，会话取消只作用于横幅注入
	res := c.classifier.Classify(context.WithoutCancel(ctx), fr)
	if !res.Available {
		// 后端不可达视为无事可报，请求已计数但不入日志
		c.log.Debug("分类后端不可用，丢弃事件", "url", ev.URL)
		return
	}
	c.store.UpdateAvgTime(res.Elapsed.Milliseconds())

	verdict := res.Verdict
	alerting := c.alertTiers[verdict]

	c.recordMu.Lock()
	c.store.RecordTraffic(model.TrafficEntry{
		Time:           time.Now().Format("15:04:05"),
		URL:            ev.URL,
		Method:         ev.Method,
		Classification: verdict,
	})
	if alerting {
		c.store.RecordAlert(
			model.AlertEntry{
				ID:             c.store.NextAlertID(time.Now().UnixMilli()),
				Domain:         host,
				Classification: verdict,
				Method:         ev.Method,
				Path:           fr.Path,
				Features:       fr,
			},
			model.RecentAlert{
				Time:           time.Now().Format("15:04:05"),
				URL:            ev.URL,
				Method:         ev.Method,
				Classification: verdict,
			},
		)
	}
	snap := c.store.Snapshot()
	c.recordMu.Unlock()

	c.persistAndBroadcast(snap)

	if alerting && ev.Target != "" {
		script := bannerTraffic
		if verdict == model.VerdictPhishing {
			script = bannerPhishing
		}
		c.injectBanner(ctx, tr, ev.Target, script)
	}
}

// HandleRedirect 记录一次中间跳转
func (c *Controller) HandleRedirect(target model.TargetID) {
	c.redirects.OnRedirect(target)
}

// HandleNavigation 顶层导航完成：HTTP 明文告警独立于监控开关，
// 随后消费重定向计数做 URL 特征分析
func (c *Controller) HandleNavigation(ctx context.Context, tr Transport, target model.TargetID, pageURL string) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}

	if u.Scheme == "http" {
		c.injectBanner(ctx, tr, target, bannerInsecure)
	}

	n := c.redirects.ConsumeAndClear(target)
	uf := features.ExtractURL(pageURL, n)

	if !c.classifier.URLAnalysisEnabled() {
		c.log.Debug("URL特征已提取", "url", pageURL, "redirections", n)
		return
	}

	res := c.classifier.ClassifyURL(context.WithoutCancel(ctx), uf)
	if !res.Available {
		return
	}
	if !c.alertTiers[res.Verdict] {
		return
	}

	c.recordMu.Lock()
	c.store.RecordAlert(
		model.AlertEntry{
			ID:             c.store.NextAlertID(time.Now().UnixMilli()),
			Domain:         u.Hostname(),
			Classification: res.Verdict,
			Method:         "GET",
			Path:           u.Path,
			Features:       urlAuditRecord(u.Path, uf),
		},
		model.RecentAlert{
			Time:           time.Now().Format("15:04:05"),
			URL:            pageURL,
			Method:         "GET",
			Classification: res.Verdict,
		},
	)
	snap := c.store.Snapshot()
	c.recordMu.Unlock()

	c.persistAndBroadcast(snap)
	c.injectBanner(ctx, tr, target, bannerPhishing)
}

// release 放行请求，失败仅记录
func (c *Controller) release(ctx context.Context, tr Transport, requestID string) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := tr.Continue(cctx, requestID); err != nil {
		c.log.Debug("放行请求失败", "requestID", requestID, "error", err)
	}
}

// deny 让请求失败，失败仅记录
func (c *Controller) deny(ctx context.Context, tr Transport, requestID string) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := tr.Fail(cctx, requestID); err != nil {
		c.log.Debug("拦截请求失败", "requestID", requestID, "error", err)
	}
}

// injectBanner 向目标页面注入告警横幅。限速防止热页面刷屏；
// 目标已关闭时静默吞掉错误
func (c *Controller) injectBanner(ctx context.Context, tr Transport, target model.TargetID, script string) {
	if !c.limiterFor(target).Allow() {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := tr.Inject(cctx, script); err != nil {
		c.log.Debug("横幅注入失败", "target", string(target), "error", err)
	}
}

func (c *Controller) limiterFor(target model.TargetID) *rate.Limiter {
	c.limMu.Lock()
	defer c.limMu.Unlock()
	lim, ok := c.limiters[target]
	if !ok {
		lim = rate.NewLimiter(rate.Every(10*time.Second), 3)
		c.limiters[target] = lim
	}
	return lim
}

// ForgetTarget 目标分离时清理其限速器与重定向计数
func (c *Controller) ForgetTarget(target model.TargetID) {
	c.redirects.Forget(target)
	c.limMu.Lock()
	delete(c.limiters, target)
	c.limMu.Unlock()
}

// persistAndBroadcast 落库加广播，两者都尽力而为：持久化失败
// 记日志后继续，事件循环不因单次快照丢失而停转
func (c *Controller) persistAndBroadcast(snap model.Snapshot) {
	if err := c.persist.SaveSnapshot(snap); err != nil {
		c.log.Err(err, "快照持久化失败")
	}
	c.sendEvent(model.Event{Type: model.EventStatsUpdate, Snapshot: &snap})
}

// sendEvent 非阻塞发送，无监听方时直接丢弃
func (c *Controller) sendEvent(evt model.Event) {
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case c.events <- evt:
	default:
	}
}

func (c *Controller) isExcluded(rawURL string) bool {
	for _, s := range excludedSchemes {
		if strings.HasPrefix(rawURL, s) {
			return true
		}
	}
	for _, p := range c.excluded {
		if p != "" && strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	for _, s := range excludedSubstrings {
		if strings.Contains(rawURL, s) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// urlAuditRecord 把 URL 特征折叠进审计用特征记录的 body 字段
func urlAuditRecord(path string, uf model.URLFeatureRecord) model.FeatureRecord {
	return model.FeatureRecord{
		Method:     "GET",
		Path:       path,
		Body:       encodeURLFeatures(uf),
		PathLength: len(path),
	}
}
