package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"golang.org/x/sync/errgroup"

	"websentry/internal/logger"
	"websentry/pkg/model"
)

// Manager 维护到浏览器调试端口的连接与已附加目标的事件流消费
type Manager struct {
	devtoolsURL string
	ctrl        *Controller
	log         logger.Logger

	mu      sync.Mutex
	targets map[model.TargetID]*targetSession
}

// targetSession 单个已附加目标的 CDP 会话，同时实现 Transport
type targetSession struct {
	id     model.TargetID
	ctx    context.Context
	cancel context.CancelFunc
	conn   *rpcc.Conn
	client *cdp.Client

	mu         sync.Mutex
	currentURL string
}

func NewManager(devtoolsURL string, ctrl *Controller, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		ctrl:        ctrl,
		log:         l,
		targets:     make(map[model.TargetID]*targetSession),
	}
}

// ListTargets 列出调试端口上的页面目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		id := model.TargetID(t.ID)
		_, attached := m.targets[id]
		out = append(out, model.TargetInfo{
			ID:       id,
			Type:     string(t.Type),
			URL:      t.URL,
			Title:    t.Title,
			Attached: attached,
		})
	}
	return out, nil
}

// Attach 附加目标并开启拦截。target 为空时选第一个页面目标
func (m *Manager) Attach(ctx context.Context, target model.TargetID) error {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list devtools targets: %w", err)
	}

	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if target == "" || string(target) == t.ID {
			sel = t
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("no page target matching %q", target)
	}
	id := model.TargetID(sel.ID)

	m.mu.Lock()
	if _, ok := m.targets[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("target %s already attached", id)
	}
	m.mu.Unlock()

	tctx, cancel := context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return fmt.Errorf("dial target: %w", err)
	}

	ts := &targetSession{
		id:         id,
		ctx:        tctx,
		cancel:     cancel,
		conn:       conn,
		client:     cdp.NewClient(conn),
		currentURL: sel.URL,
	}

	if err := m.enable(ts); err != nil {
		ts.close()
		return err
	}

	m.mu.Lock()
	m.targets[id] = ts
	m.mu.Unlock()

	go m.supervise(ts)
	m.log.Info("目标已附加", "target", string(id), "url", sel.URL)
	return nil
}

// enable 开启网络观察、页面事件与请求阶段拦截
func (m *Manager) enable(ts *targetSession) error {
	if err := ts.client.Network.Enable(ts.ctx, nil); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	if err := ts.client.Page.Enable(ts.ctx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
	}
	if err := ts.client.Fetch.Enable(ts.ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return fmt.Errorf("enable fetch interception: %w", err)
	}
	return nil
}

// supervise 并行消费四条事件流，任一中断即移除目标
func (m *Manager) supervise(ts *targetSession) {
	g, _ := errgroup.WithContext(ts.ctx)
	g.Go(func() error { return m.consumeFetch(ts) })
	g.Go(func() error { return m.consumeNetwork(ts) })
	g.Go(func() error { return m.consumeFrames(ts) })
	g.Go(func() error { return m.consumeLoads(ts) })

	err := g.Wait()
	if ts.ctx.Err() != nil {
		return // 主动分离
	}
	m.log.Warn("目标事件流中断，自动移除", "target", string(ts.id), "error", err)
	m.remove(ts.id)
}

// consumeFetch 持续接收拦截事件，每个事件独立派发处理
func (m *Manager) consumeFetch(ts *targetSession) error {
	rp, err := ts.client.Fetch.RequestPaused(ts.ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestPaused: %w", err)
	}
	defer rp.Close()

	for {
		ev, err := rp.Recv()
		if err != nil {
			return fmt.Errorf("recv requestPaused: %w", err)
		}
		go m.ctrl.HandleRequest(ts.ctx, ts, string(ev.RequestID), toRequestEvent(ts.id, ev))
	}
}

// consumeNetwork 观察重定向跳转
func (m *Manager) consumeNetwork(ts *targetSession) error {
	st, err := ts.client.Network.RequestWillBeSent(ts.ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestWillBeSent: %w", err)
	}
	defer st.Close()

	for {
		ev, err := st.Recv()
		if err != nil {
			return fmt.Errorf("recv requestWillBeSent: %w", err)
		}
		if ev.RedirectResponse != nil {
			m.ctrl.HandleRedirect(ts.id)
		}
	}
}

// consumeFrames 跟踪顶层 frame 的当前 URL
func (m *Manager) consumeFrames(ts *targetSession) error {
	fn, err := ts.client.Page.FrameNavigated(ts.ctx)
	if err != nil {
		return fmt.Errorf("subscribe frameNavigated: %w", err)
	}
	defer fn.Close()

	for {
		ev, err := fn.Recv()
		if err != nil {
			return fmt.Errorf("recv frameNavigated: %w", err)
		}
		if ev.Frame.ParentID == nil || *ev.Frame.ParentID == "" {
			ts.setCurrentURL(ev.Frame.URL)
		}
	}
}

// consumeLoads 页面加载完成即触发导航处理
func (m *Manager) consumeLoads(ts *targetSession) error {
	lf, err := ts.client.Page.LoadEventFired(ts.ctx)
	if err != nil {
		return fmt.Errorf("subscribe loadEventFired: %w", err)
	}
	defer lf.Close()

	for {
		if _, err := lf.Recv(); err != nil {
			return fmt.Errorf("recv loadEventFired: %w", err)
		}
		go m.ctrl.HandleNavigation(ts.ctx, ts, ts.id, ts.getCurrentURL())
	}
}

// Detach 分离目标
func (m *Manager) Detach(target model.TargetID) error {
	m.mu.Lock()
	ts, ok := m.targets[target]
	if ok {
		delete(m.targets, target)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("target %s not attached", target)
	}
	ts.close()
	m.ctrl.ForgetTarget(target)
	m.log.Info("目标已分离", "target", string(target))
	return nil
}

// DetachAll 分离全部目标
func (m *Manager) DetachAll() {
	m.mu.Lock()
	all := make([]*targetSession, 0, len(m.targets))
	for _, ts := range m.targets {
		all = append(all, ts)
	}
	m.targets = make(map[model.TargetID]*targetSession)
	m.mu.Unlock()

	for _, ts := range all {
		ts.close()
		m.ctrl.ForgetTarget(ts.id)
	}
}

func (m *Manager) remove(target model.TargetID) {
	m.mu.Lock()
	ts, ok := m.targets[target]
	if ok {
		delete(m.targets, target)
	}
	m.mu.Unlock()
	if ok {
		ts.close()
		m.ctrl.ForgetTarget(target)
	}
}

func (ts *targetSession) close() {
	ts.cancel()
	if ts.conn != nil {
		ts.conn.Close()
	}
}

func (ts *targetSession) setCurrentURL(u string) {
	ts.mu.Lock()
	ts.currentURL = u
	ts.mu.Unlock()
}

func (ts *targetSession) getCurrentURL() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.currentURL
}

// Continue 放行被拦截请求
func (ts *targetSession) Continue(ctx context.Context, requestID string) error {
	return ts.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{
		RequestID: fetch.RequestID(requestID),
	})
}

// Fail 使被拦截请求失败（黑名单强制执行）
func (ts *targetSession) Fail(ctx context.Context, requestID string) error {
	return ts.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{
		RequestID:   fetch.RequestID(requestID),
		ErrorReason: network.ErrorReasonBlockedByClient,
	})
}

// Inject 在页面执行横幅脚本
func (ts *targetSession) Inject(ctx context.Context, script string) error {
	_, err := ts.client.Runtime.Evaluate(ctx, &runtime.EvaluateArgs{Expression: script})
	return err
}
