package cdp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websentry/internal/classifier"
	"websentry/internal/logger"
	"websentry/internal/state"
	"websentry/pkg/model"
)

type fakeTransport struct {
	mu        sync.Mutex
	continued []string
	failed    []string
	injected  []string
	injectErr error
}

func (f *fakeTransport) Continue(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, id)
	return nil
}

func (f *fakeTransport) Fail(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeTransport) Inject(_ context.Context, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, script)
	return f.injectErr
}

type fakeClassifier struct {
	res     classifier.Result
	urlRes  classifier.Result
	urlOn   bool
	calls   int
	lastErr error
}

func (f *fakeClassifier) Classify(ctx context.Context, _ model.FeatureRecord) classifier.Result {
	f.calls++
	f.lastErr = ctx.Err()
	return f.res
}

func (f *fakeClassifier) ClassifyURL(context.Context, model.URLFeatureRecord) classifier.Result {
	return f.urlRes
}

func (f *fakeClassifier) URLAnalysisEnabled() bool { return f.urlOn }

type fakePersister struct {
	mu    sync.Mutex
	saves []model.Snapshot
}

func (f *fakePersister) SaveSnapshot(sn model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, sn)
	return nil
}

type fixture struct {
	ctrl    *Controller
	store   *state.Store
	monitor *state.Monitor
	block   *state.BlockList
	cls     *fakeClassifier
	persist *fakePersister
}

func newFixture(res classifier.Result) *fixture {
	f := &fixture{
		store:   state.NewStore(),
		monitor: state.NewMonitor(true),
		block:   state.NewBlockList(nil),
		cls:     &fakeClassifier{res: res},
		persist: &fakePersister{},
	}
	f.ctrl = NewController(ControllerConfig{
		Classifier:       f.cls,
		Store:            f.store,
		Redirects:        state.NewRedirectTracker(),
		Monitor:          f.monitor,
		Blocklist:        f.block,
		Persist:          f.persist,
		Logger:           logger.NewNop(),
		AlertTiers:       []string{"malicious", "phishing"},
		ExcludedPrefixes: []string{"http://127.0.0.1:8000/predict"},
	})
	return f
}

func reqEvent(rawURL string) *model.RequestEvent {
	return &model.RequestEvent{
		URL:       rawURL,
		Method:    "POST",
		Body:      []byte("a=1"),
		Target:    "t1",
		Timestamp: time.Now(),
	}
}

func TestSafeVerdictRecordsTrafficOnly(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Elapsed: 100 * time.Millisecond, Available: true})
	tr := &fakeTransport{}

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://example.com/x"))

	sn := f.store.Snapshot()
	assert.Equal(t, int64(1), sn.Stats.Requests)
	assert.Equal(t, int64(100), sn.Stats.AvgTime)
	require.Len(t, sn.TrafficLog, 1)
	assert.Equal(t, model.VerdictSafe, sn.TrafficLog[0].Classification)
	assert.Empty(t, sn.AlertsLog)
	assert.Equal(t, []string{"r1"}, tr.continued)
	assert.Empty(t, tr.injected)
	assert.Len(t, f.persist.saves, 1)
}

func TestMaliciousVerdictAlertsAndInjects(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictMalicious, Elapsed: 50 * time.Millisecond, Available: true})
	tr := &fakeTransport{}

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://evil.test/login?x=1"))

	sn := f.store.Snapshot()
	assert.Equal(t, int64(1), sn.Stats.Alerts)
	require.Len(t, sn.AlertsLog, 1)
	a := sn.AlertsLog[0]
	assert.Equal(t, "evil.test", a.Domain)
	assert.Equal(t, "/login", a.Path)
	assert.Equal(t, model.VerdictMalicious, a.Classification)
	// 告警条目原样保留提取出的特征
	assert.Equal(t, "a=1", a.Features.Body)
	require.Len(t, sn.RecentAlerts, 1)
	require.Len(t, tr.injected, 1)
	assert.Equal(t, bannerTraffic, tr.injected[0])
	// 请求仍被放行：分类不阻塞页面加载
	assert.Equal(t, []string{"r1"}, tr.continued)
}

func TestUnavailableBackendDropsWithoutLogMutation(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictUnknown, Available: false})
	tr := &fakeTransport{}

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://example.com/x"))

	sn := f.store.Snapshot()
	// 计数先于分类，失败也反映一次尝试
	assert.Equal(t, int64(1), sn.Stats.Requests)
	assert.Equal(t, int64(0), sn.Stats.Alerts)
	assert.Equal(t, int64(0), sn.Stats.AvgTime)
	assert.Empty(t, sn.TrafficLog)
	assert.Empty(t, sn.AlertsLog)
	assert.Empty(t, f.persist.saves)
	assert.Equal(t, []string{"r1"}, tr.continued)
}

func TestMonitoringDisabledBypassesPipeline(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictMalicious, Available: true})
	tr := &fakeTransport{}
	f.monitor.Set(false)

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://evil.test/x"))

	sn := f.store.Snapshot()
	assert.Equal(t, int64(0), sn.Stats.Requests)
	assert.Empty(t, sn.TrafficLog)
	assert.Zero(t, f.cls.calls)
	assert.Equal(t, []string{"r1"}, tr.continued)

	// 重新启用后恢复处理
	f.monitor.Set(true)
	f.ctrl.HandleRequest(context.Background(), tr, "r2", reqEvent("https://evil.test/x"))
	assert.Equal(t, int64(1), f.store.Snapshot().Stats.Requests)
}

func TestExclusionSetSkipsClassification(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Available: true})
	tr := &fakeTransport{}

	urls := []string{
		"http://127.0.0.1:8000/predict",
		"chrome-extension://abcdef/page.html",
		"https://cdn.example.com/v1/traces",
		"https://site.test/analytics/collect",
		"https://site.test/telemetry?x=1",
	}
	for i, u := range urls {
		f.ctrl.HandleRequest(context.Background(), tr, string(rune('a'+i)), reqEvent(u))
	}

	assert.Zero(t, f.cls.calls)
	assert.Equal(t, int64(0), f.store.Snapshot().Stats.Requests)
	assert.Len(t, tr.continued, len(urls))
}

func TestBlockedDomainIsFailedAndCounted(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Available: true})
	tr := &fakeTransport{}
	f.block.Add("evil.test")

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://login.evil.test/steal"))

	sn := f.store.Snapshot()
	assert.Equal(t, int64(1), sn.Stats.Blocked)
	assert.Equal(t, int64(0), sn.Stats.Requests)
	require.Len(t, sn.TrafficLog, 1)
	assert.Equal(t, model.VerdictBlocked, sn.TrafficLog[0].Classification)
	assert.Equal(t, []string{"r1"}, tr.failed)
	assert.Empty(t, tr.continued)
	assert.Zero(t, f.cls.calls)
}

func TestTargetDetachDoesNotAbortClassification(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Elapsed: 10 * time.Millisecond, Available: true})
	tr := &fakeTransport{}

	// 会话上下文已取消，等同目标在处理途中关闭
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.ctrl.HandleRequest(ctx, tr, "r1", reqEvent("https://example.com/x"))

	assert.Equal(t, 1, f.cls.calls)
	assert.NoError(t, f.cls.lastErr)
	sn := f.store.Snapshot()
	assert.Equal(t, int64(1), sn.Stats.Requests)
	require.Len(t, sn.TrafficLog, 1)
}

func TestVerdictArrivalOrderDefinesLogOrder(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Elapsed: time.Millisecond, Available: true})
	tr := &fakeTransport{}

	// 判定先完成者先入日志头部
	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://a.test/1"))
	f.ctrl.HandleRequest(context.Background(), tr, "r2", reqEvent("https://b.test/2"))

	sn := f.store.Snapshot()
	require.Len(t, sn.TrafficLog, 2)
	assert.Equal(t, "https://b.test/2", sn.TrafficLog[0].URL)
	assert.Equal(t, "https://a.test/1", sn.TrafficLog[1].URL)
}

func TestNavigationInsecureHTTPWarning(t *testing.T) {
	f := newFixture(classifier.Result{})
	tr := &fakeTransport{}
	f.monitor.Set(false) // HTTP 明文告警不受监控开关约束

	f.ctrl.HandleNavigation(context.Background(), tr, "t1", "http://plain.test/")

	require.Len(t, tr.injected, 1)
	assert.Equal(t, bannerInsecure, tr.injected[0])
}

func TestNavigationConsumesRedirectCount(t *testing.T) {
	f := newFixture(classifier.Result{})
	f.cls.urlOn = true
	f.cls.urlRes = classifier.Result{Verdict: model.VerdictSafe, Available: true}
	tr := &fakeTransport{}

	f.ctrl.HandleRedirect("t5")
	f.ctrl.HandleRedirect("t5")
	f.ctrl.HandleNavigation(context.Background(), tr, "t5", "https://hop.test/")

	// 消费后清零
	assert.Equal(t, 0, f.ctrl.redirects.ConsumeAndClear("t5"))
}

func TestNavigationPhishingVerdictAlerts(t *testing.T) {
	f := newFixture(classifier.Result{})
	f.cls.urlOn = true
	f.cls.urlRes = classifier.Result{Verdict: model.VerdictPhishing, Available: true}
	tr := &fakeTransport{}

	f.ctrl.HandleNavigation(context.Background(), tr, "t1", "https://phish.test/login")

	sn := f.store.Snapshot()
	require.Len(t, sn.AlertsLog, 1)
	assert.Equal(t, "phish.test", sn.AlertsLog[0].Domain)
	assert.Equal(t, model.VerdictPhishing, sn.AlertsLog[0].Classification)
	require.Len(t, tr.injected, 1)
	assert.Equal(t, bannerPhishing, tr.injected[0])
	assert.Len(t, f.persist.saves, 1)
}

func TestNavigationNonHTTPSchemeIgnored(t *testing.T) {
	f := newFixture(classifier.Result{})
	f.cls.urlOn = true
	f.cls.urlRes = classifier.Result{Verdict: model.VerdictPhishing, Available: true}
	tr := &fakeTransport{}

	f.ctrl.HandleNavigation(context.Background(), tr, "t1", "chrome://newtab/")

	assert.Empty(t, tr.injected)
	assert.Empty(t, f.store.Snapshot().AlertsLog)
}

func TestStatsUpdateBroadcast(t *testing.T) {
	f := newFixture(classifier.Result{Verdict: model.VerdictSafe, Elapsed: time.Millisecond, Available: true})
	tr := &fakeTransport{}

	f.ctrl.HandleRequest(context.Background(), tr, "r1", reqEvent("https://a.test/"))

	select {
	case evt := <-f.ctrl.Events():
		assert.Equal(t, model.EventStatsUpdate, evt.Type)
		require.NotNil(t, evt.Snapshot)
		assert.Equal(t, int64(1), evt.Snapshot.Stats.Requests)
	default:
		t.Fatal("expected statsUpdate event")
	}
}
