package state

import (
	"math"
	"sync"
	"sync/atomic"

	"websentry/pkg/model"
)

// 滚动日志容量，插入后立即执行 FIFO 淘汰
const (
	MaxTrafficEntries = 50
	MaxAlertEntries   = 20
)

// Store 后台进程内全部共享可变状态的唯一持有者。三个日志最新在前、
// 各自封顶；requests/blocked 为原子计数，告警与均值在互斥锁内更新。
// 日志插入在锁上线性化，顺序反映判定到达顺序而非事件到达顺序
type Store struct {
	requests atomic.Int64
	blocked  atomic.Int64

	mu          sync.Mutex
	alerts      int64
	avgTime     int64
	traffic     []model.TrafficEntry
	alertsLog   []model.AlertEntry
	recent      []model.RecentAlert
	lastAlertID int64
}

func NewStore() *Store {
	return &Store{}
}

// IncRequests 请求计数加一并返回新值。必须在特征提取开始前调用，
// 这样提取途中的失败仍然反映一次尝试
func (s *Store) IncRequests() int64 {
	return s.requests.Add(1)
}

// IncBlocked 黑名单拦截计数加一
func (s *Store) IncBlocked() int64 {
	return s.blocked.Add(1)
}

// UpdateAvgTime 用精确增量均值更新平均耗时：
// avg = round((avg*(n-1) + elapsed) / n)，n 取当前请求计数。
// 每个到达分类器的请求恰好调用一次，且在 IncRequests 之后
func (s *Store) UpdateAvgTime(elapsedMS int64) {
	n := s.requests.Load()
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avgTime = int64(math.Round(float64(s.avgTime*(n-1)+elapsedMS) / float64(n)))
}

// RecordTraffic 流量日志头部插入并执行淘汰
func (s *Store) RecordTraffic(e model.TrafficEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traffic = pushFront(s.traffic, e, MaxTrafficEntries)
}

// RecordAlert 告警计数加一，告警日志与摘要日志各自头部插入并淘汰。
// alerts 计数只增不减，不受日志封顶影响
func (s *Store) RecordAlert(a model.AlertEntry, r model.RecentAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
	s.alertsLog = pushFront(s.alertsLog, a, MaxAlertEntries)
	s.recent = pushFront(s.recent, r, MaxAlertEntries)
}

// NextAlertID 以毫秒时间戳为基准的单调递增告警 ID，同毫秒内
// 连续插入时在上一个 ID 上递增
func (s *Store) NextAlertID(nowMS int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMS <= s.lastAlertID {
		nowMS = s.lastAlertID + 1
	}
	s.lastAlertID = nowMS
	return nowMS
}

// Snapshot 返回统计与三个日志的深拷贝，供持久化与广播
func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Snapshot{
		Stats: model.Stats{
			Requests: s.requests.Load(),
			Blocked:  s.blocked.Load(),
			Alerts:   s.alerts,
			AvgTime:  s.avgTime,
		},
		TrafficLog:   append([]model.TrafficEntry(nil), s.traffic...),
		AlertsLog:    append([]model.AlertEntry(nil), s.alertsLog...),
		RecentAlerts: append([]model.RecentAlert(nil), s.recent...),
	}
}

// Restore 启动时从持久化快照重建内存状态
func (s *Store) Restore(sn model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests.Store(sn.Stats.Requests)
	s.blocked.Store(sn.Stats.Blocked)
	s.alerts = sn.Stats.Alerts
	s.avgTime = sn.Stats.AvgTime
	s.traffic = clamp(append([]model.TrafficEntry(nil), sn.TrafficLog...), MaxTrafficEntries)
	s.alertsLog = clamp(append([]model.AlertEntry(nil), sn.AlertsLog...), MaxAlertEntries)
	s.recent = clamp(append([]model.RecentAlert(nil), sn.RecentAlerts...), MaxAlertEntries)
	for _, a := range s.alertsLog {
		if a.ID > s.lastAlertID {
			s.lastAlertID = a.ID
		}
	}
}

func pushFront[T any](log []T, e T, max int) []T {
	log = append([]T{e}, log...)
	if len(log) > max {
		log = log[:max]
	}
	return log
}

func clamp[T any](log []T, max int) []T {
	if len(log) > max {
		return log[:max]
	}
	return log
}
