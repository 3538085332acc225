package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websentry/pkg/model"
)

func TestAlertsLogCapFIFO(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 21; i++ {
		s.RecordAlert(
			model.AlertEntry{ID: int64(i), Domain: fmt.Sprintf("d%d.example.com", i)},
			model.RecentAlert{URL: fmt.Sprintf("https://d%d.example.com/", i)},
		)
	}

	sn := s.Snapshot()
	require.Len(t, sn.AlertsLog, MaxAlertEntries)
	require.Len(t, sn.RecentAlerts, MaxAlertEntries)
	// 最新在前：第 21 条在头部，第 1 条被淘汰
	assert.Equal(t, int64(21), sn.AlertsLog[0].ID)
	assert.Equal(t, int64(2), sn.AlertsLog[len(sn.AlertsLog)-1].ID)
	// 计数不受封顶影响
	assert.Equal(t, int64(21), sn.Stats.Alerts)
}

func TestTrafficLogCapFIFO(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 55; i++ {
		s.RecordTraffic(model.TrafficEntry{URL: fmt.Sprintf("https://x/%d", i)})
	}
	sn := s.Snapshot()
	require.Len(t, sn.TrafficLog, MaxTrafficEntries)
	assert.Equal(t, "https://x/55", sn.TrafficLog[0].URL)
	assert.Equal(t, "https://x/6", sn.TrafficLog[MaxTrafficEntries-1].URL)
}

func TestAvgTimeIncrementalMean(t *testing.T) {
	s := NewStore()

	s.IncRequests()
	s.UpdateAvgTime(100)
	assert.Equal(t, int64(100), s.Snapshot().Stats.AvgTime)

	s.IncRequests()
	s.UpdateAvgTime(200)
	assert.Equal(t, int64(150), s.Snapshot().Stats.AvgTime)

	s.IncRequests()
	s.UpdateAvgTime(300)
	assert.Equal(t, int64(200), s.Snapshot().Stats.AvgTime)
}

func TestNextAlertIDMonotonic(t *testing.T) {
	s := NewStore()
	a := s.NextAlertID(1000)
	b := s.NextAlertID(1000) // 同毫秒
	c := s.NextAlertID(999)  // 时钟回拨
	assert.Equal(t, int64(1000), a)
	assert.Equal(t, int64(1001), b)
	assert.Equal(t, int64(1002), c)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	s.RecordTraffic(model.TrafficEntry{URL: "https://a/"})
	sn := s.Snapshot()
	sn.TrafficLog[0].URL = "mutated"
	assert.Equal(t, "https://a/", s.Snapshot().TrafficLog[0].URL)
}

func TestRestoreClampsAndKeepsCounters(t *testing.T) {
	over := make([]model.AlertEntry, 25)
	for i := range over {
		over[i] = model.AlertEntry{ID: int64(100 - i)}
	}
	s := NewStore()
	s.Restore(model.Snapshot{
		Stats:     model.Stats{Requests: 7, Blocked: 2, Alerts: 40, AvgTime: 123},
		AlertsLog: over,
	})

	sn := s.Snapshot()
	assert.Len(t, sn.AlertsLog, MaxAlertEntries)
	assert.Equal(t, int64(7), sn.Stats.Requests)
	assert.Equal(t, int64(40), sn.Stats.Alerts)
	assert.Equal(t, int64(123), sn.Stats.AvgTime)

	// 恢复后的 ID 序列保持单调
	assert.Greater(t, s.NextAlertID(0), int64(100))
}

func TestRedirectTrackerConsumeAndClear(t *testing.T) {
	tr := NewRedirectTracker()
	tr.OnRedirect("tab5")
	tr.OnRedirect("tab5")
	tr.OnRedirect("") // 非页面作用域，忽略

	assert.Equal(t, 2, tr.ConsumeAndClear("tab5"))
	// 消费后立即清零，后续导航不受影响
	assert.Equal(t, 0, tr.ConsumeAndClear("tab5"))
	assert.Equal(t, 0, tr.ConsumeAndClear("never-seen"))
}

func TestMonitorToggleNotifiesSubscribers(t *testing.T) {
	m := NewMonitor(true)
	require.True(t, m.Enabled())

	var got []bool
	var second []bool
	m.Subscribe(func(v bool) { got = append(got, v) })
	m.Subscribe(func(v bool) { second = append(second, v) })

	m.Set(false)
	m.Set(false) // 无变化不通知
	m.Set(true)

	assert.False(t, got[0])
	assert.Equal(t, []bool{false, true}, got)
	assert.Equal(t, []bool{false, true}, second)
	assert.True(t, m.Enabled())
}

func TestBlockList(t *testing.T) {
	b := NewBlockList([]string{"Evil.example.com"})

	assert.True(t, b.Contains("evil.example.com"))
	assert.True(t, b.Contains("login.evil.example.com"))
	assert.False(t, b.Contains("example.com"))
	assert.False(t, b.Contains("notevil.example.com"))

	assert.False(t, b.Add("evil.example.com")) // 去重
	assert.True(t, b.Add("bad.test"))
	assert.Equal(t, []string{"bad.test", "evil.example.com"}, b.List())

	assert.True(t, b.Remove("bad.test"))
	assert.False(t, b.Remove("bad.test"))
}
