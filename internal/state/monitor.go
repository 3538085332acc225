package state

import (
	"sync"
	"sync/atomic"
)

// Monitor 进程级监控开关。持久化值是唯一事实来源：启动时由
// storage 初始化，之后每次变更同步推送给订阅者，无轮询
type Monitor struct {
	enabled atomic.Bool

	mu   sync.Mutex
	subs []func(bool)
}

// NewMonitor 创建开关，persisted 为持久化存储中的值（缺省 true）
func NewMonitor(persisted bool) *Monitor {
	m := &Monitor{}
	m.enabled.Store(persisted)
	return m
}

// Enabled 当前是否启用监控
func (m *Monitor) Enabled() bool {
	return m.enabled.Load()
}

// Set 更新开关并同步通知全部订阅者。值未变化时不通知
func (m *Monitor) Set(v bool) {
	if m.enabled.Swap(v) == v {
		return
	}
	m.mu.Lock()
	subs := append(make([]func(bool), 0, len(m.subs)), m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe 注册变更回调
func (m *Monitor) Subscribe(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}
