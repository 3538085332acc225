package state

import (
	"sync"

	"websentry/pkg/model"
)

// RedirectTracker 按目标记录导航期间观察到的重定向跳数。计数在
// 导航完成时被消费并删除，不跨导航泄漏
type RedirectTracker struct {
	mu     sync.Mutex
	counts map[model.TargetID]int
}

func NewRedirectTracker() *RedirectTracker {
	return &RedirectTracker{counts: make(map[model.TargetID]int)}
}

// OnRedirect 目标计数加一。空目标对应非页面作用域的请求，忽略
func (t *RedirectTracker) OnRedirect(id model.TargetID) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[id]++
}

// ConsumeAndClear 读取并删除目标的计数，缺省为 0
func (t *RedirectTracker) ConsumeAndClear(id model.TargetID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.counts[id]
	delete(t.counts, id)
	return n
}

// Forget 目标分离时丢弃残留计数
func (t *RedirectTracker) Forget(id model.TargetID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, id)
}
