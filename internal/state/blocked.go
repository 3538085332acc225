package state

import (
	"sort"
	"strings"
	"sync"
)

// BlockList 持久化域名黑名单的内存副本，去重集合语义。
// 匹配规则：精确命中或父域后缀命中
type BlockList struct {
	mu      sync.RWMutex
	domains map[string]struct{}
}

func NewBlockList(domains []string) *BlockList {
	b := &BlockList{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if d = normalizeDomain(d); d != "" {
			b.domains[d] = struct{}{}
		}
	}
	return b
}

// Add 加入域名，已存在时返回 false
func (b *BlockList) Add(domain string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.domains[domain]; ok {
		return false
	}
	b.domains[domain] = struct{}{}
	return true
}

// Remove 移除域名，不存在时返回 false
func (b *BlockList) Remove(domain string) bool {
	domain = normalizeDomain(domain)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.domains[domain]; !ok {
		return false
	}
	delete(b.domains, domain)
	return true
}

// Contains 主机名是否被拦截（含父域匹配）
func (b *BlockList) Contains(host string) bool {
	host = normalizeDomain(host)
	if host == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.domains[host]; ok {
		return true
	}
	for d := range b.domains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// List 排序后的域名列表，供持久化与展示
func (b *BlockList) List() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.domains))
	for d := range b.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
