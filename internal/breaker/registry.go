// Package breaker 熔断器
//
// registry.go 包含按名称索引的熔断器注册表。
package breaker

import (
	"sort"
	"sync"
	"time"
)

// Registry 按名称索引的熔断器注册表
//
// 同名幂等单例：不同调用方用同一名称获取时返回同一实例，
// 因此一个失败的依赖会让所有消费方一起熔断，
// 避免各调用点独立重试形成重试风暴。
//
// Registry 是显式构造、显式注入的依赖（进程启动时创建一次，
// 传递给需要的调用方），不提供包级全局实例，测试可构造隔离注册表。
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate 获取或创建指定名称的熔断器
//
// 首次请求某名称时按 cfg 创建；之后的调用忽略 cfg，
// 返回已存在的同一实例。
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 双检：写锁间隙内可能已被其他调用方创建
	if b, ok := r.breakers[name]; ok {
		return b
	}

	b = New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get 获取指定名称的熔断器（不创建）
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.breakers[name]
	return b, ok
}

// List 返回全部熔断器名称（字典序）
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size 返回注册表中的熔断器数量
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}

// ResetAll 强制恢复全部熔断器
func (r *Registry) ResetAll() {
	for _, b := range r.snapshot() {
		b.ForceReset()
	}
}

// OpenAll 强制打开全部熔断器指定时长
func (r *Registry) OpenAll(d time.Duration) {
	for _, b := range r.snapshot() {
		b.ForceOpen(d)
	}
}

// MetricsAll 返回全部熔断器的指标快照（按名称字典序）
func (r *Registry) MetricsAll() []Metrics {
	breakers := r.snapshot()

	metrics := make([]Metrics, 0, len(breakers))
	for _, b := range breakers {
		metrics = append(metrics, b.Metrics())
	}
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})
	return metrics
}

// snapshot 复制当前熔断器列表，避免在遍历时持有注册表锁
func (r *Registry) snapshot() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	return breakers
}
