// Package breaker 熔断器
//
// 熔断器是出站调用的弹性单元：按名称跟踪某个逻辑依赖的失败情况，
// 失败达到阈值后快速拒绝后续调用，避免持续冲击不健康的后端。
// 所有出站调用（拨号、重连）都应经过 Execute 执行，
// 使失败在全部调用方之间被一致地统计。
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// State - 熔断器状态
// ============================================================================

// State 熔断器状态
//
// 状态机：
//
//	CLOSED --（监控窗口内失败数达到阈值）--> OPEN
//	OPEN   --（距打开已过恢复超时，下一次调用）--> HALF_OPEN
//	HALF_OPEN --（成功）--> CLOSED（失败计数清零）
//	HALF_OPEN --（失败）--> OPEN（计时器重启）
type State string

const (
	// StateClosed 关闭：正常放行
	StateClosed State = "CLOSED"

	// StateOpen 打开：快速拒绝，不调用底层操作
	StateOpen State = "OPEN"

	// StateHalfOpen 半开：放行一次试探调用
	StateHalfOpen State = "HALF_OPEN"
)

// ErrOpen 熔断器打开时的快速拒绝错误
//
// 与真实的操作失败不同：ErrOpen 表示"暂时别再试"，
// 底层操作没有被调用。调用方应通过 errors.Is 区分处理。
var ErrOpen = errors.New("circuit breaker is open")

// ============================================================================
// Config - 熔断器配置
// ============================================================================

// Config 熔断器配置
type Config struct {
	// FailureThreshold 监控窗口内触发打开的失败次数
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// RecoveryTimeout 打开后允许试探（半开）前的冷却时长
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`

	// MonitoringPeriod 失败计数的滑动监控窗口：
	// 距上次失败超过该窗口后，计数从头开始
	MonitoringPeriod time.Duration `json:"monitoring_period" yaml:"monitoring_period"`
}

// DefaultConfig 返回默认熔断器配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
	}
}

// ============================================================================
// Breaker - 熔断器
// ============================================================================

// Breaker 按名称跟踪单个逻辑依赖的熔断器
//
// 并发安全：所有状态转换在内部互斥锁下完成，
// 并发调用方在下一次调用时观察到最新状态。
// 恢复超时惰性求值：打开后没有后台计时器，
// 由下一次 Execute 调用检查是否可进入半开。
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	reopenAt    time.Time // OPEN 状态下允许试探的时刻
}

// New 创建熔断器
//
// 一般通过 Registry.GetOrCreate 获取，保证同名共享实例。
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = DefaultConfig().MonitoringPeriod
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
	}
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// Execute 经熔断器执行一次可失败操作
//
// 行为：
//   - OPEN 且未到恢复时刻：立即返回 ErrOpen，不调用 op
//   - OPEN 且已到恢复时刻：转入 HALF_OPEN 并放行一次试探
//   - 其余情况：调用 op，按结果同步更新状态后返回
//
// 返回：
//   - ErrOpen：快速拒绝（op 未执行）
//   - 其他非 nil：op 的真实失败
func (b *Breaker) Execute(op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op()
	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

// allow 判断当前调用是否放行，必要时完成 OPEN→HALF_OPEN 转换
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if time.Now().Before(b.reopenAt) {
		return fmt.Errorf("%w: %s", ErrOpen, b.name)
	}

	b.state = StateHalfOpen
	return nil
}

// recordFailure 记录一次失败并推进状态机
func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	// 半开状态下的试探失败：直接重新打开，计时器重启
	if b.state == StateHalfOpen {
		b.open(now)
		b.lastFailure = now
		return
	}

	// 超出监控窗口的旧失败不再累计
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.MonitoringPeriod {
		b.failures = 0
	}

	b.failures++
	b.lastFailure = now

	if b.failures >= b.cfg.FailureThreshold {
		b.open(now)
	}
}

// recordSuccess 记录一次成功并推进状态机
func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
}

// open 进入打开状态（调用方须持有锁）
func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	b.reopenAt = now.Add(b.cfg.RecoveryTimeout)
}

// ============================================================================
// 管理操作
// ============================================================================

// ForceOpen 强制打开熔断器指定时长
//
// 运维逃生通道（健康检查/故障演练使用），不属于正常流程。
func (b *Breaker) ForceOpen(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateOpen
	b.reopenAt = time.Now().Add(d)
}

// ForceReset 强制恢复到关闭状态并清零计数
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.reopenAt = time.Time{}
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics 熔断器指标快照
type Metrics struct {
	Name            string     `json:"name"`
	State           State      `json:"state"`
	FailureCount    int        `json:"failure_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
}

// Metrics 返回当前指标快照
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failures,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		m.LastFailureTime = &t
	}
	return m
}
