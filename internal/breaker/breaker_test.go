// Package breaker 熔断器单元测试
package breaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// TestBreaker_ClosedPassesThrough 关闭状态下正常放行
func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := New("test", DefaultConfig())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !called {
		t.Error("operation should have been invoked")
	}
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}
}

// TestBreaker_OpensAtThreshold 失败达到阈值后打开，立即拒绝且不调用操作
func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		MonitoringPeriod: time.Minute,
	})

	// 一次失败即打开
	if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected operation error, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after one failure, got %s", b.State())
	}

	// 打开期间：快速拒绝，操作不被调用
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("operation must not be invoked while open")
	}
}

// TestBreaker_ErrOpenDistinguishable 熔断拒绝与真实失败可区分
func TestBreaker_ErrOpenDistinguishable(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, MonitoringPeriod: time.Minute})

	err := b.Execute(func() error { return errBoom })
	if errors.Is(err, ErrOpen) {
		t.Error("a genuine failure must not match ErrOpen")
	}

	err = b.Execute(func() error { return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("rejection must match ErrOpen, got %v", err)
	}
}

// TestBreaker_HalfOpenRecovery 恢复超时后半开：成功关闭，失败重新打开
func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cfg := Config{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		MonitoringPeriod: time.Minute,
	}

	t.Run("试探成功后关闭", func(t *testing.T) {
		b := New("test", cfg)
		b.Execute(func() error { return errBoom })
		time.Sleep(20 * time.Millisecond)

		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("half-open probe should pass, got %v", err)
		}
		if b.State() != StateClosed {
			t.Errorf("expected CLOSED after probe success, got %s", b.State())
		}
		if m := b.Metrics(); m.FailureCount != 0 {
			t.Errorf("failure count should reset, got %d", m.FailureCount)
		}
	})

	t.Run("试探失败后重新打开", func(t *testing.T) {
		b := New("test", cfg)
		b.Execute(func() error { return errBoom })
		time.Sleep(20 * time.Millisecond)

		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("half-open probe failure should surface, got %v", err)
		}
		if b.State() != StateOpen {
			t.Errorf("expected OPEN after probe failure, got %s", b.State())
		}

		// 计时器重启：立刻再调用仍被拒绝
		if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen right after reopen, got %v", err)
		}
	})
}

// TestBreaker_MonitoringWindow 超出监控窗口的旧失败不累计
func TestBreaker_MonitoringWindow(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		MonitoringPeriod: 10 * time.Millisecond,
	})

	b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	// 窗口已过：这次失败从 1 重新计数，不触发打开
	b.Execute(func() error { return errBoom })
	if b.State() != StateClosed {
		t.Errorf("stale failure should not count toward threshold, got %s", b.State())
	}
}

// TestBreaker_SuccessResetsCount 成功清零失败计数
func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2, RecoveryTimeout: time.Minute, MonitoringPeriod: time.Minute})

	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })

	if b.State() != StateClosed {
		t.Errorf("interleaved success should reset the count, got %s", b.State())
	}
}

// TestBreaker_ForceOpen 强制打开与强制恢复
func TestBreaker_ForceOpen(t *testing.T) {
	b := New("test", DefaultConfig())

	b.ForceOpen(time.Minute)
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen after ForceOpen, got %v", err)
	}

	b.ForceReset()
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED after ForceReset, got %s", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected pass-through after ForceReset, got %v", err)
	}
}

// TestBreaker_ForceOpenDuration 强制打开的时长到期后允许试探
func TestBreaker_ForceOpenDuration(t *testing.T) {
	b := New("test", DefaultConfig())

	b.ForceOpen(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("probe should pass after forced duration elapsed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}
}

// TestBreaker_Metrics 指标快照内容
func TestBreaker_Metrics(t *testing.T) {
	b := New("render-api", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, MonitoringPeriod: time.Minute})

	m := b.Metrics()
	if m.Name != "render-api" || m.State != StateClosed || m.FailureCount != 0 || m.LastFailureTime != nil {
		t.Errorf("unexpected initial metrics: %+v", m)
	}

	b.Execute(func() error { return errBoom })

	m = b.Metrics()
	if m.FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", m.FailureCount)
	}
	if m.LastFailureTime == nil {
		t.Error("last failure time should be recorded")
	}
}

// TestBreaker_ConcurrentExecute 并发调用下状态一致（竞态检测用）
func TestBreaker_ConcurrentExecute(t *testing.T) {
	b := New("test", Config{FailureThreshold: 50, RecoveryTimeout: time.Minute, MonitoringPeriod: time.Minute})

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(fail bool) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				b.Execute(func() error {
					if fail {
						return errBoom
					}
					return nil
				})
				b.Metrics()
			}
		}(i%2 == 0)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
