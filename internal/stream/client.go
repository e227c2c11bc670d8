// Package stream 事件流客户端
//
// 客户端对每个 Run 维持一条逻辑 websocket 连接，经熔断器重连，
// 并将收到的事件按到达顺序追加到日志、转发给订阅方。
// 使用场景：
//   - 监控器进程附着到一次生成 Run，持续派生进度快照
//   - 传输层故障只表现为重连（IsRunning 停滞），不向消费方抛错
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"songwatch/internal/breaker"
	"songwatch/internal/metrics"
	"songwatch/internal/shared/model"
	"songwatch/pkg/logging"
)

// ============================================================================
// 配置
// ============================================================================

// Config 事件流客户端配置
type Config struct {
	// BackendURL 后端基地址（ws:// 或 wss://）
	BackendURL string

	// RunID 要附着的 Run
	RunID string

	// DialTimeout websocket 握手超时
	DialTimeout time.Duration

	// InitialBackoff / MaxBackoff 重连退避区间（指数增长，封顶）
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// PingInterval 心跳间隔
	PingInterval time.Duration

	// ReadTimeout 读超时（收到 pong 或消息时顺延）
	ReadTimeout time.Duration

	// Breaker 重连路径使用的熔断器配置
	Breaker breaker.Config
}

// DefaultConfig 返回默认客户端配置
func DefaultConfig(backendURL, runID string) Config {
	return Config{
		BackendURL:     backendURL,
		RunID:          runID,
		DialTimeout:    10 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		Breaker:        breaker.DefaultConfig(),
	}
}

// ============================================================================
// Client - 事件流客户端
// ============================================================================

// subscriber 单个订阅方
//
// done 关闭后停止向该订阅方投递，避免向已退出的消费方阻塞发送。
type subscriber struct {
	ch   chan *model.WorkflowEvent
	done chan struct{}
}

// Client 事件流客户端
//
// 职责：
//   - 对一个 RunID 维持一条逻辑连接
//   - 断线后经熔断器执行指数退避重连（熔断打开期间不拨号）
//   - 收到的事件按到达顺序追加到 EventLog 并转发给全部订阅方
//
// 并发模型：Run 在单个 goroutine 中驱动连接与读取；
// 订阅表由读写锁保护，任意 goroutine 可订阅/退订。
type Client struct {
	cfg     Config
	log     *EventLog
	brk     *breaker.Breaker
	logger  *logging.Logger
	metrics *metrics.Metrics // 可为 nil（测试中不接指标）

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	connected   bool
}

// NewClient 创建事件流客户端
//
// 熔断器从注册表按 "stream:<run_id>" 取得：同一 Run 的所有
// 重连路径共享熔断状态。
func NewClient(cfg Config, registry *breaker.Registry, log *EventLog, logger *logging.Logger) *Client {
	return &Client{
		cfg:         cfg,
		log:         log,
		brk:         registry.GetOrCreate("stream:"+cfg.RunID, cfg.Breaker),
		logger:      logger.WithRunID(cfg.RunID),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// SetMetrics 挂接 Prometheus 指标（可选）
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Log 返回客户端追加的事件日志
func (c *Client) Log() *EventLog {
	return c.log
}

// Breaker 返回重连路径使用的熔断器
func (c *Client) Breaker() *breaker.Breaker {
	return c.brk
}

// Connected 返回当前是否在线
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ============================================================================
// 订阅管理
// ============================================================================

// Subscribe 订阅事件流
//
// 返回事件通道和退订函数。事件按到达顺序投递；
// 消费方退出前必须调用退订函数，否则会阻塞投递。
// Run 收到终止事件或退出时通道被关闭。
func (c *Client) Subscribe() (<-chan *model.WorkflowEvent, func()) {
	sub := &subscriber{
		ch:   make(chan *model.WorkflowEvent, 64),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			c.mu.Lock()
			delete(c.subscribers, sub)
			c.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// publish 将事件按顺序投递给全部订阅方
func (c *Client) publish(ev *model.WorkflowEvent) {
	c.mu.RLock()
	subs := make([]*subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// closeSubscribers 关闭全部订阅通道
func (c *Client) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subscribers {
		close(sub.ch)
		delete(c.subscribers, sub)
	}
}

// setConnected 更新在线状态并同步指标
func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()

	if c.metrics != nil {
		if connected {
			c.metrics.StreamConnected.Set(1)
		} else {
			c.metrics.StreamConnected.Set(0)
		}
	}
}

// ============================================================================
// 连接驱动
// ============================================================================

// Run 驱动连接与读取循环
//
// 阻塞直到 ctx 取消或收到 Run 级终止事件（end/fail）。
// 连接断开不会返回错误：经熔断器退避重连。
// 熔断器打开期间不拨号，等待退避后再试——
// 这是保护不健康后端的核心背压机制。
func (c *Client) Run(ctx context.Context) error {
	defer c.closeSubscribers()

	backoff := c.cfg.InitialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var conn *websocket.Conn
		err := c.brk.Execute(func() error {
			var dialErr error
			conn, dialErr = c.dial(ctx)
			return dialErr
		})
		if err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				if c.metrics != nil {
					c.metrics.BreakerRejectedTotal.WithLabelValues(c.brk.Name()).Inc()
				}
				c.logger.Warn("dial rejected, circuit open", "backoff", backoff.String())
			} else {
				c.logger.WithError(err).Warn("dial failed", "backoff", backoff.String())
				if c.brk.State() == breaker.StateOpen && c.metrics != nil {
					c.metrics.BreakerOpenTotal.WithLabelValues(c.brk.Name()).Inc()
				}
			}

			if c.metrics != nil {
				c.metrics.ReconnectsTotal.Inc()
			}
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		// 连接成功：退避归零
		backoff = c.cfg.InitialBackoff
		c.setConnected(true)
		c.logger.Info("stream connected")

		terminal := c.readLoop(ctx, conn)

		c.setConnected(false)
		conn.Close()

		if terminal {
			c.logger.Info("run reached terminal state, stream closed")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("stream disconnected, reconnecting")
	}
}

// dial 建立一条 websocket 连接
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := strings.TrimRight(c.cfg.BackendURL, "/") + "/ws/runs/" + c.cfg.RunID + "/events"

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	return conn, err
}

// readLoop 读取并处理消息直到连接断开或收到终止事件
//
// 返回 true 表示收到 Run 级终止事件，不再重连。
// 心跳 goroutine 按 PingInterval 发送 ping；pong 顺延读超时。
// ctx 取消通过关闭连接解除 ReadMessage 的阻塞。
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	sessionDone := make(chan struct{})
	defer close(sessionDone)

	go func() {
		pingTicker := time.NewTicker(c.cfg.PingInterval)
		defer pingTicker.Stop()

		for {
			select {
			case <-sessionDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.WithError(err).Warn("stream read error")
			}
			return false
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if terminal := c.handleMessage(raw); terminal {
			return true
		}
	}
}

// handleMessage 处理一条原始消息
//
// 解码失败的消息计入丢弃指标后跳过——数据形状异常不是传输错误，
// 不触发重连。返回是否为 Run 级终止事件。
func (c *Client) handleMessage(raw []byte) bool {
	start := time.Now()

	ev, err := model.DecodeEvent(raw)
	if err != nil {
		if c.metrics != nil {
			c.metrics.EventsDropped.Inc()
		}
		c.logger.WithError(err).Warn("undecodable message dropped")
		return false
	}

	c.log.Append(ev)
	c.publish(ev)

	if c.metrics != nil {
		c.metrics.EventsReceived.WithLabelValues(string(ev.Phase)).Inc()
		c.metrics.ReadLatency.Observe(time.Since(start).Seconds())
	}

	return ev.IsRunLevel() && (ev.Phase == model.PhaseEnd || ev.Phase == model.PhaseFail)
}

// sleep 可中断的退避等待，ctx 取消时返回 false
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff 指数退避，封顶 max
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
