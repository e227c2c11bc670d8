// Package api WebSocket 快照网关
//
// 快照网关提供实时进度推送能力，支持前端实时监控生成进度。
// 消费方订阅快照重算结果，但从不修改快照。
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"songwatch/internal/progress"
	"songwatch/internal/shared/model"
	"songwatch/pkg/logging"
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway WebSocket 快照网关
//
// 网关负责：
//   - 管理 WebSocket 连接
//   - 连接建立时推送当前快照
//   - 快照重算后将新快照广播给全部客户端
//   - Run 终止时通知客户端并关闭
type Gateway struct {
	view    *progress.View
	logger  *logging.Logger
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex // 保护 clients 映射
}

// NewGateway 创建快照网关实例
func NewGateway(view *progress.View, logger *logging.Logger) *Gateway {
	return &Gateway{
		view:    view,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/progress
//
// 推送消息格式：
//
//	快照消息：{"type": "snapshot", "data": {...}}
//	状态消息：{"type": "status", "data": {"status": "complete"|"failed"}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	g.addClient(conn)
	defer g.removeClient(conn)

	g.logger.Info("websocket client connected", "clients", g.ClientCount())

	// 建立连接即推送当前快照
	g.send(conn, "snapshot", g.view.Snapshot())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.readPump(conn, cancel)

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// addClient 添加客户端连接
func (g *Gateway) addClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[conn] = true
}

// removeClient 移除客户端连接
func (g *Gateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, conn)
}

// ClientCount 返回当前客户端数量
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// readPump 读取客户端消息
//
// 在独立 goroutine 中运行，处理客户端发送的消息：
//   - 心跳消息（ping）：响应 pong
//   - 连接关闭：取消上下文
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.WithError(err).Warn("websocket read error")
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil {
			if req["type"] == "ping" {
				conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				conn.WriteJSON(map[string]string{"type": "pong"})
			}
		}
	}
}

// Broadcast 向全部客户端广播最新快照
//
// 由快照发布循环在每次重算后调用。Run 终止时额外发送状态通知。
func (g *Gateway) Broadcast(snap *model.ProgressSnapshot) {
	g.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(g.clients))
	for conn := range g.clients {
		conns = append(conns, conn)
	}
	g.mu.RUnlock()

	for _, conn := range conns {
		g.send(conn, "snapshot", snap)

		if snap.IsTerminal() {
			status := "complete"
			if snap.IsFailed {
				status = "failed"
			}
			g.send(conn, "status", map[string]string{"status": status})
		}
	}
}

// send 向单个客户端发送一条类型化消息
func (g *Gateway) send(conn *websocket.Conn, msgType string, data interface{}) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	msg := map[string]interface{}{
		"type": msgType,
		"data": data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		g.logger.WithError(err).Warn("websocket write error")
	}
}
