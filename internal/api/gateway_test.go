// Package api WebSocket 快照网关测试
package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songwatch/internal/shared/model"
)

// wsMessage 网关推送的类型化消息
type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// dialGateway 连接网关并等待注册完成
func dialGateway(t *testing.T, f *fixture) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(f.handler.Router())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	cleanup := func() {
		conn.Close()
		srv.Close()
	}
	return conn, cleanup
}

// readMessage 读取一条类型化消息
func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// TestGateway_InitialSnapshot 连接建立即收到当前快照
func TestGateway_InitialSnapshot(t *testing.T) {
	f := newFixture(t)
	f.appendEvent(model.StagePlan, model.PhaseStart, nil)

	conn, cleanup := dialGateway(t, f)
	defer cleanup()

	msg := readMessage(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "PLAN", msg.Data["current_node"])
	assert.Equal(t, float64(0), msg.Data["progress_percentage"])
}

// TestGateway_PingPong 心跳消息得到 pong 响应
func TestGateway_PingPong(t *testing.T) {
	f := newFixture(t)

	conn, cleanup := dialGateway(t, f)
	defer cleanup()

	readMessage(t, conn) // 初始快照

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}

// TestGateway_BroadcastSnapshot 重算后的快照广播给全部客户端
func TestGateway_BroadcastSnapshot(t *testing.T) {
	f := newFixture(t)

	conn, cleanup := dialGateway(t, f)
	defer cleanup()

	readMessage(t, conn) // 初始快照

	// 追加事件并广播新快照
	f.appendEvent(model.StageStyle, model.PhaseStart, nil)
	f.appendEvent(model.StageStyle, model.PhaseEnd, nil)
	f.handler.Gateway().Broadcast(f.handler.view.Snapshot())

	msg := readMessage(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, float64(11), msg.Data["progress_percentage"])
}

// TestGateway_TerminalStatus Run 终止时额外推送状态通知
func TestGateway_TerminalStatus(t *testing.T) {
	f := newFixture(t)

	conn, cleanup := dialGateway(t, f)
	defer cleanup()

	readMessage(t, conn) // 初始快照

	f.log.Append(&model.WorkflowEvent{
		EventID: "evt-run-fail",
		RunID:   "run-test",
		Phase:   model.PhaseFail,
	})
	f.handler.Gateway().Broadcast(f.handler.view.Snapshot())

	snapMsg := readMessage(t, conn)
	assert.Equal(t, "snapshot", snapMsg.Type)
	assert.Equal(t, true, snapMsg.Data["is_failed"])

	statusMsg := readMessage(t, conn)
	assert.Equal(t, "status", statusMsg.Type)
	assert.Equal(t, "failed", statusMsg.Data["status"])
}

// TestGateway_ClientCount 连接登记与注销
func TestGateway_ClientCount(t *testing.T) {
	f := newFixture(t)

	conn, cleanup := dialGateway(t, f)

	readMessage(t, conn) // 确保注册已完成
	assert.Equal(t, 1, f.handler.Gateway().ClientCount())

	cleanup()

	// 等待服务端感知断开
	deadline := time.Now().Add(2 * time.Second)
	for f.handler.Gateway().ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, f.handler.Gateway().ClientCount())
}
