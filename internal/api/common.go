// Package api 提供 HTTP API 处理器
//
// 本包实现监控器的对外查询与管理接口，包括：
//   - 进度快照查询（Progress）接口
//   - 产物查询（Artifact）接口
//   - 熔断器管理（Breaker）接口
//   - WebSocket 快照实时推送
//
// 文件组织：
//   - common.go: 通用工具函数和 Handler 定义
//   - handler.go: 路由配置
//   - progress.go: 进度与产物接口
//   - breakers.go: 熔断器管理接口
//   - gateway.go: WebSocket 快照网关
package api

import (
	"encoding/json"
	"net/http"

	"songwatch/internal/breaker"
	"songwatch/internal/progress"
	"songwatch/internal/stream"
	"songwatch/pkg/logging"
)

// Handler API 处理器
//
// Handler 是所有 HTTP 接口的入口，负责：
//   - 路由请求到对应的处理函数
//   - 持有进度视图与熔断器注册表（均为注入依赖）
//   - 协调 WebSocket 快照网关
type Handler struct {
	runID    string
	view     *progress.View
	client   *stream.Client
	registry *breaker.Registry
	gateway  *Gateway
	logger   *logging.Logger
}

// NewHandler 创建 Handler 实例
//
// 参数：
//   - runID: 监控的 Run
//   - view: 进度派生视图
//   - client: 事件流客户端（用于在线状态与快照推送）
//   - registry: 熔断器注册表（注入，不使用全局状态）
func NewHandler(runID string, view *progress.View, client *stream.Client, registry *breaker.Registry, logger *logging.Logger) *Handler {
	h := &Handler{
		runID:    runID,
		view:     view,
		client:   client,
		registry: registry,
		logger:   logger,
	}
	h.gateway = NewGateway(view, logger)
	return h
}

// Gateway 返回 WebSocket 快照网关
func (h *Handler) Gateway() *Gateway {
	return h.gateway
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 返回监控器自身状态与事件流在线情况。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"run_id":    h.runID,
		"connected": h.client.Connected(),
	})
}
