// Package api 路由配置
//
// 本文件定义 HTTP API 路由，将请求分发到对应的处理函数。
package api

import (
	"net/http"

	"songwatch/internal/metrics"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//
// 进度查询 (Progress):
//   - GET /api/v1/progress                  - 当前进度快照
//   - GET /api/v1/artifacts                 - 全部已产出产物
//   - GET /api/v1/artifacts/{stage}         - 指定阶段产物
//
// 熔断器管理 (Breaker):
//   - GET  /api/v1/breakers                 - 全部熔断器指标
//   - GET  /api/v1/breakers/{name}          - 指定熔断器指标
//   - POST /api/v1/breakers/{name}/open     - 强制打开
//   - POST /api/v1/breakers/{name}/reset    - 强制恢复
//   - POST /api/v1/breakers/reset           - 全部强制恢复
//
// WebSocket:
//   - GET /ws/progress                      - 快照实时推送
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", metrics.Handler())

	// Progress 接口
	mux.HandleFunc("GET /api/v1/progress", h.GetProgress)
	mux.HandleFunc("GET /api/v1/artifacts", h.ListArtifacts)
	mux.HandleFunc("GET /api/v1/artifacts/{stage}", h.GetArtifact)

	// Breaker 接口
	mux.HandleFunc("GET /api/v1/breakers", h.ListBreakers)
	mux.HandleFunc("POST /api/v1/breakers/reset", h.ResetAllBreakers)
	mux.HandleFunc("GET /api/v1/breakers/{name}", h.GetBreaker)
	mux.HandleFunc("POST /api/v1/breakers/{name}/open", h.OpenBreaker)
	mux.HandleFunc("POST /api/v1/breakers/{name}/reset", h.ResetBreaker)

	// WebSocket 快照推送
	mux.HandleFunc("GET /ws/progress", h.gateway.HandleWebSocket)

	return mux
}
