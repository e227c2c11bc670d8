// Package api 熔断器管理接口
//
// 管理面供运维和测试工具使用，不参与正常数据流：
// Reducer 从不读取熔断器状态。
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// ListBreakers 列出全部熔断器指标
//
// 路由: GET /api/v1/breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":     h.registry.Size(),
		"breakers": h.registry.MetricsAll(),
	})
}

// GetBreaker 获取指定熔断器指标
//
// 路由: GET /api/v1/breakers/{name}
func (h *Handler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	b, ok := h.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "breaker not found: "+name)
		return
	}

	writeJSON(w, http.StatusOK, b.Metrics())
}

// OpenBreaker 强制打开指定熔断器
//
// 路由: POST /api/v1/breakers/{name}/open
//
// 请求体：{"duration_ms": 60000}，缺省 60 秒。
func (h *Handler) OpenBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	b, ok := h.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "breaker not found: "+name)
		return
	}

	var req struct {
		DurationMs int64 `json:"duration_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DurationMs <= 0 {
		req.DurationMs = 60_000
	}

	d := time.Duration(req.DurationMs) * time.Millisecond
	b.ForceOpen(d)
	h.logger.Warn("breaker force-opened", "breaker", name, "duration", d.String())

	writeJSON(w, http.StatusOK, b.Metrics())
}

// ResetBreaker 强制恢复指定熔断器
//
// 路由: POST /api/v1/breakers/{name}/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	b, ok := h.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "breaker not found: "+name)
		return
	}

	b.ForceReset()
	h.logger.Info("breaker force-reset", "breaker", name)

	writeJSON(w, http.StatusOK, b.Metrics())
}

// ResetAllBreakers 强制恢复全部熔断器
//
// 路由: POST /api/v1/breakers/reset
func (h *Handler) ResetAllBreakers(w http.ResponseWriter, r *http.Request) {
	h.registry.ResetAll()
	h.logger.Info("all breakers force-reset", "size", h.registry.Size())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":     h.registry.Size(),
		"breakers": h.registry.MetricsAll(),
	})
}
