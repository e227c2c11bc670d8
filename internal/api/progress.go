// Package api 进度与产物接口
package api

import (
	"net/http"

	"songwatch/internal/shared/model"
)

// GetProgress 获取当前进度快照
//
// 路由: GET /api/v1/progress
//
// 返回 Reducer 派生的只读快照。消费方只读不改：
// 每次日志变化后快照整体被新结果取代。
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view.Snapshot())
}

// ListArtifacts 获取全部已产出产物
//
// 路由: GET /api/v1/artifacts
//
// 只包含产物非空的阶段。
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view.AllArtifacts())
}

// GetArtifact 获取指定阶段产物
//
// 路由: GET /api/v1/artifacts/{stage}
//
// 路径参数：
//   - stage: 9 个阶段标识之一（如 COMPOSE）
//
// 阶段未产出时返回 404（产物"尚未可用"，不是错误状态）。
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("stage")
	if !model.IsValidStage(name) {
		writeError(w, http.StatusBadRequest, "unknown stage: "+name)
		return
	}

	artifact := h.view.Artifact(model.Stage(name))
	if artifact == nil {
		writeError(w, http.StatusNotFound, "artifact not yet available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stage":    name,
		"artifact": artifact,
	})
}
