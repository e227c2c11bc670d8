// Package progress 进度派生引擎
//
// extractor.go 按阶段从事件日志中提取已提交产物。
package progress

import (
	"songwatch/internal/shared/model"
)

// ============================================================================
// 提取策略
// ============================================================================

// extractStrategy 单条产物提取策略
//
// 对 end 事件的 data 载荷尝试一种取值方式，命中时返回 (产物, true)。
// 策略按序尝试，取代嵌套的字段条件判断，便于按阶段扩展。
type extractStrategy func(data map[string]any) (any, bool)

// fieldStrategy 取 data 下指定字段，字段存在且非 null 时命中
func fieldStrategy(field string) extractStrategy {
	return func(data map[string]any) (any, bool) {
		val, ok := data[field]
		if !ok || val == nil {
			return nil, false
		}
		return val, true
	}
}

// stringFieldStrategy 取 data 下指定字段，仅当值为字符串时命中
func stringFieldStrategy(field string) extractStrategy {
	return func(data map[string]any) (any, bool) {
		s, ok := data[field].(string)
		if !ok {
			return nil, false
		}
		return s, true
	}
}

// strategiesFor 返回指定阶段的有序提取策略
//
// 通用优先级：data.artifacts → data.output。
// COMPOSE 额外接受 data.prompt / data.composed_prompt 的单个字符串：
// 合成提示词是唯一产物可能为裸字符串的阶段。
func strategiesFor(stage model.Stage) []extractStrategy {
	if stage == model.StageCompose {
		return []extractStrategy{
			fieldStrategy("artifacts"),
			stringFieldStrategy("prompt"),
			stringFieldStrategy("composed_prompt"),
			fieldStrategy("output"),
		}
	}
	return []extractStrategy{
		fieldStrategy("artifacts"),
		fieldStrategy("output"),
	}
}

// ============================================================================
// 提取入口
// ============================================================================

// ExtractArtifact 提取指定阶段的已提交产物
//
// 查找该阶段最近一次 end 事件（start/fail 事件不产生产物），
// 按策略顺序从 data 取值。data 缺失、data.artifacts 为 null、
// 字段不存在时产物视为"尚未可用"，返回 nil，从不报错。
func ExtractArtifact(events []*model.WorkflowEvent, stage model.Stage) any {
	ev := latestEndEvent(events, stage)
	if ev == nil || ev.Data == nil {
		return nil
	}

	for _, try := range strategiesFor(stage) {
		if artifact, ok := try(ev.Data); ok {
			return artifact
		}
	}
	return nil
}

// ExtractAllArtifacts 提取所有已产出阶段的产物映射
//
// 只包含产物非 nil 的阶段。
func ExtractAllArtifacts(events []*model.WorkflowEvent) map[model.Stage]any {
	artifacts := make(map[model.Stage]any)
	for _, stage := range model.Stages() {
		if artifact := ExtractArtifact(events, stage); artifact != nil {
			artifacts[stage] = artifact
		}
	}
	return artifacts
}

// ExtractComposedPrompt 提取合成提示词
//
// COMPOSE 阶段产物为字符串时原样返回，否则返回空字符串。
func ExtractComposedPrompt(events []*model.WorkflowEvent) string {
	if s, ok := ExtractArtifact(events, model.StageCompose).(string); ok {
		return s
	}
	return ""
}

// latestEndEvent 从日志尾部反向查找指定阶段最近的 end 事件
func latestEndEvent(events []*model.WorkflowEvent, stage model.Stage) *model.WorkflowEvent {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev == nil {
			continue
		}
		if ev.Phase == model.PhaseEnd && ev.StageName() == stage {
			return ev
		}
	}
	return nil
}
