// Package model 定义核心数据模型
//
// event.go 包含事件流相关的数据模型定义：
//   - WorkflowEvent：流水线生命周期事件（追加式日志条目）
//   - Stage：流水线阶段枚举（9 个固定阶段）
//   - Phase：事件生命周期标记
//   - Issue：事件携带的问题记录
package model

import (
	"encoding/json"
)

// ============================================================================
// Stage - 流水线阶段
// ============================================================================

// Stage 表示歌曲生成流水线中的一个固定阶段
//
// 流水线由 9 个有序阶段组成，每次 Run 按顺序经过这些阶段。
// 阶段集合是封闭的：不存在动态注册的阶段。Reducer 对未知阶段名
// 同样容忍（记录状态但不计入 9 个已知阶段的进度）。
type Stage string

const (
	// StagePlan 规划：解析创作意图，生成整体规划
	StagePlan Stage = "PLAN"

	// StageStyle 风格：确定曲风与参考风格标签
	StageStyle Stage = "STYLE"

	// StageLyrics 歌词：生成歌词文本
	StageLyrics Stage = "LYRICS"

	// StageProducer 制作：编曲结构与制作说明
	StageProducer Stage = "PRODUCER"

	// StageCompose 合成提示词：生成下游渲染引擎使用的合成提示词
	// 唯一产物可能是裸字符串（而非结构化对象）的阶段
	StageCompose Stage = "COMPOSE"

	// StageValidate 校验：质量打分（end 事件携带 data.scores）
	StageValidate Stage = "VALIDATE"

	// StageFix 修复：针对校验问题的自动修复
	StageFix Stage = "FIX"

	// StageRender 渲染：调用渲染引擎生成音频
	StageRender Stage = "RENDER"

	// StageReview 审阅：终审与交付
	StageReview Stage = "REVIEW"
)

// TotalStages 流水线阶段总数
const TotalStages = 9

// Stages 返回全部 9 个阶段的规范顺序
//
// 每次调用返回新切片，调用方可以安全修改。
func Stages() []Stage {
	return []Stage{
		StagePlan,
		StageStyle,
		StageLyrics,
		StageProducer,
		StageCompose,
		StageValidate,
		StageFix,
		StageRender,
		StageReview,
	}
}

// IsValidStage 判断名称是否为已知阶段
func IsValidStage(name string) bool {
	switch Stage(name) {
	case StagePlan, StageStyle, StageLyrics, StageProducer, StageCompose,
		StageValidate, StageFix, StageRender, StageReview:
		return true
	default:
		return false
	}
}

// ============================================================================
// Phase - 事件生命周期标记
// ============================================================================

// Phase 表示单个事件相对于阶段（或整个 Run）的生命周期标记
type Phase string

const (
	// PhaseStart 开始执行
	PhaseStart Phase = "start"

	// PhaseEnd 正常结束
	PhaseEnd Phase = "end"

	// PhaseFail 执行失败
	PhaseFail Phase = "fail"
)

// ============================================================================
// Issue - 问题记录
// ============================================================================

// IssueSeverity 问题严重级别
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// Issue 事件携带的单条问题记录
type Issue struct {
	Severity IssueSeverity `json:"severity"`        // 严重级别
	Message  string        `json:"message"`         // 问题描述
	Code     string        `json:"code,omitempty"`  // 问题编码（可选）
	Field    string        `json:"field,omitempty"` // 关联字段（可选）
}

// StampedIssue 归集后的问题记录
//
// Reducer 将事件的 issues 追加到快照的问题列表时，盖上来源阶段和
// 事件时间戳。时间戳原样保留（不解析）：事件 timestamp 仅供展示，
// 不参与排序。
type StampedIssue struct {
	Issue
	NodeName  string `json:"node_name,omitempty"` // 来源阶段（Run 级事件为空）
	Timestamp string `json:"timestamp,omitempty"` // 事件时间戳（原样）
}

// ============================================================================
// WorkflowEvent - 流水线生命周期事件
// ============================================================================

// WorkflowEvent 流水线生命周期事件
//
// WorkflowEvent 是后端推送的不可变日志条目：
//   - 每个事件属于一次 Run（RunID）
//   - NodeName 为空表示 Run 级事件（整体开始/结束/失败）
//   - Timestamp 仅供展示：处理顺序由到达顺序决定，不看此字段
//   - Data 为阶段相关的任意载荷（产物、元数据）
//
// 字段说明：
//   - EventID：事件唯一标识（不透明字符串）
//   - RunID：所属 Run
//   - Timestamp：ISO-8601 字符串
//   - NodeName：9 个已知阶段之一，或空（Run 级事件）
//   - Phase：start / end / fail
//   - Metrics：任意 key→number 指标（可为空）
//   - Issues：问题列表（有序）
//   - Data：任意载荷
type WorkflowEvent struct {
	EventID   string             `json:"event_id"`
	RunID     string             `json:"run_id"`
	Timestamp string             `json:"timestamp"`
	NodeName  string             `json:"node_name,omitempty"`
	Phase     Phase              `json:"phase"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Issues    []Issue            `json:"issues,omitempty"`
	Data      map[string]any     `json:"data,omitempty"`
}

// IsRunLevel 判断是否为 Run 级事件（NodeName 为空）
func (e *WorkflowEvent) IsRunLevel() bool {
	return e.NodeName == ""
}

// StageName 返回事件所属阶段
func (e *WorkflowEvent) StageName() Stage {
	return Stage(e.NodeName)
}

// ============================================================================
// 解码
// ============================================================================

// DecodeEvent 从 JSON 字节解码事件
//
// 解码逐字段容忍：单个字段形状异常（data 不是对象、metrics 混入
// 字符串、node_name 为 null）只丢弃该字段，不影响其余字段，也不报错。
// 只有整体不是 JSON 对象时才返回错误，此时事件视为不可用。
func DecodeEvent(raw []byte) (*WorkflowEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	ev := &WorkflowEvent{}

	decodeString(fields["event_id"], &ev.EventID)
	decodeString(fields["run_id"], &ev.RunID)
	decodeString(fields["timestamp"], &ev.Timestamp)
	decodeString(fields["node_name"], &ev.NodeName)

	var phase string
	decodeString(fields["phase"], &phase)
	ev.Phase = Phase(phase)

	if raw, ok := fields["metrics"]; ok {
		// 混入非数值时整体丢弃 metrics，保留其余字段
		var metrics map[string]float64
		if json.Unmarshal(raw, &metrics) == nil {
			ev.Metrics = metrics
		}
	}

	if raw, ok := fields["issues"]; ok {
		var issues []Issue
		if json.Unmarshal(raw, &issues) == nil {
			ev.Issues = issues
		}
	}

	if raw, ok := fields["data"]; ok {
		var data map[string]any
		if json.Unmarshal(raw, &data) == nil {
			ev.Data = data
		}
	}

	return ev, nil
}

// decodeString 解码单个字符串字段，null 或类型不符时保持零值
func decodeString(raw json.RawMessage, dst *string) {
	if raw == nil {
		return
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		*dst = s
	}
}
