// Package progress 进度派生引擎
//
// view.go 包含面向消费方的记忆化视图。
package progress

import (
	"sync"

	"songwatch/internal/shared/model"
	"songwatch/internal/stream"
)

// View 事件日志上的记忆化派生视图
//
// View 组合 Reducer 与产物提取器的输出，只在日志版本号变化时重算。
// 版本号比较是 O(1) 的缓存命中判断，不做深比较——
// 这是性能纪律，不是正确性要求：直接调用 Reduce 的结果总是等价的。
//
// 并发安全：重算在互斥锁下进行，消费方可从任意 goroutine 读取。
type View struct {
	log *stream.EventLog

	mu        sync.Mutex
	version   uint64
	snapshot  *model.ProgressSnapshot
	artifacts map[model.Stage]any
}

// NewView 创建绑定到指定日志的视图
func NewView(log *stream.EventLog) *View {
	return &View{log: log}
}

// Snapshot 返回当前进度快照
//
// 返回值是只读的：每次日志变化都会整体生成新快照，
// 消费方不应修改。
func (v *View) Snapshot() *model.ProgressSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()
	return v.snapshot
}

// Artifact 返回指定阶段的已提交产物（无则为 nil）
func (v *View) Artifact(stage model.Stage) any {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()
	return v.artifacts[stage]
}

// AllArtifacts 返回所有已产出阶段的产物映射
func (v *View) AllArtifacts() map[model.Stage]any {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.refresh()

	// 复制一份，保护缓存不被消费方修改
	artifacts := make(map[model.Stage]any, len(v.artifacts))
	for stage, artifact := range v.artifacts {
		artifacts[stage] = artifact
	}
	return artifacts
}

// ComposedPrompt 返回合成提示词（COMPOSE 阶段的字符串产物）
func (v *View) ComposedPrompt() string {
	if s, ok := v.Artifact(model.StageCompose).(string); ok {
		return s
	}
	return ""
}

// Version 返回视图最近一次重算对应的日志版本号
func (v *View) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// refresh 日志版本号变化时重算派生结果（调用方须持有锁）
//
// 版本号 0（空日志且从未重算）也会触发一次计算，
// 保证零事件时返回全 pending 的初始快照而非 nil。
func (v *View) refresh() {
	current := v.log.Version()
	if v.snapshot != nil && current == v.version {
		return
	}

	events, version := v.log.Snapshot()
	v.snapshot = Reduce(events)
	v.artifacts = ExtractAllArtifacts(events)
	v.version = version
}
