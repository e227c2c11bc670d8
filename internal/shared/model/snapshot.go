// Package model 定义核心数据模型
//
// snapshot.go 包含派生状态相关的数据模型定义：
//   - NodeState：单个阶段的派生状态枚举
//   - ProgressSnapshot：整条流水线的进度快照
package model

// ============================================================================
// NodeState - 阶段状态
// ============================================================================

// NodeState 表示单个阶段的派生状态
//
// 阶段状态不直接存储，由 Reducer 按到达顺序折叠事件日志得出：
//   - pending：尚未观察到任何事件
//   - running：观察到 start，尚未观察到 end/fail
//   - completed：最近一次相位转换为 end
//   - failed：最近一次相位转换为 fail
//
// 同一阶段不会同时处于 completed 和 failed：
// 最近处理的相位覆盖之前的状态（last-write-wins）。
type NodeState string

const (
	// NodeStatePending 等待中：尚无事件
	NodeStatePending NodeState = "pending"

	// NodeStateRunning 执行中：已 start，未结束
	NodeStateRunning NodeState = "running"

	// NodeStateCompleted 已完成：最近相位为 end
	NodeStateCompleted NodeState = "completed"

	// NodeStateFailed 已失败：最近相位为 fail
	NodeStateFailed NodeState = "failed"
)

// IsTerminal 判断阶段是否处于终止状态
func (s NodeState) IsTerminal() bool {
	return s == NodeStateCompleted || s == NodeStateFailed
}

// ============================================================================
// ProgressSnapshot - 进度快照
// ============================================================================

// ProgressSnapshot 流水线进度快照
//
// 快照是只读输出：每次 Reducer 调用从完整事件日志重新生成，
// 从不原地修改，整体被下一次重算结果取代。
//
// 不变式：
//   - NodesCompleted + NodesFailed + NodesInProgress + NodesPending
//     恰好覆盖 9 个已知阶段，无重复
//   - IsRunning / IsComplete / IsFailed 互斥，仅由 Run 级事件驱动
//   - ProgressPercentage = round(100 × (completed+failed) / 9)，
//     失败阶段计入进度：失败代表流水线推进，而非流水线健康
//
// 字段说明：
//   - CurrentNode：当前执行中的阶段（无则为空字符串）
//   - Scores：合并后的打分表（VALIDATE end 事件的 data.scores）
//   - Issues：累计问题列表（含来源阶段与时间戳）
//   - PhaseReversals：诊断计数，观察到 completed/failed 互相翻转的次数；
//     只计数，不改变 last-write-wins 的解析结果
type ProgressSnapshot struct {
	RunID              string             `json:"run_id,omitempty"`
	CurrentNode        string             `json:"current_node,omitempty"`
	NodesCompleted     []Stage            `json:"nodes_completed"`
	NodesFailed        []Stage            `json:"nodes_failed"`
	NodesInProgress    []Stage            `json:"nodes_in_progress"`
	NodesPending       []Stage            `json:"nodes_pending"`
	ProgressPercentage int                `json:"progress_percentage"`
	Scores             map[string]float64 `json:"scores"`
	Issues             []StampedIssue     `json:"issues"`
	TotalNodes         int                `json:"total_nodes"`
	IsRunning          bool               `json:"is_running"`
	IsComplete         bool               `json:"is_complete"`
	IsFailed           bool               `json:"is_failed"`
	PhaseReversals     int                `json:"phase_reversals,omitempty"`
}

// NodeState 返回指定阶段在快照中的状态
func (s *ProgressSnapshot) NodeState(stage Stage) NodeState {
	for _, st := range s.NodesCompleted {
		if st == stage {
			return NodeStateCompleted
		}
	}
	for _, st := range s.NodesFailed {
		if st == stage {
			return NodeStateFailed
		}
	}
	for _, st := range s.NodesInProgress {
		if st == stage {
			return NodeStateRunning
		}
	}
	return NodeStatePending
}

// IsTerminal 判断 Run 是否处于终止状态
func (s *ProgressSnapshot) IsTerminal() bool {
	return s.IsComplete || s.IsFailed
}

// HasErrors 判断累计问题中是否存在 error 级别
func (s *ProgressSnapshot) HasErrors() bool {
	for _, issue := range s.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
