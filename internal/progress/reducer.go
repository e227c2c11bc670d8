// Package progress 进度派生引擎
//
// 将到达顺序排列的事件日志折叠为一致的进度快照：
//   - reducer.go：纯函数 Reduce，事件日志 → ProgressSnapshot
//   - extractor.go：按阶段提取已提交产物
//   - view.go：基于日志版本号的记忆化视图
//
// 本包不做任何 I/O，也从不阻塞：Reduce 可以在每条消息到达时
// 安全调用，无需加锁（输入是调用时刻的日志快照）。
package progress

import (
	"math"

	"songwatch/internal/shared/model"
)

// Reduce 将事件日志折叠为进度快照
//
// 纯函数、确定、全函数：不抛出异常，字段缺失或形状异常时
// 局部降级为"无数据"，不中断折叠。
//
// 算法：9 个已知阶段初始化为 pending，严格按日志顺序
// （即接收顺序，不是 timestamp）折叠：
//   - Run 级事件（NodeName 为空）驱动 IsRunning/IsComplete/IsFailed
//   - 阶段事件 last-write-wins：最近处理的相位覆盖之前的状态，
//     end 晚于过期的 fail 到达时以 end 为准（反之亦然）。
//     这使 Reducer 天然容忍乱序投递，代价是无法识别真实异常；
//     PhaseReversals 只做诊断计数，不改变解析结果
//   - VALIDATE end 事件的 data.scores 并入打分表（同 key 后值覆盖）
//   - 每个事件的 issues 追加到累计问题列表，盖上来源阶段与时间戳
//   - 进度 = round(100 × (completed+failed) / 9)
//   - 输出列表在折叠结束后一次性派生，保证读到一致的最终结果
func Reduce(events []*model.WorkflowEvent) *model.ProgressSnapshot {
	states := make(map[model.Stage]model.NodeState, model.TotalStages)
	for _, stage := range model.Stages() {
		states[stage] = model.NodeStatePending
	}

	snap := &model.ProgressSnapshot{
		Scores:     map[string]float64{},
		Issues:     []model.StampedIssue{},
		TotalNodes: model.TotalStages,
	}

	current := ""

	for _, ev := range events {
		if ev == nil {
			continue
		}

		if snap.RunID == "" && ev.RunID != "" {
			snap.RunID = ev.RunID
		}

		// 问题归集不区分事件种类：只要携带 issues 就累计
		for _, issue := range ev.Issues {
			snap.Issues = append(snap.Issues, model.StampedIssue{
				Issue:     issue,
				NodeName:  ev.NodeName,
				Timestamp: ev.Timestamp,
			})
		}

		if ev.IsRunLevel() {
			applyRunPhase(snap, ev.Phase)
			continue
		}

		stage := ev.StageName()
		if !model.IsValidStage(ev.NodeName) {
			// 未知阶段：不计入 9 个已知阶段的状态与进度
			continue
		}

		prev := states[stage]

		switch ev.Phase {
		case model.PhaseStart:
			states[stage] = model.NodeStateRunning
			current = ev.NodeName

		case model.PhaseEnd:
			if prev == model.NodeStateFailed {
				snap.PhaseReversals++
			}
			states[stage] = model.NodeStateCompleted
			if current == ev.NodeName {
				current = ""
			}
			if stage == model.StageValidate {
				mergeScores(snap.Scores, ev.Data)
			}

		case model.PhaseFail:
			if prev == model.NodeStateCompleted {
				snap.PhaseReversals++
			}
			states[stage] = model.NodeStateFailed
			if current == ev.NodeName {
				current = ""
			}
		}
	}

	snap.CurrentNode = current
	deriveLists(snap, states)
	return snap
}

// applyRunPhase 应用 Run 级事件的相位转换
//
// IsRunning / IsComplete / IsFailed 互斥，由最近的 Run 级事件决定。
func applyRunPhase(snap *model.ProgressSnapshot, phase model.Phase) {
	switch phase {
	case model.PhaseStart:
		snap.IsRunning = true
		snap.IsComplete = false
		snap.IsFailed = false
	case model.PhaseEnd:
		snap.IsRunning = false
		snap.IsComplete = true
		snap.IsFailed = false
	case model.PhaseFail:
		snap.IsRunning = false
		snap.IsComplete = false
		snap.IsFailed = true
	}
}

// mergeScores 将 data.scores 的数值项并入打分表
//
// scores 缺失、为 null、或不是对象时不做任何事；
// 非数值项逐个跳过。重复 VALIDATE 完成时同 key 后值覆盖。
func mergeScores(dst map[string]float64, data map[string]any) {
	if data == nil {
		return
	}
	scores, ok := data["scores"].(map[string]any)
	if !ok {
		return
	}
	for key, val := range scores {
		if num, ok := val.(float64); ok {
			dst[key] = num
		}
	}
}

// deriveLists 折叠结束后一次性派生输出列表与进度百分比
//
// 列表按阶段的规范顺序排列，completed+failed+inProgress+pending
// 恰好覆盖 9 个阶段。
func deriveLists(snap *model.ProgressSnapshot, states map[model.Stage]model.NodeState) {
	snap.NodesCompleted = []model.Stage{}
	snap.NodesFailed = []model.Stage{}
	snap.NodesInProgress = []model.Stage{}
	snap.NodesPending = []model.Stage{}

	for _, stage := range model.Stages() {
		switch states[stage] {
		case model.NodeStateCompleted:
			snap.NodesCompleted = append(snap.NodesCompleted, stage)
		case model.NodeStateFailed:
			snap.NodesFailed = append(snap.NodesFailed, stage)
		case model.NodeStateRunning:
			snap.NodesInProgress = append(snap.NodesInProgress, stage)
		default:
			snap.NodesPending = append(snap.NodesPending, stage)
		}
	}

	advanced := len(snap.NodesCompleted) + len(snap.NodesFailed)
	snap.ProgressPercentage = int(math.Round(100 * float64(advanced) / float64(model.TotalStages)))
}
