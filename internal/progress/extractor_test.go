// Package progress 产物提取测试
package progress

import (
	"testing"

	"songwatch/internal/shared/model"
)

// endEvent 构造一条携带 data 的 end 事件
func endEvent(stage model.Stage, data map[string]any) *model.WorkflowEvent {
	ev := stageEvent(stage, model.PhaseEnd)
	ev.Data = data
	return ev
}

// TestExtractArtifact_ArtifactsFirst data.artifacts 优先于 data.output
func TestExtractArtifact_ArtifactsFirst(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StageLyrics, map[string]any{
			"artifacts": map[string]any{"verses": []any{"v1", "v2"}},
			"output":    "ignored",
		}),
	}

	artifact := ExtractArtifact(log, model.StageLyrics)
	m, ok := artifact.(map[string]any)
	if !ok {
		t.Fatalf("expected artifacts map, got %T", artifact)
	}
	if _, ok := m["verses"]; !ok {
		t.Errorf("expected verses in artifacts, got %v", m)
	}
}

// TestExtractArtifact_OutputFallback artifacts 缺失时退回 data.output
func TestExtractArtifact_OutputFallback(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StagePlan, map[string]any{"output": map[string]any{"sections": 5.0}}),
	}

	artifact := ExtractArtifact(log, model.StagePlan)
	if artifact == nil {
		t.Fatal("expected output fallback to hit")
	}
}

// TestExtractArtifact_ComposeBareString COMPOSE 的裸字符串 output 原样返回
func TestExtractArtifact_ComposeBareString(t *testing.T) {
	const prompt = "upbeat synthpop, female vocals, 120bpm"
	log := []*model.WorkflowEvent{
		endEvent(model.StageCompose, map[string]any{"output": prompt}),
	}

	if got := ExtractArtifact(log, model.StageCompose); got != prompt {
		t.Errorf("expected bare string unchanged, got %v", got)
	}
	if got := ExtractComposedPrompt(log); got != prompt {
		t.Errorf("ExtractComposedPrompt: expected %q, got %q", prompt, got)
	}
}

// TestExtractArtifact_ComposePromptFields COMPOSE 接受 prompt / composed_prompt 字符串
func TestExtractArtifact_ComposePromptFields(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"prompt 字段", map[string]any{"prompt": "p1"}, "p1"},
		{"composed_prompt 字段", map[string]any{"composed_prompt": "p2"}, "p2"},
		{"prompt 优先于 composed_prompt", map[string]any{"prompt": "p1", "composed_prompt": "p2"}, "p1"},
		{"artifacts 优先于 prompt", map[string]any{"artifacts": "art", "prompt": "p1"}, "art"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := []*model.WorkflowEvent{endEvent(model.StageCompose, tt.data)}
			if got := ExtractArtifact(log, model.StageCompose); got != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

// TestExtractArtifact_PromptFieldNotString COMPOSE 的 prompt 非字符串时不命中
func TestExtractArtifact_PromptFieldNotString(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StageCompose, map[string]any{
			"prompt": 42.0,
			"output": "fallback",
		}),
	}

	if got := ExtractArtifact(log, model.StageCompose); got != "fallback" {
		t.Errorf("non-string prompt must fall through to output, got %v", got)
	}
}

// TestExtractArtifact_NotAvailable 尚未可用的各种形态都返回 nil
func TestExtractArtifact_NotAvailable(t *testing.T) {
	tests := []struct {
		name string
		log  []*model.WorkflowEvent
	}{
		{"空日志", nil},
		{"只有 start 事件", []*model.WorkflowEvent{stageEvent(model.StagePlan, model.PhaseStart)}},
		{"只有 fail 事件", []*model.WorkflowEvent{stageEvent(model.StagePlan, model.PhaseFail)}},
		{"end 但 data 缺失", []*model.WorkflowEvent{stageEvent(model.StagePlan, model.PhaseEnd)}},
		{"data.artifacts 为 null", []*model.WorkflowEvent{
			endEvent(model.StagePlan, map[string]any{"artifacts": nil}),
		}},
		{"data 无相关字段", []*model.WorkflowEvent{
			endEvent(model.StagePlan, map[string]any{"unrelated": 1.0}),
		}},
		{"其他阶段的 end", []*model.WorkflowEvent{
			endEvent(model.StageStyle, map[string]any{"output": "x"}),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractArtifact(tt.log, model.StagePlan); got != nil {
				t.Errorf("expected nil, got %v", got)
			}
		})
	}
}

// TestExtractArtifact_MostRecentEndWins 同阶段多次 end 取最近一次
func TestExtractArtifact_MostRecentEndWins(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StageFix, map[string]any{"output": "first"}),
		stageEvent(model.StageFix, model.PhaseStart),
		endEvent(model.StageFix, map[string]any{"output": "second"}),
	}

	if got := ExtractArtifact(log, model.StageFix); got != "second" {
		t.Errorf("expected most recent end to win, got %v", got)
	}
}

// TestExtractArtifact_NilEventsTolerated 日志中的 nil 条目被跳过
func TestExtractArtifact_NilEventsTolerated(t *testing.T) {
	log := []*model.WorkflowEvent{
		nil,
		endEvent(model.StageReview, map[string]any{"output": "verdict"}),
		nil,
	}

	if got := ExtractArtifact(log, model.StageReview); got != "verdict" {
		t.Errorf("expected verdict, got %v", got)
	}
}

// TestExtractAllArtifacts 只包含产物非 nil 的阶段
func TestExtractAllArtifacts(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StagePlan, map[string]any{"output": "plan"}),
		endEvent(model.StageCompose, map[string]any{"prompt": "prompt"}),
		stageEvent(model.StageStyle, model.PhaseEnd), // data 缺失，不产出
		stageEvent(model.StageRender, model.PhaseStart),
	}

	all := ExtractAllArtifacts(log)

	if len(all) != 2 {
		t.Fatalf("expected 2 artifacts, got %d: %v", len(all), all)
	}
	if all[model.StagePlan] != "plan" || all[model.StageCompose] != "prompt" {
		t.Errorf("unexpected artifacts: %v", all)
	}
}

// TestExtractComposedPrompt_NotString COMPOSE 产物非字符串时返回空串
func TestExtractComposedPrompt_NotString(t *testing.T) {
	log := []*model.WorkflowEvent{
		endEvent(model.StageCompose, map[string]any{"artifacts": map[string]any{"k": "v"}}),
	}

	if got := ExtractComposedPrompt(log); got != "" {
		t.Errorf("expected empty string for non-string artifact, got %q", got)
	}
}
