// Package policy 阈值分类：把评分映射到动作的最终去向
package policy

import (
	"encoding/json"

	"Chorus/internal/model"
	"Chorus/internal/moderation"
)

// Disposition 策略裁决结果
type Disposition struct {
	Status string // published / rejected / needs_review
	Reason string
}

// Classify 按组织策略给分数定去向
// 1. score > MaxRiskScore 或 >= AutoRejectThreshold -> rejected
// 2. score <= AutoApproveThreshold -> published，但 RequireHumanReview 打开时降级为 needs_review
// 3. 其余 -> needs_review
// 传入前分数必须已 Clamp 到 [0,100]
func Classify(p *model.AgentPolicy, score int, reason string) Disposition {
	score = moderation.Clamp(score)

	// llm_off：内容没有真正被评分，强制人审，绝不自动发布
	if reason == moderation.ReasonLLMOff {
		return Disposition{Status: model.ActionStatusNeedsReview, Reason: moderation.ReasonLLMOff}
	}

	if score > p.MaxRiskScore {
		return Disposition{Status: model.ActionStatusRejected, Reason: "超过风险分上限"}
	}
	if score >= p.AutoRejectThreshold {
		return Disposition{Status: model.ActionStatusRejected, Reason: "评分达到自动拒绝阈值"}
	}
	if score <= p.AutoApproveThreshold {
		if p.RequireHumanReview {
			return Disposition{Status: model.ActionStatusNeedsReview, Reason: "组织开启人工审核"}
		}
		return Disposition{Status: model.ActionStatusPublished, Reason: reason}
	}
	return Disposition{Status: model.ActionStatusNeedsReview, Reason: "评分处于灰色区间"}
}

// HitsBannedTopic 禁止话题检查：在评分之前短路执行
// persona 的话题标签与组织禁止列表做精确交集，命中直接拒绝，评分器根本不会被调用
func HitsBannedTopic(p *model.AgentPolicy, topicTags []byte) (string, bool) {
	banned := decodeTags(p.BannedTopics)
	if len(banned) == 0 {
		return "", false
	}
	var tags []string
	if len(topicTags) > 0 {
		_ = json.Unmarshal(topicTags, &tags)
	}
	for _, tag := range tags {
		if _, ok := banned[tag]; ok {
			return tag, true
		}
	}
	return "", false
}

func decodeTags(raw []byte) map[string]struct{} {
	var tags []string
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
