package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"Chorus/internal/model"
	"Chorus/internal/moderation"
)

func autoPolicy() *model.AgentPolicy {
	p := model.DefaultPolicy(1)
	p.RequireHumanReview = false
	return p
}

func TestClassifyThresholds(t *testing.T) {
	// 默认阈值 approve=20 reject=80 maxRisk=90，人审关闭
	cases := []struct {
		name   string
		score  int
		status string
	}{
		{"低分直接发布", 10, model.ActionStatusPublished},
		{"恰好等于通过阈值", 20, model.ActionStatusPublished},
		{"灰色区间送人审", 50, model.ActionStatusNeedsReview},
		{"恰好等于拒绝阈值", 80, model.ActionStatusRejected},
		{"高分拒绝", 95, model.ActionStatusRejected},
		{"负分夹到 0 后发布", -5, model.ActionStatusPublished},
		{"超 100 夹回后拒绝", 150, model.ActionStatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Classify(autoPolicy(), tc.score, "ok")
			assert.Equal(t, tc.status, d.Status)
		})
	}
}

func TestClassifyMaxRiskScore(t *testing.T) {
	p := autoPolicy()
	p.AutoRejectThreshold = 100
	p.MaxRiskScore = 60

	// 没到自动拒绝阈值，但超过风险上限，仍然拒绝
	d := Classify(p, 70, "ok")
	assert.Equal(t, model.ActionStatusRejected, d.Status)
}

func TestClassifyHumanReviewOverride(t *testing.T) {
	// 人审开关打开：本应自动发布的低分也要送队列
	p := model.DefaultPolicy(1)
	assert.True(t, p.RequireHumanReview)

	d := Classify(p, 5, "ok")
	assert.Equal(t, model.ActionStatusNeedsReview, d.Status)
}

func TestClassifyLLMOffForcesReview(t *testing.T) {
	// 未评分 ≠ 安全：llm_off 永远不能自动发布，哪怕 0 分且人审关闭
	d := Classify(autoPolicy(), 0, moderation.ReasonLLMOff)
	assert.Equal(t, model.ActionStatusNeedsReview, d.Status)
	assert.Equal(t, moderation.ReasonLLMOff, d.Reason)
}

func TestHitsBannedTopic(t *testing.T) {
	p := model.DefaultPolicy(1)
	p.BannedTopics = []byte(`["politics", "crypto"]`)

	tag, hit := HitsBannedTopic(p, []byte(`["tech", "crypto"]`))
	assert.True(t, hit)
	assert.Equal(t, "crypto", tag)

	_, hit = HitsBannedTopic(p, []byte(`["tech", "food"]`))
	assert.False(t, hit)

	// 空禁止列表永不命中
	p.BannedTopics = []byte(`[]`)
	_, hit = HitsBannedTopic(p, []byte(`["politics"]`))
	assert.False(t, hit)

	// 没有标签的人设不命中
	p.BannedTopics = []byte(`["politics"]`)
	_, hit = HitsBannedTopic(p, nil)
	assert.False(t, hit)
}
