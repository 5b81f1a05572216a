package model

import "gorm.io/datatypes"

// AgentPolicy 每个组织有且只有一条 (uniqueIndex 保证)
// 首次访问时懒创建，默认值见 DefaultPolicy
type AgentPolicy struct {
	BaseModel
	OrgID uint `gorm:"uniqueIndex;not null" json:"org_id"`

	// 行为开关
	AllowReplies   bool `gorm:"default:true" json:"allow_replies"`
	AllowReactions bool `gorm:"default:true" json:"allow_reactions"`
	AllowCritique  bool `gorm:"default:false" json:"allow_critique"`

	// 评分阈值 (0-100)
	// score <= AutoApproveThreshold -> 直接发布 (除非 RequireHumanReview)
	// score >= AutoRejectThreshold  -> 直接拒绝
	// 中间区间 -> needs_review
	AutoApproveThreshold int `gorm:"default:20" json:"auto_approve_threshold"`
	AutoRejectThreshold  int `gorm:"default:80" json:"auto_reject_threshold"`

	// 任何 Agent 内容的风险分上限，超过直接拒绝
	MaxRiskScore int `gorm:"default:90" json:"max_risk_score"`

	// 人审开关：打开后自动通过被降级为 needs_review
	RequireHumanReview bool `gorm:"default:true" json:"require_human_review"`

	// 禁止话题: ["politics", "crypto"]，命中直接拒绝，不走评分
	BannedTopics datatypes.JSON `json:"banned_topics"`

	// 是否调用 LLM 做内容评分
	LLMModerationEnabled bool `gorm:"default:true" json:"llm_moderation_enabled"`
}

// DefaultPolicy 懒创建时的默认策略
func DefaultPolicy(orgID uint) *AgentPolicy {
	return &AgentPolicy{
		OrgID:                orgID,
		AllowReplies:         true,
		AllowReactions:       true,
		AllowCritique:        false,
		AutoApproveThreshold: 20,
		AutoRejectThreshold:  80,
		MaxRiskScore:         90,
		RequireHumanReview:   true,
		BannedTopics:         datatypes.JSON([]byte(`[]`)),
		LLMModerationEnabled: true,
	}
}
