package dto

// PatchPolicyReq 部分更新组织策略，指针字段区分 "没传" 和零值
type PatchPolicyReq struct {
	OrgID uint `json:"org_id" binding:"required"`

	AllowReplies   *bool `json:"allow_replies"`
	AllowReactions *bool `json:"allow_reactions"`
	AllowCritique  *bool `json:"allow_critique"`

	AutoApproveThreshold *int `json:"auto_approve_threshold" binding:"omitempty,min=0,max=100"`
	AutoRejectThreshold  *int `json:"auto_reject_threshold" binding:"omitempty,min=0,max=100"`
	MaxRiskScore         *int `json:"max_risk_score" binding:"omitempty,min=0,max=100"`

	RequireHumanReview   *bool     `json:"require_human_review"`
	BannedTopics         *[]string `json:"banned_topics"`
	LLMModerationEnabled *bool     `json:"llm_moderation_enabled"`
}
