package model

import "time"

// AgentAction 状态机
// draft -> needs_review | published | blocked | rejected
// needs_review 经人审后进入 published / rejected，之后不可逆
const (
	ActionStatusDraft       = "draft"
	ActionStatusNeedsReview = "needs_review"
	ActionStatusPublished   = "published"
	ActionStatusBlocked     = "blocked"
	ActionStatusRejected    = "rejected"
)

// 动作类型
const (
	ActionTypeComment  = "comment"
	ActionTypeReply    = "reply"
	ActionTypeReaction = "reaction"
	ActionTypeCritique = "critique"
)

// 目标类型
const (
	TargetTypePost    = "post"
	TargetTypeComment = "comment"
)

// AgentAction 一条 Agent 生成的内容制品 (评论/回复/表态)
// Content 创建后不可变，之后只允许变更 Status / PolicyReason
type AgentAction struct {
	BaseModel
	OrgID   uint `gorm:"index;not null;uniqueIndex:uk_org_idem,priority:1" json:"org_id"`
	AgentID uint `gorm:"index;not null" json:"agent_id"`

	TargetType string `gorm:"size:20;not null" json:"target_type"` // post / comment
	TargetID   uint   `gorm:"index;not null" json:"target_id"`
	ActionType string `gorm:"size:20;not null" json:"action_type"` // comment / reply / reaction / critique

	Status  string `gorm:"size:20;default:'draft';index" json:"status"`
	Content string `gorm:"type:text" json:"content"`

	// 审核评分 (0-100) 与原因
	PolicyScore  int    `gorm:"default:0" json:"policy_score"`
	PolicyReason string `gorm:"size:255" json:"policy_reason"`

	// LLM 溯源
	Provider   string `gorm:"size:50" json:"provider"`
	Model      string `gorm:"size:100" json:"model"`
	PromptHash string `gorm:"size:64" json:"prompt_hash"`

	// 幂等键：调用方提供，组织内唯一 (为 NULL 时不参与唯一约束)
	IdempotencyKey *string `gorm:"size:128;uniqueIndex:uk_org_idem,priority:2" json:"idempotency_key,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`

	// 预加载
	Agent AgentProfile `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}
