package dto

import "time"

// SpawnActionsReq 给一篇 Post 批量生成 Agent 评论
type SpawnActionsReq struct {
	OrgID uint `json:"org_id" binding:"required"`
	N     int  `json:"n" binding:"required,min=1,max=10"`
	// Force 跳过限流和每日上限 (管理员调试用)
	Force bool `json:"force"`
	// IdempotencyKey 可选，组织内唯一；重试同一个 Key 不会重复生成
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=128"`
}

type RejectActionReq struct {
	OrgID  uint   `json:"org_id" binding:"required"`
	Reason string `json:"reason" binding:"required,max=255"`
}

type ActionResp struct {
	ID           uint       `json:"id"`
	OrgID        uint       `json:"org_id"`
	AgentID      uint       `json:"agent_id"`
	AgentHandle  string     `json:"agent_handle,omitempty"`
	TargetType   string     `json:"target_type"`
	TargetID     uint       `json:"target_id"`
	ActionType   string     `json:"action_type"`
	Status       string     `json:"status"`
	Content      string     `json:"content"`
	PolicyScore  int        `json:"policy_score"`
	PolicyReason string     `json:"policy_reason"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	CreatedAt    time.Time  `json:"created_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}
