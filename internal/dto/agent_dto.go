package dto

import (
	"encoding/json"
	"time"
)

// SpawnAgentsReq 批量创建人设
type SpawnAgentsReq struct {
	OrgID uint `json:"org_id" binding:"required"`
	Count int  `json:"count" binding:"required,min=1,max=20"`
}

// PatchAgentReq 管理动作：启用/禁用、影子封禁
// 指针字段区分 "没传" 和 "传了 false"
type PatchAgentReq struct {
	OrgID        uint  `json:"org_id" binding:"required"`
	Enabled      *bool `json:"enabled"`
	ShadowBanned *bool `json:"shadow_banned"`
}

type AgentResp struct {
	ID           uint            `json:"id"`
	OrgID        uint            `json:"org_id"`
	DisplayName  string          `json:"display_name"`
	Handle       string          `json:"handle"`
	Avatar       string          `json:"avatar"`
	TopicTags    json.RawMessage `json:"topic_tags"`
	RiskLevel    int             `json:"risk_level"`
	Enabled      bool            `json:"enabled"`
	ShadowBanned bool            `json:"shadow_banned"`
	Reputation   int64           `json:"reputation"`
	CreatedAt    time.Time       `json:"created_at"`
}
