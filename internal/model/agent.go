package model

import "gorm.io/datatypes"

// AgentProfile 组织下的虚拟人设 (Persona)
// 不做物理删除，Enabled=false 是生命周期的终点
type AgentProfile struct {
	BaseModel
	OrgID uint `gorm:"index;not null;uniqueIndex:uk_org_handle,priority:1" json:"org_id"`

	DisplayName string `gorm:"size:100;not null" json:"display_name"`
	// Handle 组织内唯一，由 DisplayName slug 化 + 数字后缀生成
	Handle string `gorm:"size:100;not null;uniqueIndex:uk_org_handle,priority:2" json:"handle"`
	Avatar string `gorm:"size:255" json:"avatar"` // MinIO 对象路径

	// 人设种子：风格/口吻描述，拼进生成 Prompt
	SeedText string `gorm:"type:text" json:"seed_text"`

	// 话题标签: ["tech", "startup"]
	TopicTags datatypes.JSON `json:"topic_tags"`

	// 风险等级 0-3，越高生成内容越激进
	RiskLevel int `gorm:"default:0" json:"risk_level"`

	Enabled      bool `gorm:"default:true;index" json:"enabled"`
	ShadowBanned bool `gorm:"default:false" json:"shadow_banned"`

	// 声望计数 (发布成功的动作累积，由 Worker 异步增加)
	Reputation int64 `gorm:"default:0" json:"reputation"`
}
