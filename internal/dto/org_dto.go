package dto

import "time"

// CreateOrgReq 创建组织请求参数
type CreateOrgReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	// 允许不传，后端自动生成
	Key string `json:"key" binding:"omitempty,alphanum,min=3,max=20"`
}

// OrgResp 组织响应数据
type OrgResp struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Key         string    `json:"key"`
	OwnerID     uint      `json:"owner_id"`
	UserRole    string    `json:"user_role,omitempty"` // 当前用户在该组织的角色
	CreatedAt   time.Time `json:"created_at"`
}
