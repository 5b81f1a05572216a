package model

import "time"

// 组织内角色，权限从高到低
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type Organization struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	Key         string `gorm:"uniqueIndex;size:50" json:"key"`

	OwnerID uint `gorm:"index;not null" json:"owner_id"`

	// 关联
	Members []OrganizationMember `gorm:"foreignKey:OrganizationID" json:"members"`
	Agents  []AgentProfile       `gorm:"foreignKey:OrgID" json:"agents"`
}

// OrganizationMember 中间表：记录用户在组织里的角色
type OrganizationMember struct {
	OrganizationID uint `gorm:"primaryKey" json:"organization_id"`
	UserID         uint `gorm:"primaryKey" json:"user_id"`

	// 角色: owner, admin, editor, viewer
	Role     string    `gorm:"size:20;default:'viewer'" json:"role"`
	JoinedAt time.Time `json:"joined_at"`

	// 预加载关联
	User         User         `json:"user"`
	Organization Organization `json:"organization"`
}

// CanMutate 写权限：owner / admin / editor
func (m *OrganizationMember) CanMutate() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin || m.Role == RoleEditor
}

// CanManagePolicy 策略修改权限：owner / admin
func (m *OrganizationMember) CanManagePolicy() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}
