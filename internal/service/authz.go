package service

import (
	"errors"
	"fmt"

	"Chorus/internal/apperr"
	"Chorus/internal/model"

	"gorm.io/gorm"
)

// getMembership 统一鉴权入口：查当前用户在组织里的成员记录
// 不是成员返回 ErrForbidden，组织不存在返回 ErrNotFound
func getMembership(db *gorm.DB, orgID, userID uint) (*model.OrganizationMember, error) {
	var org model.Organization
	if err := db.First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 组织 %d", apperr.ErrNotFound, orgID)
		}
		return nil, err
	}

	var m model.OrganizationMember
	err := db.Where("organization_id = ? AND user_id = ?", orgID, userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 你不是该组织成员", apperr.ErrForbidden)
		}
		return nil, err
	}
	return &m, nil
}

// requireMutate 写操作门槛：owner / admin / editor
func requireMutate(db *gorm.DB, orgID, userID uint) (*model.OrganizationMember, error) {
	m, err := getMembership(db, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !m.CanMutate() {
		return nil, fmt.Errorf("%w: 需要 owner/admin/editor 角色", apperr.ErrForbidden)
	}
	return m, nil
}
