package service

import (
	"context"
	"fmt"
	"math/rand"

	"Chorus/internal/apperr"
	"Chorus/internal/data"
	"Chorus/internal/dto"
	"Chorus/internal/model"

	"gorm.io/gorm"
)

type OrgService struct {
	Data *data.Data
}

func NewOrgService(data *data.Data) *OrgService {
	return &OrgService{Data: data}
}

// CreateOrganization 创建组织
func (s *OrgService) CreateOrganization(ctx context.Context, userID uint, req dto.CreateOrgReq) (*dto.OrgResp, error) {
	// 自动补全逻辑
	if req.Key == "" {
		// 生成一个 8 位的随机 Key，例如 "xk9d2m1a"
		req.Key = generateRandomKey(8)
	}
	// 1. 检查 Key 是否已存在 (Key 必须唯一)
	var count int64
	s.Data.DB.Model(&model.Organization{}).Where("key = ?", req.Key).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("%w: 组织标识(Key)已存在，请换一个", apperr.ErrConflict)
	}

	org := &model.Organization{
		Name:        req.Name,
		Description: req.Description,
		Key:         req.Key,
		OwnerID:     userID,
	}

	// 2. 开启事务：创建组织 + 添加成员 + 初始化默认策略
	err := s.Data.DB.Transaction(func(tx *gorm.DB) error {
		// A. 创建组织记录
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		// B. 将创建者加入成员表，并设为 Owner
		member := &model.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           model.RoleOwner,
		}
		if err := tx.Create(member).Error; err != nil {
			return err // 返回错误会触发回滚
		}

		// C. 初始化默认审核策略 (也可以懒创建，这里提前建好让后台立刻可见)
		if err := tx.Create(model.DefaultPolicy(org.ID)).Error; err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	// 3. 返回结果
	return &dto.OrgResp{
		ID:          org.ID,
		Name:        org.Name,
		Description: org.Description,
		Key:         org.Key,
		OwnerID:     org.OwnerID,
		UserRole:    model.RoleOwner,
		CreatedAt:   org.CreatedAt,
	}, nil
}

// ListUserOrganizations 获取用户加入的所有组织
func (s *OrgService) ListUserOrganizations(ctx context.Context, userID uint) ([]dto.OrgResp, error) {
	var memberships []model.OrganizationMember

	// 1. 查询中间表，并预加载 Organization 实体
	if err := s.Data.DB.
		Preload("Organization").
		Where("user_id = ?", userID).
		Find(&memberships).Error; err != nil {
		return nil, err
	}

	// 2. 转换为 DTO
	var result []dto.OrgResp
	for _, m := range memberships {
		// 稍微防御一下，万一组织被删了但中间表还在
		if m.Organization.ID == 0 {
			continue
		}

		result = append(result, dto.OrgResp{
			ID:          m.Organization.ID,
			Name:        m.Organization.Name,
			Description: m.Organization.Description,
			Key:         m.Organization.Key,
			OwnerID:     m.Organization.OwnerID,
			UserRole:    m.Role,
			CreatedAt:   m.Organization.CreatedAt,
		})
	}

	return result, nil
}

func generateRandomKey(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
