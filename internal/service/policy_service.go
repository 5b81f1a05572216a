package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Chorus/internal/apperr"
	"Chorus/internal/data"
	"Chorus/internal/dto"
	"Chorus/internal/model"

	"gorm.io/gorm"
)

type PolicyService struct {
	Data *data.Data
}

func NewPolicyService(data *data.Data) *PolicyService {
	return &PolicyService{Data: data}
}

// GetOrCreatePolicy 读取组织策略，不存在则按默认值懒创建
// 组织创建时会预建一条，这里兜底老数据和并发窗口
func (s *PolicyService) GetOrCreatePolicy(ctx context.Context, userID uint, orgID uint) (*model.AgentPolicy, error) {
	if _, err := getMembership(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}
	return getOrCreatePolicy(s.Data.DB.WithContext(ctx), orgID)
}

// PatchPolicy 部分更新策略，只有 owner/admin 能改
func (s *PolicyService) PatchPolicy(ctx context.Context, userID uint, req dto.PatchPolicyReq) (*model.AgentPolicy, error) {
	m, err := getMembership(s.Data.DB, req.OrgID, userID)
	if err != nil {
		return nil, err
	}
	if !m.CanManagePolicy() {
		return nil, fmt.Errorf("%w: 修改策略需要 owner/admin 角色", apperr.ErrForbidden)
	}

	p, err := getOrCreatePolicy(s.Data.DB.WithContext(ctx), req.OrgID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.AllowReplies != nil {
		updates["allow_replies"] = *req.AllowReplies
	}
	if req.AllowReactions != nil {
		updates["allow_reactions"] = *req.AllowReactions
	}
	if req.AllowCritique != nil {
		updates["allow_critique"] = *req.AllowCritique
	}
	if req.AutoApproveThreshold != nil {
		updates["auto_approve_threshold"] = *req.AutoApproveThreshold
	}
	if req.AutoRejectThreshold != nil {
		updates["auto_reject_threshold"] = *req.AutoRejectThreshold
	}
	if req.MaxRiskScore != nil {
		updates["max_risk_score"] = *req.MaxRiskScore
	}
	if req.RequireHumanReview != nil {
		updates["require_human_review"] = *req.RequireHumanReview
	}
	if req.LLMModerationEnabled != nil {
		updates["llm_moderation_enabled"] = *req.LLMModerationEnabled
	}
	if req.BannedTopics != nil {
		b, err := json.Marshal(*req.BannedTopics)
		if err != nil {
			return nil, err
		}
		updates["banned_topics"] = b
	}

	// 阈值交叉检查：自动通过线不能高于自动拒绝线
	approve := p.AutoApproveThreshold
	reject := p.AutoRejectThreshold
	if req.AutoApproveThreshold != nil {
		approve = *req.AutoApproveThreshold
	}
	if req.AutoRejectThreshold != nil {
		reject = *req.AutoRejectThreshold
	}
	if approve > reject {
		return nil, fmt.Errorf("%w: auto_approve_threshold 不能大于 auto_reject_threshold", apperr.ErrConflict)
	}

	if len(updates) > 0 {
		if err := s.Data.DB.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	// 重新读一遍返回最新值
	var fresh model.AgentPolicy
	if err := s.Data.DB.WithContext(ctx).Where("org_id = ?", req.OrgID).First(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}

// getOrCreatePolicy 策略懒创建，Spawner 内部也会直接调用
func getOrCreatePolicy(db *gorm.DB, orgID uint) (*model.AgentPolicy, error) {
	var p model.AgentPolicy
	err := db.Where("org_id = ?", orgID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := model.DefaultPolicy(orgID)
	if err := db.Create(fresh).Error; err != nil {
		// 并发窗口：另一个请求刚好也在创建，撞了唯一约束就回头再读
		var again model.AgentPolicy
		if err2 := db.Where("org_id = ?", orgID).First(&again).Error; err2 == nil {
			return &again, nil
		}
		return nil, err
	}
	return fresh, nil
}
