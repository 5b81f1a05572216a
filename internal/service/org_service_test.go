package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chorus/internal/apperr"
	"Chorus/internal/dto"
	"Chorus/internal/model"
)

func TestCreateOrganizationBootstrap(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	svc := NewOrgService(f.d)

	resp, err := svc.CreateOrganization(context.Background(), f.user.ID,
		dto.CreateOrgReq{Name: "新组织", Key: "neworg"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, resp.UserRole)

	// 创建者自动成为 owner 成员
	var m model.OrganizationMember
	require.NoError(t, f.d.DB.
		Where("organization_id = ? AND user_id = ?", resp.ID, f.user.ID).
		First(&m).Error)
	assert.Equal(t, model.RoleOwner, m.Role)

	// 默认策略已预建，后台立刻可见
	var p model.AgentPolicy
	require.NoError(t, f.d.DB.Where("org_id = ?", resp.ID).First(&p).Error)
	assert.Equal(t, 20, p.AutoApproveThreshold)
	assert.True(t, p.RequireHumanReview)
}

func TestCreateOrganizationDuplicateKey(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	svc := NewOrgService(f.d)

	// fixture 里已经有 key=acme 的组织
	_, err := svc.CreateOrganization(context.Background(), f.user.ID,
		dto.CreateOrgReq{Name: "重名", Key: "acme"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestListUserOrganizations(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	svc := NewOrgService(f.d)

	_, err := svc.CreateOrganization(context.Background(), f.user.ID,
		dto.CreateOrgReq{Name: "第二个"})
	require.NoError(t, err)

	list, err := svc.ListUserOrganizations(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
