package handler

import (
	"net/http"

	"Chorus/internal/dto"
	"Chorus/internal/service"

	"github.com/gin-gonic/gin"
)

type OrgHandler struct {
	svc *service.OrgService
}

func NewOrgHandler(svc *service.OrgService) *OrgHandler {
	return &OrgHandler{svc: svc}
}

// Create 创建组织
// POST /api/v1/orgs
func (h *OrgHandler) Create(c *gin.Context) {
	var req dto.CreateOrgReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.CreateOrganization(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// List 获取我的组织列表
// GET /api/v1/orgs
func (h *OrgHandler) List(c *gin.Context) {
	userID := c.GetUint("userID")

	orgs, err := h.svc.ListUserOrganizations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取组织列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orgs})
}
