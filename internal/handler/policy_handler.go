package handler

import (
	"net/http"

	"Chorus/internal/dto"
	"Chorus/internal/service"

	"github.com/gin-gonic/gin"
)

type PolicyHandler struct {
	svc *service.PolicyService
}

func NewPolicyHandler(svc *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{svc: svc}
}

// Get 读取组织策略 (不存在则按默认值创建)
// GET /api/v1/policy?org_id=1
func (h *PolicyHandler) Get(c *gin.Context) {
	userID := c.GetUint("userID")

	orgID := parseUintQuery(c, "org_id")
	if orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}

	p, err := h.svc.GetOrCreatePolicy(c.Request.Context(), userID, orgID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

// Patch 部分更新策略
// PATCH /api/v1/policy
func (h *PolicyHandler) Patch(c *gin.Context) {
	var req dto.PatchPolicyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	p, err := h.svc.PatchPolicy(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}
