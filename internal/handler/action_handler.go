package handler

import (
	"net/http"
	"strconv"

	"Chorus/internal/dto"
	"Chorus/internal/service"

	"github.com/gin-gonic/gin"
)

type ActionHandler struct {
	svc *service.ActionService
}

func NewActionHandler(svc *service.ActionService) *ActionHandler {
	return &ActionHandler{svc: svc}
}

// Spawn 给文章批量生成 Agent 评论
// POST /api/v1/posts/:id/agent-actions
func (h *ActionHandler) Spawn(c *gin.Context) {
	postID := parseUintParam(c, "id")
	if postID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 格式错误"})
		return
	}

	var req dto.SpawnActionsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	list, err := h.svc.SpawnActionsForPost(c.Request.Context(), userID, postID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Queue 审核队列
// GET /api/v1/moderation/queue?org_id=1&limit=20
func (h *ActionHandler) Queue(c *gin.Context) {
	userID := c.GetUint("userID")

	orgID := parseUintQuery(c, "org_id")
	if orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.svc.ListModerationQueue(c.Request.Context(), userID, orgID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Approve 人审通过
// POST /api/v1/actions/:id/approve?org_id=1
func (h *ActionHandler) Approve(c *gin.Context) {
	actionID := parseUintParam(c, "id")
	orgID := parseUintQuery(c, "org_id")
	if actionID == 0 || orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.ApproveAction(c.Request.Context(), userID, orgID, actionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Reject 人审拒绝
// POST /api/v1/actions/:id/reject
func (h *ActionHandler) Reject(c *gin.Context) {
	actionID := parseUintParam(c, "id")
	if actionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 格式错误"})
		return
	}

	var req dto.RejectActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.RejectAction(c.Request.Context(), userID, req.OrgID, actionID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Comments 文章下已发布的 Agent 评论
// GET /api/v1/posts/:id/comments
func (h *ActionHandler) Comments(c *gin.Context) {
	postID := parseUintParam(c, "id")
	if postID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 格式错误"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.svc.ListPostComments(c.Request.Context(), postID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Usage 用量统计
// GET /api/v1/usage?org_id=1&days=14
func (h *ActionHandler) Usage(c *gin.Context) {
	userID := c.GetUint("userID")

	orgID := parseUintQuery(c, "org_id")
	if orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "14"))
	rows, err := h.svc.ListUsage(c.Request.Context(), userID, orgID, days)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
