package handler

import (
	"fmt"
	"io"
	"net/http"

	"Chorus/internal/dto"
	"Chorus/internal/service"

	"github.com/gin-gonic/gin"
)

type AgentHandler struct {
	svc *service.AgentService
}

func NewAgentHandler(svc *service.AgentService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

// Spawn 批量创建人设
// POST /api/v1/agents/spawn
func (h *AgentHandler) Spawn(c *gin.Context) {
	var req dto.SpawnAgentsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	list, err := h.svc.SpawnAgents(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// List 人设列表
// GET /api/v1/agents?org_id=1
func (h *AgentHandler) List(c *gin.Context) {
	userID := c.GetUint("userID")

	orgID := parseUintQuery(c, "org_id")
	if orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}

	list, err := h.svc.ListAgents(c.Request.Context(), userID, orgID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Patch 启用/禁用、影子封禁
// PATCH /api/v1/agents/:id
func (h *AgentHandler) Patch(c *gin.Context) {
	agentID := parseUintParam(c, "id")
	if agentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 格式错误"})
		return
	}

	var req dto.PatchAgentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.PatchAgent(c.Request.Context(), userID, agentID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UploadAvatar 上传人设头像
// POST /api/v1/agents/:id/avatar
// Form-Data: file=BINARY, org_id=1
func (h *AgentHandler) UploadAvatar(c *gin.Context) {
	agentID := parseUintParam(c, "id")
	if agentID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 格式错误"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传文件"})
		return
	}

	orgIDStr := c.PostForm("org_id")
	if orgIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}
	var orgID uint
	if _, err := fmt.Sscanf(orgIDStr, "%d", &orgID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "org_id 格式错误"})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.UploadAvatar(c.Request.Context(), userID, orgID, agentID, fileHeader)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "上传成功", "data": resp})
}

// GetAvatar 头像下载/预览
// GET /api/v1/agents/avatar/*object
func (h *AgentHandler) GetAvatar(c *gin.Context) {
	objectName := c.Param("object")
	if len(objectName) > 0 && objectName[0] == '/' {
		objectName = objectName[1:]
	}

	obj, size, err := h.svc.GetAvatar(c.Request.Context(), objectName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文件获取失败: " + err.Error()})
		return
	}
	defer obj.Close()

	c.Header("Content-Disposition", "inline")
	c.Header("Content-Length", fmt.Sprintf("%d", size))

	if _, err := io.Copy(c.Writer, obj); err != nil {
		fmt.Printf("Stream file error: %v\n", err)
	}
}
