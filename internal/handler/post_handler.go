package handler

import (
	"net/http"
	"strconv"

	"Chorus/internal/dto"
	"Chorus/internal/service"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	svc *service.PostService
}

func NewPostHandler(svc *service.PostService) *PostHandler {
	return &PostHandler{svc: svc}
}

// Create 发布文章
// POST /api/v1/posts
func (h *PostHandler) Create(c *gin.Context) {
	var req dto.CreatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("userID")
	resp, err := h.svc.CreatePost(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// List 组织文章列表
// GET /api/v1/posts?org_id=1
func (h *PostHandler) List(c *gin.Context) {
	userID := c.GetUint("userID")

	orgID := parseUintQuery(c, "org_id")
	if orgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 org_id 参数"})
		return
	}

	list, err := h.svc.ListPosts(c.Request.Context(), userID, orgID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

// parseUintQuery Query 参数转 uint，失败返回 0
func parseUintQuery(c *gin.Context, key string) uint {
	s := c.Query(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return uint(n)
}

// parseUintParam 路径参数转 uint，失败返回 0
func parseUintParam(c *gin.Context, key string) uint {
	n, err := strconv.Atoi(c.Param(key))
	if err != nil || n < 0 {
		return 0
	}
	return uint(n)
}
