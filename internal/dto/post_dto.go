package dto

import "time"

type CreatePostReq struct {
	OrgID uint   `json:"org_id" binding:"required"`
	Title string `json:"title" binding:"required,max=255"`
	Body  string `json:"body" binding:"required"`
}

type PostResp struct {
	ID        uint      `json:"id"`
	OrgID     uint      `json:"org_id"`
	AuthorID  uint      `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
