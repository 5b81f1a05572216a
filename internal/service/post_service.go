package service

import (
	"context"

	"Chorus/internal/data"
	"Chorus/internal/dto"
	"Chorus/internal/model"
)

type PostService struct {
	Data *data.Data
}

func NewPostService(data *data.Data) *PostService {
	return &PostService{Data: data}
}

// CreatePost 发布文章
func (s *PostService) CreatePost(ctx context.Context, userID uint, req dto.CreatePostReq) (*dto.PostResp, error) {
	// 1. 权限检查：写操作
	if _, err := requireMutate(s.Data.DB, req.OrgID, userID); err != nil {
		return nil, err
	}

	// 2. 落库
	post := &model.Post{
		OrgID:    req.OrgID,
		AuthorID: userID,
		Title:    req.Title,
		Body:     req.Body,
		Status:   "published",
	}
	if err := s.Data.DB.WithContext(ctx).Create(post).Error; err != nil {
		return nil, err
	}

	return toPostResp(post), nil
}

// ListPosts 组织下的文章列表
func (s *PostService) ListPosts(ctx context.Context, userID uint, orgID uint) ([]dto.PostResp, error) {
	// 读操作：任意成员角色即可
	if _, err := getMembership(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}

	var posts []model.Post
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at desc, id desc").
		Find(&posts).Error; err != nil {
		return nil, err
	}

	result := make([]dto.PostResp, 0, len(posts))
	for i := range posts {
		result = append(result, *toPostResp(&posts[i]))
	}
	return result, nil
}

func toPostResp(p *model.Post) *dto.PostResp {
	return &dto.PostResp{
		ID:        p.ID,
		OrgID:     p.OrgID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Body:      p.Body,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}
