package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"mime/multipart"
	"strings"

	"Chorus/internal/apperr"
	"Chorus/internal/data"
	"Chorus/internal/dto"
	"Chorus/internal/model"

	"github.com/minio/minio-go/v7"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// archetype 人设原型：Spawn 时从这里随机取样
type archetype struct {
	DisplayName string
	SeedText    string
	Topics      []string
	RiskLevel   int
}

// 固定原型集，风格/话题/风险等级的预设组合
var archetypes = []archetype{
	{"Tech Oracle", "资深工程师口吻，关注架构与性能，喜欢引用一手经验，语气克制。", []string{"tech", "engineering"}, 0},
	{"Startup Sage", "连续创业者视角，谈增长与产品，偶尔反直觉但有数据支撑。", []string{"startup", "product"}, 1},
	{"Curious Reader", "好奇心旺盛的普通读者，提问多于论断，语气友好。", []string{"general"}, 0},
	{"Hot Takes Hank", "观点尖锐，爱抬杠，经常给出争议性判断。", []string{"opinion", "debate"}, 2},
	{"Data Dana", "数据分析师口吻，凡事先问指标和样本量，谨慎下结论。", []string{"data", "science"}, 0},
	{"Design Critic", "设计评论者，关注可用性和审美，批评直接但具体。", []string{"design", "critique"}, 1},
	{"Crypto Maxi", "加密货币狂热者，一切话题都能绕回去中心化。", []string{"crypto", "finance"}, 3},
	{"Wellness Wendy", "健康生活倡导者，热衷分享饮食和作息建议。", []string{"health", "lifestyle"}, 1},
}

type AgentService struct {
	Data *data.Data
}

func NewAgentService(data *data.Data) *AgentService {
	return &AgentService{Data: data}
}

// SpawnAgents 批量创建人设
// Handle = slug(DisplayName) + 数字后缀去重，组织内唯一；整批在一个事务里，失败不留半截
func (s *AgentService) SpawnAgents(ctx context.Context, userID uint, req dto.SpawnAgentsReq) ([]dto.AgentResp, error) {
	// 1. 权限检查
	if _, err := requireMutate(s.Data.DB, req.OrgID, userID); err != nil {
		return nil, err
	}

	var created []model.AgentProfile

	// 2. 事务：读已有 Handle + 批量创建
	err := s.Data.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 读出组织已有的 Handle，后缀去重要对着它查
		var existing []string
		if err := tx.Model(&model.AgentProfile{}).
			Where("org_id = ?", req.OrgID).
			Pluck("handle", &existing).Error; err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(existing))
		for _, h := range existing {
			taken[h] = struct{}{}
		}

		for i := 0; i < req.Count; i++ {
			arch := archetypes[rand.Intn(len(archetypes))]
			handle := uniqueHandle(slugify(arch.DisplayName), taken)
			taken[handle] = struct{}{}

			tagsJSON, err := tagsToJSON(arch.Topics)
			if err != nil {
				return err
			}

			agent := model.AgentProfile{
				OrgID:       req.OrgID,
				DisplayName: arch.DisplayName,
				Handle:      handle,
				SeedText:    arch.SeedText,
				TopicTags:   tagsJSON,
				RiskLevel:   arch.RiskLevel,
				Enabled:     true,
			}
			if err := tx.Create(&agent).Error; err != nil {
				return err
			}
			created = append(created, agent)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]dto.AgentResp, 0, len(created))
	for i := range created {
		result = append(result, toAgentResp(&created[i]))
	}
	return result, nil
}

// ListAgents 组织下的人设列表
func (s *AgentService) ListAgents(ctx context.Context, userID uint, orgID uint) ([]dto.AgentResp, error) {
	if _, err := getMembership(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}

	var agents []model.AgentProfile
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at desc, id desc").
		Find(&agents).Error; err != nil {
		return nil, err
	}

	result := make([]dto.AgentResp, 0, len(agents))
	for i := range agents {
		result = append(result, toAgentResp(&agents[i]))
	}
	return result, nil
}

// PatchAgent 管理动作：启用/禁用、影子封禁
// 人设不做物理删除，Enabled=false 就是终态
func (s *AgentService) PatchAgent(ctx context.Context, userID uint, agentID uint, req dto.PatchAgentReq) (*dto.AgentResp, error) {
	if _, err := requireMutate(s.Data.DB, req.OrgID, userID); err != nil {
		return nil, err
	}

	agent, err := s.findAgent(ctx, req.OrgID, agentID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.ShadowBanned != nil {
		updates["shadow_banned"] = *req.ShadowBanned
	}
	if len(updates) > 0 {
		if err := s.Data.DB.WithContext(ctx).Model(agent).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	resp := toAgentResp(agent)
	return &resp, nil
}

// UploadAvatar 上传人设头像到 MinIO，回填对象路径
func (s *AgentService) UploadAvatar(ctx context.Context, userID uint, orgID uint, agentID uint, fileHeader *multipart.FileHeader) (*dto.AgentResp, error) {
	if _, err := requireMutate(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}

	agent, err := s.findAgent(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	objectName, err := s.Data.UploadAvatar(ctx, src, fileHeader.Size, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	if err := s.Data.DB.WithContext(ctx).Model(agent).Update("avatar", objectName).Error; err != nil {
		return nil, err
	}
	agent.Avatar = objectName

	resp := toAgentResp(agent)
	return &resp, nil
}

// GetAvatar 头像文件流
func (s *AgentService) GetAvatar(ctx context.Context, objectName string) (*minio.Object, int64, error) {
	return s.Data.GetAvatarStream(ctx, objectName)
}

func (s *AgentService) findAgent(ctx context.Context, orgID, agentID uint) (*model.AgentProfile, error) {
	var agent model.AgentProfile
	err := s.Data.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		First(&agent, agentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 人设 %d", apperr.ErrNotFound, agentID)
		}
		return nil, err
	}
	return &agent, nil
}

// slugify 显示名 -> handle 基串：小写，非字母数字折叠成 '-'
func slugify(name string) string {
	var b strings.Builder
	prevDash := true // 抑制开头的 '-'
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// uniqueHandle 基串被占用时追加递增数字后缀
func uniqueHandle(base string, taken map[string]struct{}) string {
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

func tagsToJSON(tags []string) (datatypes.JSON, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func toAgentResp(a *model.AgentProfile) dto.AgentResp {
	return dto.AgentResp{
		ID:           a.ID,
		OrgID:        a.OrgID,
		DisplayName:  a.DisplayName,
		Handle:       a.Handle,
		Avatar:       a.Avatar,
		TopicTags:    []byte(a.TopicTags),
		RiskLevel:    a.RiskLevel,
		Enabled:      a.Enabled,
		ShadowBanned: a.ShadowBanned,
		Reputation:   a.Reputation,
		CreatedAt:    a.CreatedAt,
	}
}
