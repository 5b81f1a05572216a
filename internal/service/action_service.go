package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"Chorus/internal/apperr"
	"Chorus/internal/conf"
	"Chorus/internal/data"
	"Chorus/internal/dto"
	"Chorus/internal/llm"
	"Chorus/internal/model"
	"Chorus/internal/moderation"
	"Chorus/internal/policy"
	"Chorus/internal/ratelimit"

	"gorm.io/gorm"
)

// 限流 bucket 名
const spawnBucket = "spawn_actions"

// ActionService 编排整条流水线：
// 选人设 -> 生成 -> 评分 -> 策略裁决 -> 落库，外加审核队列的人工流转
type ActionService struct {
	Data    *data.Data
	LLM     llm.Client
	Scorer  *moderation.Scorer
	Limiter *ratelimit.Limiter
	Cfg     conf.AgentConfig
}

func NewActionService(d *data.Data, client llm.Client, limiter *ratelimit.Limiter, cfg conf.AgentConfig) *ActionService {
	return &ActionService{
		Data:    d,
		LLM:     client,
		Scorer:  moderation.NewScorer(client),
		Limiter: limiter,
		Cfg:     cfg,
	}
}

// SpawnActionsForPost 给一篇文章批量生成 Agent 评论
// 单个人设的失败只影响它自己 (记成 blocked)，不打断同批其他人设
func (s *ActionService) SpawnActionsForPost(ctx context.Context, userID uint, postID uint, req dto.SpawnActionsReq) ([]dto.ActionResp, error) {
	db := s.Data.DB.WithContext(ctx)

	// 1. 权限 + 目标检查
	if _, err := requireMutate(s.Data.DB, req.OrgID, userID); err != nil {
		return nil, err
	}
	var post model.Post
	if err := db.Where("org_id = ?", req.OrgID).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 文章 %d", apperr.ErrNotFound, postID)
		}
		return nil, err
	}

	// 2. 幂等检查：同一个 Key 的请求直接返回上次的结果，不重新生成
	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(db, req.OrgID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return toActionResps(existing), nil
		}
	}

	// 3. 读组织策略 (懒创建)
	pol, err := getOrCreatePolicy(db, req.OrgID)
	if err != nil {
		return nil, err
	}

	// 4. 限流 + 每日硬上限 (force 跳过)
	if !req.Force {
		if r := s.Limiter.Hit(req.OrgID, spawnBucket, s.Cfg.RateLimit, s.Cfg.RateWindow); !r.Allowed {
			return nil, fmt.Errorf("%w: 操作过于频繁，%s 后重试", apperr.ErrRateLimited, r.ResetIn.Round(time.Second))
		}
		if err := s.checkDailyCap(db, req.OrgID, req.N); err != nil {
			return nil, err
		}
	}

	// 5. 随机挑选可用人设 (启用、未影子封禁)
	var agents []model.AgentProfile
	if err := db.Where("org_id = ? AND enabled = ? AND shadow_banned = ?", req.OrgID, true, false).
		Order(randomOrder(db)).
		Limit(req.N).
		Find(&agents).Error; err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return []dto.ActionResp{}, nil
	}

	// 6. 逐个人设跑流水线
	var created []model.AgentAction
	for i := range agents {
		agent := &agents[i]
		idemKey := perActionKey(req.IdempotencyKey, req.N, i)

		action := s.runPipeline(ctx, pol, agent, &post, idemKey)

		if err := s.persistAction(db, action); err != nil {
			// 并发重试撞幂等键：别人已经写进去了，查出来直接用
			if req.IdempotencyKey != "" && isDuplicateErr(err) {
				existing, qerr := s.findByIdempotencyKey(db, req.OrgID, req.IdempotencyKey)
				if qerr == nil && len(existing) > 0 {
					return toActionResps(existing), nil
				}
			}
			log.Printf("❌ Agent 动作落库失败 (agent=%d): %v", agent.ID, err)
			continue
		}
		action.Agent = *agent
		created = append(created, *action)

		// 发布成功的动作丢进声望队列，Worker 异步累积
		if action.Status == model.ActionStatusPublished {
			s.pushReputationEvent(ctx, action)
		}
	}

	return toActionResps(created), nil
}

// runPipeline 单个人设的 生成 -> 评分 -> 裁决
// 任何一步失败都折叠成 blocked 动作返回，错误不上抛
func (s *ActionService) runPipeline(ctx context.Context, pol *model.AgentPolicy, agent *model.AgentProfile, post *model.Post, idemKey *string) *model.AgentAction {
	action := &model.AgentAction{
		OrgID:          agent.OrgID,
		AgentID:        agent.ID,
		TargetType:     model.TargetTypePost,
		TargetID:       post.ID,
		ActionType:     chooseActionType(pol, agent),
		Status:         model.ActionStatusDraft,
		Provider:       s.LLM.Provider(),
		Model:          s.LLM.Model(),
		IdempotencyKey: idemKey,
	}

	// 禁止话题短路：评分器根本不会被调用，也不浪费生成调用
	if tag, hit := policy.HitsBannedTopic(pol, agent.TopicTags); hit {
		action.Status = model.ActionStatusRejected
		action.PolicyReason = "banned_topic:" + tag
		return action
	}

	// 生成内容：网关关了就退化成模板
	systemPrompt, userPrompt := buildPrompts(agent, post, action.ActionType)
	action.PromptHash = promptHash(systemPrompt, userPrompt)

	if s.LLM.Enabled() {
		text, err := s.LLM.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			log.Printf("⚠️ 生成失败 (agent=%s): %v", agent.Handle, err)
			action.Status = model.ActionStatusBlocked
			action.PolicyReason = "generation_failed: " + truncateReason(err.Error())
			return action
		}
		action.Content = strings.TrimSpace(text)
	} else {
		action.Content = templateContent(agent, post)
	}

	// 评分 (组织可关闭 LLM 审核，等同网关不可用：走 llm_off)
	var score int
	var reason string
	if pol.LLMModerationEnabled {
		var err error
		score, reason, err = s.Scorer.Score(ctx, action.Content)
		if err != nil {
			log.Printf("⚠️ 评分失败 (agent=%s): %v", agent.Handle, err)
			action.Status = model.ActionStatusBlocked
			action.PolicyReason = "scoring_failed: " + truncateReason(err.Error())
			return action
		}
	} else {
		score, reason = 0, moderation.ReasonLLMOff
	}
	action.PolicyScore = moderation.Clamp(score)

	// 策略裁决
	disp := policy.Classify(pol, action.PolicyScore, reason)
	action.Status = disp.Status
	action.PolicyReason = disp.Reason
	if disp.Status == model.ActionStatusPublished {
		now := time.Now()
		action.PublishedAt = &now
	}
	return action
}

// persistAction 动作落库 + 用量累加，同一事务：不会出现有计数没记录的"幽灵动作"
func (s *ActionService) persistAction(db *gorm.DB, action *model.AgentAction) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(action).Error; err != nil {
			return err
		}
		var published int64
		if action.Status == model.ActionStatusPublished {
			published = 1
		}
		return data.IncrUsage(tx, action.OrgID, model.UsageDay(time.Now()), 1, published)
	})
}

// ListModerationQueue 审核队列：needs_review 状态，新的在前
func (s *ActionService) ListModerationQueue(ctx context.Context, userID uint, orgID uint, limit int) ([]dto.ActionResp, error) {
	if _, err := getMembership(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var actions []model.AgentAction
	if err := s.Data.DB.WithContext(ctx).
		Preload("Agent").
		Where("org_id = ? AND status = ?", orgID, model.ActionStatusNeedsReview).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return toActionResps(actions), nil
}

// ApproveAction 人审通过 -> published
// 状态不是 needs_review 时幂等 no-op (防止重复处理)，原样返回
func (s *ActionService) ApproveAction(ctx context.Context, userID uint, orgID uint, actionID uint) (*dto.ActionResp, error) {
	if _, err := requireMutate(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}

	action, err := s.findAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != model.ActionStatusNeedsReview {
		resp := toActionResp(action)
		return &resp, nil
	}

	now := time.Now()
	err = s.Data.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.AgentAction{}).
			Where("id = ? AND status = ?", action.ID, model.ActionStatusNeedsReview).
			Updates(map[string]interface{}{
				"status":        model.ActionStatusPublished,
				"published_at":  now,
				"policy_reason": "人工审核通过",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发下被别人先处理了，当 no-op
			return nil
		}
		return data.IncrUsage(tx, orgID, model.UsageDay(now), 0, 1)
	})
	if err != nil {
		return nil, err
	}

	action, err = s.findAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status == model.ActionStatusPublished {
		s.pushReputationEvent(ctx, action)
	}
	resp := toActionResp(action)
	return &resp, nil
}

// RejectAction 人审拒绝 -> rejected，记录原因
// 同样带幂等 no-op 保护
func (s *ActionService) RejectAction(ctx context.Context, userID uint, orgID uint, actionID uint, reason string) (*dto.ActionResp, error) {
	if _, err := requireMutate(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}

	action, err := s.findAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != model.ActionStatusNeedsReview {
		resp := toActionResp(action)
		return &resp, nil
	}

	if err := s.Data.DB.WithContext(ctx).Model(&model.AgentAction{}).
		Where("id = ? AND status = ?", action.ID, model.ActionStatusNeedsReview).
		Updates(map[string]interface{}{
			"status":        model.ActionStatusRejected,
			"policy_reason": reason,
		}).Error; err != nil {
		return nil, err
	}

	action, err = s.findAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	resp := toActionResp(action)
	return &resp, nil
}

// ListPostComments 文章下已发布的 Agent 评论 (对外可见流)
// 影子封禁的人设的内容在这里被静默过滤
func (s *ActionService) ListPostComments(ctx context.Context, postID uint, limit int) ([]dto.ActionResp, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var actions []model.AgentAction
	if err := s.Data.DB.WithContext(ctx).
		Preload("Agent").
		Joins("JOIN agent_profiles ON agent_profiles.id = agent_actions.agent_id").
		Where("agent_actions.target_type = ? AND agent_actions.target_id = ? AND agent_actions.status = ?",
			model.TargetTypePost, postID, model.ActionStatusPublished).
		Where("agent_profiles.shadow_banned = ?", false).
		Order("agent_actions.created_at desc, agent_actions.id desc").
		Limit(limit).
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return toActionResps(actions), nil
}

// ListUsage 最近若干天的用量计数
func (s *ActionService) ListUsage(ctx context.Context, userID uint, orgID uint, days int) ([]model.OrgUsageDaily, error) {
	if _, err := getMembership(s.Data.DB, orgID, userID); err != nil {
		return nil, err
	}
	if days <= 0 || days > 90 {
		days = 14
	}

	since := model.UsageDay(time.Now().AddDate(0, 0, -days))
	var rows []model.OrgUsageDaily
	if err := s.Data.DB.WithContext(ctx).
		Where("org_id = ? AND day >= ?", orgID, since).
		Order("day desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// =====================================================
// 私有辅助
// =====================================================

// checkDailyCap 持久化的每日硬上限
func (s *ActionService) checkDailyCap(db *gorm.DB, orgID uint, n int) error {
	var row model.OrgUsageDaily
	err := db.Where("org_id = ? AND day = ?", orgID, model.UsageDay(time.Now())).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if row.ActionsSpawned+int64(n) > int64(s.Cfg.DailyCap) {
		return fmt.Errorf("%w: 今日生成额度已用完 (%d/%d)", apperr.ErrRateLimited, row.ActionsSpawned, s.Cfg.DailyCap)
	}
	return nil
}

// findByIdempotencyKey 查同 Key 的历史动作 (批量生成时 Key 带序号后缀)
func (s *ActionService) findByIdempotencyKey(db *gorm.DB, orgID uint, key string) ([]model.AgentAction, error) {
	var actions []model.AgentAction
	err := db.Preload("Agent").
		Where("org_id = ?", orgID).
		Where("idempotency_key = ? OR idempotency_key LIKE ?", key, key+"#%").
		Order("id asc").
		Find(&actions).Error
	return actions, err
}

// perActionKey 幂等键落到单条动作上
// n==1 存原始 Key；批量时每条加 "#序号" 后缀，保持组织内唯一
func perActionKey(key string, n, i int) *string {
	if key == "" {
		return nil
	}
	if n == 1 {
		return &key
	}
	k := fmt.Sprintf("%s#%d", key, i)
	return &k
}

func (s *ActionService) findAction(ctx context.Context, orgID, actionID uint) (*model.AgentAction, error) {
	var action model.AgentAction
	err := s.Data.DB.WithContext(ctx).
		Preload("Agent").
		Where("org_id = ?", orgID).
		First(&action, actionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 动作 %d", apperr.ErrNotFound, actionID)
		}
		return nil, err
	}
	return &action, nil
}

// pushReputationEvent 发布事件进 Redis 队列，Worker 消费后累积人设声望
// 推送失败只记日志，不影响主流程
func (s *ActionService) pushReputationEvent(ctx context.Context, action *model.AgentAction) {
	if s.Data.Redis == nil {
		return
	}
	payload, _ := json.Marshal(map[string]uint{
		"action_id": action.ID,
		"agent_id":  action.AgentID,
	})
	if err := s.Data.Redis.LPush(ctx, data.ReputationQueue, payload).Err(); err != nil {
		log.Printf("⚠️ 声望事件推送失败 (action=%d): %v", action.ID, err)
	}
}

// chooseActionType 策略开了 critique 且人设风险等级够高时生成锐评，否则普通评论
func chooseActionType(pol *model.AgentPolicy, agent *model.AgentProfile) string {
	if pol.AllowCritique && agent.RiskLevel >= 2 {
		return model.ActionTypeCritique
	}
	return model.ActionTypeComment
}

// buildPrompts 人设条件化的生成 Prompt
func buildPrompts(agent *model.AgentProfile, post *model.Post, actionType string) (string, string) {
	var tags []string
	_ = json.Unmarshal(agent.TopicTags, &tags)

	systemPrompt := fmt.Sprintf(
		"你是博客平台上的虚拟评论者 @%s。人设：%s 关注话题：%s。用这个人设的口吻写一条%s，120 字以内，不要提到你是 AI。",
		agent.Handle, agent.SeedText, strings.Join(tags, "、"), actionTypeLabel(actionType))

	userPrompt := fmt.Sprintf("文章标题：%s\n\n正文：\n%s", post.Title, truncateBody(post.Body))
	return systemPrompt, userPrompt
}

func actionTypeLabel(actionType string) string {
	if actionType == model.ActionTypeCritique {
		return "尖锐但具体的批评"
	}
	return "评论"
}

// templateContent 网关关闭时的模板兜底
func templateContent(agent *model.AgentProfile, post *model.Post) string {
	return fmt.Sprintf("关于《%s》：作为关注这个领域的读者，我觉得这篇值得一读。—— @%s", post.Title, agent.Handle)
}

func promptHash(systemPrompt, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "\x00" + userPrompt))
	return hex.EncodeToString(sum[:])
}

// isDuplicateErr 粗粒度判断唯一约束冲突 (postgres / sqlite 文案都覆盖)
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

// randomOrder 不同方言的随机排序写法 (postgres/sqlite 都是 RANDOM())
func randomOrder(db *gorm.DB) string {
	if db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

// truncateReason PolicyReason 列宽 255，错误文案截断到安全长度
func truncateReason(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// truncateBody 控制进 Prompt 的正文长度
func truncateBody(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func toActionResp(a *model.AgentAction) dto.ActionResp {
	return dto.ActionResp{
		ID:           a.ID,
		OrgID:        a.OrgID,
		AgentID:      a.AgentID,
		AgentHandle:  a.Agent.Handle,
		TargetType:   a.TargetType,
		TargetID:     a.TargetID,
		ActionType:   a.ActionType,
		Status:       a.Status,
		Content:      a.Content,
		PolicyScore:  a.PolicyScore,
		PolicyReason: a.PolicyReason,
		Provider:     a.Provider,
		Model:        a.Model,
		CreatedAt:    a.CreatedAt,
		PublishedAt:  a.PublishedAt,
	}
}

func toActionResps(actions []model.AgentAction) []dto.ActionResp {
	result := make([]dto.ActionResp, 0, len(actions))
	for i := range actions {
		result = append(result, toActionResp(&actions[i]))
	}
	return result
}
