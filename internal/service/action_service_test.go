package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chorus/internal/apperr"
	"Chorus/internal/conf"
	"Chorus/internal/dto"
	"Chorus/internal/model"
	"Chorus/internal/moderation"
)

func TestSpawnPublishesLowScore(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) { p.RequireHumanReview = false })
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "写得很好，尤其是类型参数那一节。", scoreResp: `{"score": 5, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	a := list[0]
	assert.Equal(t, model.ActionStatusPublished, a.Status)
	assert.Equal(t, "写得很好，尤其是类型参数那一节。", a.Content)
	assert.Equal(t, 5, a.PolicyScore)
	assert.Equal(t, "fake", a.Provider)
	assert.Equal(t, "tech-oracle", a.AgentHandle)
	require.NotNil(t, a.PublishedAt)

	// 用量和动作同一事务落库
	row := f.usageToday(t)
	assert.EqualValues(t, 1, row.ActionsSpawned)
	assert.EqualValues(t, 1, row.ActionsPublished)
}

func TestSpawnRejectsHighScore(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) { p.RequireHumanReview = false })
	f.addAgent(t, "hot-takes", []string{"opinion"}, 2)

	fake := &fakeLLM{enabled: true, content: "这篇纯属垃圾。", scoreResp: `{"score": 95, "reason": "toxic"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusRejected, list[0].Status)
	assert.Nil(t, list[0].PublishedAt)

	row := f.usageToday(t)
	assert.EqualValues(t, 1, row.ActionsSpawned)
	assert.EqualValues(t, 0, row.ActionsPublished)
}

func TestSpawnDefaultPolicyThenApprove(t *testing.T) {
	// 默认策略 RequireHumanReview=true：低分也进队列，人审通过后才发布
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "curious-reader", []string{"general"}, 0)

	fake := &fakeLLM{enabled: true, content: "有个问题想请教一下。", scoreResp: `{"score": 3, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, model.ActionStatusNeedsReview, list[0].Status)

	// 队列里能看到
	queue, err := svc.ListModerationQueue(context.Background(), f.user.ID, f.org.ID, 20)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, list[0].ID, queue[0].ID)

	// 人审通过
	resp, err := svc.ApproveAction(context.Background(), f.user.ID, f.org.ID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionStatusPublished, resp.Status)
	require.NotNil(t, resp.PublishedAt)

	// 重复 Approve 是幂等 no-op
	resp2, err := svc.ApproveAction(context.Background(), f.user.ID, f.org.ID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionStatusPublished, resp2.Status)

	row := f.usageToday(t)
	assert.EqualValues(t, 1, row.ActionsSpawned)
	assert.EqualValues(t, 1, row.ActionsPublished)
}

func TestRejectActionTerminal(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "design-critic", []string{"design"}, 1)

	fake := &fakeLLM{enabled: true, content: "配色一言难尽。", scoreResp: `{"score": 40, "reason": "borderline"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Equal(t, model.ActionStatusNeedsReview, list[0].Status)

	resp, err := svc.RejectAction(context.Background(), f.user.ID, f.org.ID, list[0].ID, "语气不合适")
	require.NoError(t, err)
	assert.Equal(t, model.ActionStatusRejected, resp.Status)
	assert.Equal(t, "语气不合适", resp.PolicyReason)

	// 拒绝是终态：之后的 Approve 不会改状态
	resp2, err := svc.ApproveAction(context.Background(), f.user.ID, f.org.ID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionStatusRejected, resp2.Status)
	assert.Nil(t, resp2.PublishedAt)
}

func TestSpawnIdempotencyKey(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) { p.RequireHumanReview = false })
	f.addAgent(t, "agent-a", []string{"tech"}, 0)
	f.addAgent(t, "agent-b", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "不错。", scoreResp: `{"score": 5, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	req := dto.SpawnActionsReq{OrgID: f.org.ID, N: 2, IdempotencyKey: "req-42"}

	first, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID, req)
	require.NoError(t, err)
	require.Len(t, first, 2)
	genAfterFirst := fake.genCalls

	// 同一个 Key 重试：返回上次的结果，不重新生成
	second, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID, req)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, genAfterFirst, fake.genCalls)

	assert.Equal(t, actionIDs(first), actionIDs(second))

	var count int64
	require.NoError(t, f.d.DB.Model(&model.AgentAction{}).Where("org_id = ?", f.org.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestSpawnBannedTopicShortCircuit(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) {
		p.RequireHumanReview = false
		p.BannedTopics = []byte(`["crypto"]`)
	})
	f.addAgent(t, "crypto-maxi", []string{"crypto", "finance"}, 3)

	fake := &fakeLLM{enabled: true, content: "都会归零的。", scoreResp: `{"score": 5, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusRejected, list[0].Status)
	assert.Equal(t, "banned_topic:crypto", list[0].PolicyReason)
	assert.Empty(t, list[0].Content)

	// 短路发生在生成之前：网关一次都没被调用
	assert.Equal(t, 0, fake.genCalls)
	assert.Equal(t, 0, fake.scoreCalls)
}

func TestSpawnBlockedOnGenerationFailure(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, genErr: errors.New("upstream 500")}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusBlocked, list[0].Status)
	assert.True(t, strings.HasPrefix(list[0].PolicyReason, "generation_failed"))

	// 失败也要计入当日生成量
	row := f.usageToday(t)
	assert.EqualValues(t, 1, row.ActionsSpawned)
	assert.EqualValues(t, 0, row.ActionsPublished)
}

func TestSpawnBlockedOnScoringFailure(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "还行。", scoreErr: errors.New("upstream timeout")}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusBlocked, list[0].Status)
	assert.True(t, strings.HasPrefix(list[0].PolicyReason, "scoring_failed"))
}

func TestSpawnLLMOffFallsBackToTemplate(t *testing.T) {
	// 网关关闭：模板生成 + llm_off，哪怕人审关闭也强制送队列
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) { p.RequireHumanReview = false })
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: false}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusNeedsReview, list[0].Status)
	assert.Equal(t, moderation.ReasonLLMOff, list[0].PolicyReason)
	assert.Contains(t, list[0].Content, f.post.Title)
	assert.Equal(t, 0, fake.genCalls)
}

func TestSpawnOrgModerationDisabled(t *testing.T) {
	// 组织关闭 LLM 审核：照常生成，但评分走 llm_off 路径
	f := newFixture(t, model.RoleOwner)
	f.setPolicy(t, func(p *model.AgentPolicy) {
		p.RequireHumanReview = false
		p.LLMModerationEnabled = false
	})
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "有见地。"}
	svc := newActionService(f, fake, defaultAgentCfg())

	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.Equal(t, model.ActionStatusNeedsReview, list[0].Status)
	assert.Equal(t, moderation.ReasonLLMOff, list[0].PolicyReason)
	assert.Equal(t, "有见地。", list[0].Content)
	assert.Equal(t, 1, fake.genCalls)
	assert.Equal(t, 0, fake.scoreCalls)
}

func TestSpawnRateLimited(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "好。", scoreResp: `{"score": 5, "reason": "safe"}`}
	cfg := conf.AgentConfig{RateLimit: 1, RateWindow: time.Minute, DailyCap: 1000}
	svc := newActionService(f, fake, cfg)

	_, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)

	_, err = svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	// force 跳过限流
	_, err = svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1, Force: true})
	require.NoError(t, err)
}

func TestSpawnDailyCap(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "好。", scoreResp: `{"score": 5, "reason": "safe"}`}
	cfg := conf.AgentConfig{RateLimit: 100, RateWindow: time.Minute, DailyCap: 1}
	svc := newActionService(f, fake, cfg)

	_, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)

	// 当日额度用完，内存窗口没满也要拒
	_, err = svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}

func TestSpawnViewerForbidden(t *testing.T) {
	f := newFixture(t, model.RoleViewer)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	svc := newActionService(f, &fakeLLM{enabled: true}, defaultAgentCfg())

	_, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSpawnSkipsDisabledAndShadowBanned(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	active := f.addAgent(t, "active", []string{"tech"}, 0)

	disabled := f.addAgent(t, "disabled", []string{"tech"}, 0)
	require.NoError(t, f.d.DB.Model(disabled).Update("enabled", false).Error)
	banned := f.addAgent(t, "banned", []string{"tech"}, 0)
	require.NoError(t, f.d.DB.Model(banned).Update("shadow_banned", true).Error)

	fake := &fakeLLM{enabled: true, content: "好。", scoreResp: `{"score": 5, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	// 要 3 个但只有 1 个可用：只生成 1 条，不报错
	list, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 3})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].AgentID)
}

func TestModerationQueueNewestFirst(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	agent := f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.d.DB.Create(&model.AgentAction{
			OrgID:      f.org.ID,
			AgentID:    agent.ID,
			TargetType: model.TargetTypePost,
			TargetID:   f.post.ID,
			ActionType: model.ActionTypeComment,
			Status:     model.ActionStatusNeedsReview,
		}).Error)
	}

	svc := newActionService(f, &fakeLLM{}, defaultAgentCfg())
	queue, err := svc.ListModerationQueue(context.Background(), f.user.ID, f.org.ID, 20)
	require.NoError(t, err)
	require.Len(t, queue, 3)

	// 新的在前
	assert.Greater(t, queue[0].ID, queue[1].ID)
	assert.Greater(t, queue[1].ID, queue[2].ID)
	assert.Equal(t, "tech-oracle", queue[0].AgentHandle)
}

func TestListPostCommentsFiltersShadowBanned(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	visible := f.addAgent(t, "visible", []string{"tech"}, 0)
	hidden := f.addAgent(t, "hidden", []string{"tech"}, 0)

	for _, a := range []*model.AgentProfile{visible, hidden} {
		require.NoError(t, f.d.DB.Create(&model.AgentAction{
			OrgID:      f.org.ID,
			AgentID:    a.ID,
			TargetType: model.TargetTypePost,
			TargetID:   f.post.ID,
			ActionType: model.ActionTypeComment,
			Status:     model.ActionStatusPublished,
			Content:    "评论内容",
		}).Error)
	}
	require.NoError(t, f.d.DB.Model(hidden).Update("shadow_banned", true).Error)

	svc := newActionService(f, &fakeLLM{}, defaultAgentCfg())
	list, err := svc.ListPostComments(context.Background(), f.post.ID, 50)
	require.NoError(t, err)

	// 影子封禁的人设的已发布内容被静默过滤
	require.Len(t, list, 1)
	assert.Equal(t, "visible", list[0].AgentHandle)
}

func TestListUsage(t *testing.T) {
	f := newFixture(t, model.RoleOwner)
	f.addAgent(t, "tech-oracle", []string{"tech"}, 0)

	fake := &fakeLLM{enabled: true, content: "好。", scoreResp: `{"score": 5, "reason": "safe"}`}
	svc := newActionService(f, fake, defaultAgentCfg())

	_, err := svc.SpawnActionsForPost(context.Background(), f.user.ID, f.post.ID,
		dto.SpawnActionsReq{OrgID: f.org.ID, N: 1})
	require.NoError(t, err)

	rows, err := svc.ListUsage(context.Background(), f.user.ID, f.org.ID, 14)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.UsageDay(time.Now()), rows[0].Day)
	assert.EqualValues(t, 1, rows[0].ActionsSpawned)
}

func actionIDs(list []dto.ActionResp) []uint {
	ids := make([]uint, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
