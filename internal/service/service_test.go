package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"Chorus/internal/conf"
	"Chorus/internal/data"
	"Chorus/internal/model"
	"Chorus/internal/ratelimit"
)

// fixture 服务层测试的公共脚手架：
// sqlite 内嵌库 + 一个用户/组织/成员/文章的最小数据集
type fixture struct {
	d    *data.Data
	user model.User
	org  model.Organization
	post model.Post
}

func newFixture(t *testing.T, role string) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, data.Migrate(db))

	f := &fixture{d: &data.Data{DB: db}}

	f.user = model.User{Username: "alice", PasswordHash: "x"}
	require.NoError(t, db.Create(&f.user).Error)

	f.org = model.Organization{Name: "Acme", Key: "acme", OwnerID: f.user.ID}
	require.NoError(t, db.Create(&f.org).Error)

	require.NoError(t, db.Create(&model.OrganizationMember{
		OrganizationID: f.org.ID,
		UserID:         f.user.ID,
		Role:           role,
		JoinedAt:       time.Now(),
	}).Error)

	f.post = model.Post{OrgID: f.org.ID, AuthorID: f.user.ID, Title: "Go 泛型实践", Body: "一些正文内容。"}
	require.NoError(t, db.Create(&f.post).Error)

	return f
}

func (f *fixture) addAgent(t *testing.T, handle string, tags []string, riskLevel int) *model.AgentProfile {
	t.Helper()
	raw, err := json.Marshal(tags)
	require.NoError(t, err)

	a := &model.AgentProfile{
		OrgID:       f.org.ID,
		DisplayName: handle,
		Handle:      handle,
		SeedText:    "测试人设",
		TopicTags:   raw,
		RiskLevel:   riskLevel,
		Enabled:     true,
	}
	require.NoError(t, f.d.DB.Create(a).Error)
	return a
}

// setPolicy 懒创建后按需改写策略 (Save 全量更新，false 也会写进去)
func (f *fixture) setPolicy(t *testing.T, mutate func(*model.AgentPolicy)) {
	t.Helper()
	p, err := getOrCreatePolicy(f.d.DB, f.org.ID)
	require.NoError(t, err)
	mutate(p)
	require.NoError(t, f.d.DB.Save(p).Error)
}

func (f *fixture) usageToday(t *testing.T) model.OrgUsageDaily {
	t.Helper()
	var row model.OrgUsageDaily
	require.NoError(t, f.d.DB.
		Where("org_id = ? AND day = ?", f.org.ID, model.UsageDay(time.Now())).
		First(&row).Error)
	return row
}

func defaultAgentCfg() conf.AgentConfig {
	return conf.AgentConfig{RateLimit: 100, RateWindow: time.Minute, DailyCap: 1000}
}

func newActionService(f *fixture, client *fakeLLM, cfg conf.AgentConfig) *ActionService {
	return NewActionService(f.d, client, ratelimit.New(), cfg)
}

// fakeLLM 脚本化网关：按 system prompt 区分生成调用和评分调用
type fakeLLM struct {
	enabled    bool
	content    string
	scoreResp  string
	genErr     error
	scoreErr   error
	genCalls   int
	scoreCalls int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.Contains(systemPrompt, "moderation scorer") {
		f.scoreCalls++
		if f.scoreErr != nil {
			return "", f.scoreErr
		}
		return f.scoreResp, nil
	}
	f.genCalls++
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.content, nil
}

func (f *fakeLLM) Enabled() bool    { return f.enabled }
func (f *fakeLLM) Provider() string { return "fake" }
func (f *fakeLLM) Model() string    { return "fake-1" }
