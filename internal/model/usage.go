package model

import "time"

// OrgUsageDaily 组织每日用量计数 (UTC 日)
// 限流器的持久化兜底：进程重启后内存窗口清零，但每日硬上限不丢
type OrgUsageDaily struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrgID uint   `gorm:"not null;uniqueIndex:uk_org_day,priority:1" json:"org_id"`
	Day   string `gorm:"size:10;not null;uniqueIndex:uk_org_day,priority:2" json:"day"` // "2026-08-28"

	ActionsSpawned   int64 `gorm:"default:0" json:"actions_spawned"`
	ActionsPublished int64 `gorm:"default:0" json:"actions_published"`
}

// UsageDay 返回 t 对应的 UTC 日期串，作为 OrgUsageDaily.Day 的规范格式
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
