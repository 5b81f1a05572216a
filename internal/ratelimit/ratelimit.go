// Package ratelimit 按 (org, bucket) 分键的固定窗口限流器
// 只存在于进程内存，重启即清零；每日硬上限由 OrgUsageDaily 持久化兜底
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Result 单次命中的结果
type Result struct {
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

type window struct {
	count       int
	windowStart time.Time
}

// Limiter 互斥锁保护的计数表，所有操作均摊 O(1)
// now 可注入，测试里换成确定性时钟
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// New 创建限流器
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// NewWithClock 注入时钟 (测试用)
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now
	return l
}

// Hit 记录一次请求
// 当前时间越过窗口重置点后计数归零、开新窗口
func (l *Limiter) Hit(orgID uint, bucket string, limit int, windowDur time.Duration) Result {
	key := fmt.Sprintf("%d:%s", orgID, bucket)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.windowStart) >= windowDur {
		w = &window{windowStart: now}
		l.windows[key] = w
	}

	w.count++
	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetIn:   windowDur - now.Sub(w.windowStart),
	}
}
