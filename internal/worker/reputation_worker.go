package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"Chorus/internal/data"
	"Chorus/internal/model"

	"gorm.io/gorm"
)

// ReputationWorker 从 Redis 队列消费发布事件，给人设累积声望
// 声望是发布副作用，异步累加，不挤占 Spawn 请求的事务
type ReputationWorker struct {
	data *data.Data
}

func NewReputationWorker(data *data.Data) *ReputationWorker {
	return &ReputationWorker{data: data}
}

type reputationEvent struct {
	ActionID uint `json:"action_id"`
	AgentID  uint `json:"agent_id"`
}

// Start 启动 Worker (非阻塞，内部起协程)
func (w *ReputationWorker) Start(ctx context.Context, numWorkers int) {
	log.Printf("🚀 启动 %d 个声望 Worker，监听队列 %s...", numWorkers, data.ReputationQueue)

	for i := 0; i < numWorkers; i++ {
		go w.processLoop(ctx, i)
	}
}

func (w *ReputationWorker) processLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			// 1. 阻塞式获取任务 (BLPOP，2 秒超时以便响应 ctx 取消)
			result, err := w.data.Redis.BLPop(ctx, 2*time.Second, data.ReputationQueue).Result()
			if err != nil {
				// 超时空转是正常的，其他错误稍等重试
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// 2. 解析并处理
			var ev reputationEvent
			if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
				log.Printf("[Worker-%d] ❌ 事件解析失败: %v", workerID, err)
				continue
			}
			if err := w.applyEvent(ctx, ev); err != nil {
				log.Printf("[Worker-%d] ❌ 声望累积失败 (agent=%d): %v", workerID, ev.AgentID, err)
			}
		}
	}
}

// applyEvent 校验动作确实是 published 状态再加分，表达式累加避免丢更新
func (w *ReputationWorker) applyEvent(ctx context.Context, ev reputationEvent) error {
	var action model.AgentAction
	if err := w.data.DB.WithContext(ctx).First(&action, ev.ActionID).Error; err != nil {
		return err
	}
	if action.Status != model.ActionStatusPublished {
		return nil
	}

	return w.data.DB.WithContext(ctx).
		Model(&model.AgentProfile{}).
		Where("id = ?", ev.AgentID).
		Update("reputation", gorm.Expr("reputation + ?", 1)).Error
}
