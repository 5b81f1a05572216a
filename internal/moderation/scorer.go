// Package moderation 内容风险评分
// 把生成文本交给 LLM 打 0-100 的风险分，解析失败逐级降级，绝不让分数为空
package moderation

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"Chorus/internal/llm"
)

// 评分降级原因
const (
	ReasonParseFail = "parse_fail"
	ReasonLLMOff    = "llm_off"
)

// DefaultScore 完全解析失败时的中性分
const DefaultScore = 50

const scoringSystemPrompt = `You are a strict content moderation scorer for a blog platform.
Rate the risk of the given text from 0 (completely safe) to 100 (must be blocked).
Consider: toxicity, harassment, spam, misinformation, unsafe advice.
Respond with strict JSON only: {"score": <int>, "reason": "<short string>"}`

// Scorer 审核评分器
type Scorer struct {
	client llm.Client
}

func NewScorer(client llm.Client) *Scorer {
	return &Scorer{client: client}
}

// Score 给文本打分，保证返回的分数始终在 [0,100]
// 网关关闭时返回 (0, "llm_off")：注意 Spawner 会把 llm_off 强制送人审，
// 不会因为 0 分直接放行 (未评分 ≠ 安全)
// 解析失败在本层降级消化；上游调用失败才返回 error，由调用方决定把该次动作标记为 blocked
func (s *Scorer) Score(ctx context.Context, text string) (int, string, error) {
	if !s.client.Enabled() {
		return 0, ReasonLLMOff, nil
	}

	raw, err := s.client.Complete(ctx, scoringSystemPrompt, text)
	if err != nil {
		return 0, "", err
	}

	score, reason := ParseScoreResponse(raw)
	return Clamp(score), reason, nil
}

type scorePayload struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// ParseScoreResponse 分层解析 LLM 返回：
// 1. 严格 JSON
// 2. 截取第一个 {...} 片段再解析
// 3. 提取文本里第一个 1-3 位数字当分数
// 4. 全部失败 -> (50, "parse_fail")
// 每层都是纯函数，可独立测试
func ParseScoreResponse(raw string) (int, string) {
	// 第 1 层：严格解析
	if score, reason, ok := parseStrict(raw); ok {
		return score, reason
	}
	// 第 2 层：花括号截取
	if score, reason, ok := parseBraceSpan(raw); ok {
		return score, reason
	}
	// 第 3 层：数字提取
	if score, ok := parseFirstNumber(raw); ok {
		return score, "numeric_fallback"
	}
	// 第 4 层：兜底
	return DefaultScore, ReasonParseFail
}

func parseStrict(raw string) (int, string, bool) {
	var p scorePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return 0, "", false
	}
	return p.Score, p.Reason, true
}

func parseBraceSpan(raw string) (int, string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return 0, "", false
	}
	var p scorePayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return 0, "", false
	}
	return p.Score, p.Reason, true
}

// parseFirstNumber 找文本里第一个 1-3 位的数字
func parseFirstNumber(raw string) (int, bool) {
	i := 0
	for i < len(raw) {
		if raw[i] >= '0' && raw[i] <= '9' {
			j := i
			for j < len(raw) && j-i < 3 && raw[j] >= '0' && raw[j] <= '9' {
				j++
			}
			// 超过 3 位的数字串不当分数 (比如时间戳)
			if j < len(raw) && raw[j] >= '0' && raw[j] <= '9' {
				for j < len(raw) && raw[j] >= '0' && raw[j] <= '9' {
					j++
				}
				i = j
				continue
			}
			n, err := strconv.Atoi(raw[i:j])
			if err == nil {
				return n, true
			}
			i = j
			continue
		}
		i++
	}
	return 0, false
}

// Clamp 无条件夹到 [0, 100]
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
