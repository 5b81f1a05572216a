// Package llm 封装对外部文本补全服务 (OpenAI 兼容接口) 的调用
// 两种实现在启动时二选一：配置了 API Key 用 HTTP 客户端，否则用关闭态的空实现
// 调用方通过 Enabled() 判断是否降级 (模板生成 / llm_off 评分)，不靠异常探测
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"Chorus/internal/apperr"
	"Chorus/internal/conf"
)

// Client 文本生成网关
type Client interface {
	// Complete 同步补全：system + user prompt -> 生成文本
	// 上游非 2xx / 超时返回包装过的 apperr.ErrUpstream
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Enabled 是否配置了有效凭证
	Enabled() bool

	// Provider / Model 溯源信息，落库到 AgentAction
	Provider() string
	Model() string
}

// New 根据配置选择实现
func New(cfg conf.AIConfig) Client {
	if cfg.APIKey == "" {
		return &disabledClient{}
	}
	return &openAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// =====================================================
// 真实现：OpenAI 兼容的 /chat/completions
// =====================================================

type openAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// 1. 组装请求体
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   512,
		Temperature: 0.8,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	// 2. 发起 HTTP 调用 (超时由 http.Client 控制)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: 补全请求失败: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: 读取响应失败: %v", apperr.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: 上游返回 %d: %s", apperr.ErrUpstream, resp.StatusCode, truncate(string(raw), 200))
	}

	// 3. 解析响应
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("%w: 响应解析失败: %v", apperr.ErrUpstream, err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("%w: %s", apperr.ErrUpstream, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: 响应没有 choices", apperr.ErrUpstream)
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *openAIClient) Enabled() bool    { return true }
func (c *openAIClient) Provider() string { return "openai_compat" }
func (c *openAIClient) Model() string    { return c.model }

// =====================================================
// 关闭态：没有配置凭证时的空实现
// =====================================================

type disabledClient struct{}

func (d *disabledClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", fmt.Errorf("%w: AI 网关未配置 API Key", apperr.ErrConfig)
}

func (d *disabledClient) Enabled() bool    { return false }
func (d *disabledClient) Provider() string { return "disabled" }
func (d *disabledClient) Model() string    { return "" }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
