// Package llm 提供 OpenAI 兼容接口的聊天模型实现
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

const (
	// DashScope 的 OpenAI 兼容接口
	DefaultQwenAPIURL    = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	DefaultQwenModelName = "qwen-turbo"
)

// ErrEmptyAPIKey API 密钥为空
var ErrEmptyAPIKey = errors.New("API 密钥不能为空")

// APIError 接口返回非 200 状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API 请求失败，状态 %d: %s", e.StatusCode, e.Body)
}

// Retryable 限流和服务端错误可以重试
func (e *APIError) Retryable() bool {
	return e.StatusCode == consts.StatusTooManyRequests || e.StatusCode >= 500
}

// QwenChatModel 通义千问聊天模型，实现 model.BaseChatModel
type QwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature *float32
	timeout     time.Duration
	client      *client.Client
	logger      zerolog.Logger
}

// QwenOption 模型选项
type QwenOption func(*QwenChatModel)

// WithModelName 设置模型名称
func WithModelName(name string) QwenOption {
	return func(q *QwenChatModel) {
		if strings.TrimSpace(name) != "" {
			q.modelName = name
		}
	}
}

// WithAPIURL 设置接口地址
func WithAPIURL(url string) QwenOption {
	return func(q *QwenChatModel) {
		if strings.TrimSpace(url) != "" {
			q.apiURL = url
		}
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float64) QwenOption {
	return func(q *QwenChatModel) {
		v := float32(t)
		q.temperature = &v
	}
}

// WithRequestTimeout 设置单次请求超时
func WithRequestTimeout(d time.Duration) QwenOption {
	return func(q *QwenChatModel) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) QwenOption {
	return func(q *QwenChatModel) {
		q.logger = l
	}
}

var _ model.BaseChatModel = (*QwenChatModel)(nil)

// NewQwenChatModel 创建通义千问聊天模型
func NewQwenChatModel(apiKey string, opts ...QwenOption) (*QwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrEmptyAPIKey
	}
	q := &QwenChatModel{
		apiKey:    apiKey,
		modelName: DefaultQwenModelName,
		apiURL:    DefaultQwenAPIURL,
		timeout:   20 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}

	c, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 客户端失败: %w", err)
	}
	q.client = c
	q.logger.Info().Str("api_url", q.apiURL).Str("model", q.modelName).Msg("使用通义千问 LLM 客户端")
	return q, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate 发送一次非流式请求
func (q *QwenChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{Model: &q.modelName, Temperature: q.temperature}, opts...)

	payload := chatCompletionRequest{Temperature: common.Temperature}
	if common.Model != nil && *common.Model != "" {
		payload.Model = *common.Model
	} else {
		payload.Model = q.modelName
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(q.apiURL)
	req.SetMethod(consts.MethodPost)
	req.Header.Set("Authorization", "Bearer "+q.apiKey)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.SetBody(body)

	start := time.Now()
	if err := q.client.DoTimeout(ctx, req, resp, q.timeout); err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}

	respBody := resp.Body()
	q.logger.Debug().
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Int("messages", len(payload.Messages)).
		Msg("收到 LLM 响应")

	if resp.StatusCode() != consts.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: truncate(string(respBody), 500)}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", truncate(string(respBody), 200))
	}

	choice := parsed.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}
	msg := schema.AssistantMessage(content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: choice.FinishReason,
		Usage: &schema.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	return msg, nil
}

// Stream 未实现
func (q *QwenChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("QwenChatModel 的 Stream 方法未实现")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
