package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"resume-match-go/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const nerSystemPrompt = `You are a named entity recognition engine for resumes.
Return ONLY a JSON array. Each element must be an object with the keys
"text" (the exact span as it appears in the input), "label" (one of PERSON, ORG, LOCATION, MISC)
and "score" (confidence between 0 and 1). Return [] when nothing is found.
Do not output any explanation or Markdown.`

// 单次请求送入模型的最大字符数
const defaultNERMaxInputRunes = 4000

// LLMRecognizer 通过聊天模型完成实体识别
type LLMRecognizer struct {
	chatModel     model.BaseChatModel
	maxInputRunes int
	logger        zerolog.Logger
}

// LLMRecognizerOption LLM 识别器选项
type LLMRecognizerOption func(*LLMRecognizer)

// WithNERMaxInputRunes 限制送入模型的文本长度
func WithNERMaxInputRunes(n int) LLMRecognizerOption {
	return func(r *LLMRecognizer) {
		if n > 0 {
			r.maxInputRunes = n
		}
	}
}

// WithNERLogger 设置日志
func WithNERLogger(l zerolog.Logger) LLMRecognizerOption {
	return func(r *LLMRecognizer) {
		r.logger = l
	}
}

// NewLLMRecognizer 创建基于聊天模型的识别器
func NewLLMRecognizer(chatModel model.BaseChatModel, opts ...LLMRecognizerOption) *LLMRecognizer {
	r := &LLMRecognizer{
		chatModel:     chatModel,
		maxInputRunes: defaultNERMaxInputRunes,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LLMRecognizerLoader 返回一个加载器，probe 为 true 时加载阶段会发送一次探测请求，
// 探测失败意味着模型不可用
func LLMRecognizerLoader(chatModel model.BaseChatModel, probe bool, opts ...LLMRecognizerOption) RecognizerLoader {
	return func(ctx context.Context) (EntityRecognizer, error) {
		if chatModel == nil {
			return nil, fmt.Errorf("聊天模型未配置")
		}
		r := NewLLMRecognizer(chatModel, opts...)
		if probe {
			if _, err := r.Recognize(ctx, "John Smith works at Google in Seattle, WA."); err != nil {
				return nil, fmt.Errorf("模型探测失败: %w", err)
			}
		}
		return r, nil
	}
}

// Recognize 调用模型并解析返回的 JSON 数组
func (r *LLMRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) > r.maxInputRunes {
		text = string([]rune(text)[:r.maxInputRunes])
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(nerSystemPrompt),
		einoschema.UserMessage(text),
	}
	resp, err := r.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("实体识别请求失败: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("实体识别返回空响应")
	}

	entities, err := parseEntityJSON(resp.Content)
	if err != nil {
		r.logger.Debug().Err(err).Str("content", tracing.SafeResumeContent(resp.Content)).Msg("实体识别响应解析失败")
		return nil, err
	}
	return entities, nil
}

type llmEntity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// parseEntityJSON 从模型输出中截取 JSON 数组，容忍 Markdown 代码块等包装
func parseEntityJSON(content string) ([]Entity, error) {
	content = strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF"))
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("响应中没有 JSON 数组")
	}

	var raw []llmEntity
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("反序列化实体失败: %w", err)
	}

	entities := make([]Entity, 0, len(raw))
	for _, e := range raw {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		entities = append(entities, Entity{
			Text:  text,
			Label: normalizeEntityLabel(e.Label),
			Score: clampScore(e.Score),
		})
	}
	return entities, nil
}

func normalizeEntityLabel(label string) EntityLabel {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PERSON", "PER":
		return EntityPerson
	case "ORG", "ORGANIZATION":
		return EntityOrganization
	case "LOCATION", "LOC", "GPE":
		return EntityLocation
	default:
		return EntityMisc
	}
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

var _ EntityRecognizer = (*LLMRecognizer)(nil)
