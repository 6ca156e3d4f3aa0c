package parser

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
)

// FieldExtractor 把分段后的简历文本填充到固定结构中。
// 实体识别模型通过 ModelHandle 注入，模型不可用时只使用规则提取。
type FieldExtractor struct {
	model         *ModelHandle
	nameScanLines int
	nameScanChars int
	minConfidence float64
	logger        zerolog.Logger
}

// FieldExtractorOption 字段提取器选项
type FieldExtractorOption func(*FieldExtractor)

// WithNameScanLines 设置识别姓名时扫描的头部行数
func WithNameScanLines(n int) FieldExtractorOption {
	return func(e *FieldExtractor) {
		if n > 0 {
			e.nameScanLines = n
		}
	}
}

// WithNameScanChars 设置头部文本的最大字符数
func WithNameScanChars(n int) FieldExtractorOption {
	return func(e *FieldExtractor) {
		if n > 0 {
			e.nameScanChars = n
		}
	}
}

// WithMinConfidence 设置实体的最低置信度
func WithMinConfidence(c float64) FieldExtractorOption {
	return func(e *FieldExtractor) {
		if c > 0 {
			e.minConfidence = c
		}
	}
}

// WithExtractorLogger 设置日志
func WithExtractorLogger(l zerolog.Logger) FieldExtractorOption {
	return func(e *FieldExtractor) {
		e.logger = l
	}
}

// NewFieldExtractor 创建字段提取器，model 为 nil 时始终以规则模式运行
func NewFieldExtractor(model *ModelHandle, opts ...FieldExtractorOption) *FieldExtractor {
	if model == nil {
		model = NewStaticModelHandle(nil)
	}
	e := &FieldExtractor{
		model:         model,
		nameScanLines: 5,
		nameScanChars: 500,
		minConfidence: 0.5,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extraction 提取结果
type Extraction struct {
	Resume   types.StructuredResume
	Degraded bool // 实体识别不可用或失败，姓名和组织字段未填充
}

// Extract 提取结构化简历，任何输入都不会返回错误
func (e *FieldExtractor) Extract(ctx context.Context, fullText string, sections types.SectionMap) types.StructuredResume {
	return e.ExtractWithStatus(ctx, fullText, sections).Resume
}

// ExtractWithStatus 与 Extract 相同，同时报告是否处于降级模式
func (e *FieldExtractor) ExtractWithStatus(ctx context.Context, fullText string, sections types.SectionMap) Extraction {
	resume := types.NewStructuredResume()
	if strings.TrimSpace(fullText) == "" {
		return Extraction{Resume: resume}
	}

	recognizer, err := e.model.Get(ctx)
	degraded := err != nil
	if degraded {
		logEvent := e.logger.Warn()
		if !errors.Is(err, ErrModelUnavailable) {
			logEvent = e.logger.Error()
		}
		logEvent.Err(err).Msg("实体识别不可用，使用规则提取")
	}

	lookup := func(ctx context.Context, text string) []Entity {
		if recognizer == nil || strings.TrimSpace(text) == "" {
			return nil
		}
		entities, recErr := recognizer.Recognize(ctx, text)
		if recErr != nil {
			degraded = true
			e.logger.Warn().Err(recErr).Msg("实体识别调用失败，跳过该片段")
			return nil
		}
		return entities
	}

	headerLines := e.headerLines(fullText)
	headerEntities := lookup(ctx, strings.Join(headerLines, "\n"))

	resume.Name = e.pickName(headerEntities)
	resume.Contact.Email = ExtractEmail(fullText)
	resume.Contact.Phone = ExtractPhone(fullText)
	ExtractLinks(fullText, &resume.Contact)
	resume.Contact.Address = extractAddress(fullText, headerLines, headerEntities, e.minConfidence)

	if text, ok := sections.Text(types.SectionSummary); ok {
		resume.Summary = types.StringPtr(text)
	}
	if text, ok := sections.Text(types.SectionSkills); ok {
		resume.Skills = SplitSkills(text)
	}
	if text, ok := sections.Text(types.SectionEducation); ok {
		resume.Education = types.StringPtr(text)
		resume.EducationEntries = buildEducationEntries(ctx, text, lookup, e.minConfidence)
	}
	if text, ok := sections.Text(types.SectionExperience); ok {
		resume.Experience = types.StringPtr(text)
		resume.ExperienceEntries = buildExperienceEntries(ctx, text, lookup, e.minConfidence)
	}
	if text, ok := sections.Text(types.SectionProjects); ok {
		resume.Projects = types.StringPtr(text)
	}

	for _, span := range sections.Spans {
		if d, ok := FindRelevantDate(span.Text); ok {
			resume.SectionDates[span.Label] = d
		}
	}

	e.logger.Debug().
		Bool("degraded", degraded).
		Bool("has_name", resume.Name != nil).
		Int("skills", len(resume.Skills)).
		Int("education_entries", len(resume.EducationEntries)).
		Int("experience_entries", len(resume.ExperienceEntries)).
		Msg("简历字段提取完成")

	return Extraction{Resume: resume, Degraded: degraded}
}

// headerLines 返回前 N 个非空行，总长度不超过 nameScanChars
func (e *FieldExtractor) headerLines(fullText string) []string {
	var lines []string
	total := 0
	for _, line := range strings.Split(fullText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if total+n > e.nameScanChars {
			if remaining := e.nameScanChars - total; remaining > 0 {
				lines = append(lines, string([]rune(line)[:remaining]))
			}
			break
		}
		lines = append(lines, line)
		total += n
		if len(lines) >= e.nameScanLines {
			break
		}
	}
	return lines
}

// pickName 取第一个置信度足够的人名实体
func (e *FieldExtractor) pickName(entities []Entity) *string {
	for _, ent := range entities {
		if ent.Label == EntityPerson && ent.Score >= e.minConfidence {
			return types.StringPtr(ent.Text)
		}
	}
	return nil
}
