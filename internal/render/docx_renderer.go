// Package render 把结构化简历填充到 docx 模板
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"resume-match-go/internal/types"

	"github.com/lukasjarosch/go-docx"
)

// ErrTemplateRequired 未配置模板
var ErrTemplateRequired = errors.New("未配置 docx 模板")

// Renderer 把简历渲染为文档
type Renderer interface {
	Render(ctx context.Context, resume types.StructuredResume) ([]byte, error)
}

// DocxRenderer 使用 {placeholder} 占位符的 docx 模板。
// 支持的占位符: name email phone linkedin github address summary skills
// education experience projects，RenderReport 额外支持 job_title company
// match_score match_strength matching_skills missing_skills。
type DocxRenderer struct {
	template []byte
}

var _ Renderer = (*DocxRenderer)(nil)

// NewDocxRenderer 读取模板文件
func NewDocxRenderer(templatePath string) (*DocxRenderer, error) {
	if strings.TrimSpace(templatePath) == "" {
		return nil, ErrTemplateRequired
	}
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("读取模板 %s 失败: %w", templatePath, err)
	}
	return NewDocxRendererFromBytes(data)
}

// NewDocxRendererFromBytes 使用内存中的模板
func NewDocxRendererFromBytes(template []byte) (*DocxRenderer, error) {
	if len(template) == 0 {
		return nil, ErrTemplateRequired
	}
	// 提前校验模板可以被打开
	doc, err := docx.OpenBytes(template)
	if err != nil {
		return nil, fmt.Errorf("打开模版docx文件失败: %w", err)
	}
	doc.Close()
	return &DocxRenderer{template: template}, nil
}

// Render 渲染简历，缺失字段替换为空字符串
func (r *DocxRenderer) Render(ctx context.Context, resume types.StructuredResume) ([]byte, error) {
	return r.fill(ctx, ResumePlaceholders(resume))
}

// RenderReport 渲染简历以及匹配结果
func (r *DocxRenderer) RenderReport(ctx context.Context, report types.AnalysisReport) ([]byte, error) {
	values := ResumePlaceholders(report.Resume)
	values["job_title"] = types.Deref(report.Job.Title)
	values["company"] = types.Deref(report.Job.Company)
	values["match_score"] = strconv.Itoa(report.Match.MatchScore)
	values["match_strength"] = string(report.Match.Strength)
	values["matching_skills"] = strings.Join(report.Match.MatchingSkills, ", ")
	values["missing_skills"] = strings.Join(report.Match.MissingSkills, ", ")
	return r.fill(ctx, values)
}

func (r *DocxRenderer) fill(ctx context.Context, values docx.PlaceholderMap) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := docx.OpenBytes(r.template)
	if err != nil {
		return nil, fmt.Errorf("打开模版docx文件失败: %w", err)
	}
	defer doc.Close()

	if err := doc.ReplaceAll(values); err != nil {
		return nil, fmt.Errorf("替换元素失败: %w", err)
	}
	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("写入docx失败: %w", err)
	}
	return buf.Bytes(), nil
}

// ResumePlaceholders 简历字段到占位符的映射
func ResumePlaceholders(resume types.StructuredResume) docx.PlaceholderMap {
	c := resume.Contact
	return docx.PlaceholderMap{
		"name":       types.Deref(resume.Name),
		"email":      types.Deref(c.Email),
		"phone":      types.Deref(c.Phone),
		"linkedin":   types.Deref(c.LinkedIn),
		"github":     types.Deref(c.GitHub),
		"address":    types.Deref(c.Address),
		"summary":    types.Deref(resume.Summary),
		"skills":     strings.Join(resume.Skills, ", "),
		"education":  types.Deref(resume.Education),
		"experience": types.Deref(resume.Experience),
		"projects":   types.Deref(resume.Projects),
	}
}
