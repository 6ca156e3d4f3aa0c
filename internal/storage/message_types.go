package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidMessage 消息字段不完整
var ErrInvalidMessage = errors.New("分析请求消息无效")

// AnalysisRequestMessage 分析请求消息，简历已上传到文档存储桶
type AnalysisRequestMessage struct {
	AnalysisID      string    `json:"analysis_id"`
	ResumeFileName  string    `json:"resume_file_name"`
	ResumeObjectKey string    `json:"resume_object_key"`
	JobText         string    `json:"job_text,omitempty"`
	JobURL          string    `json:"job_url,omitempty"` // JobText 为空时抓取该页面
	RenderResume    bool      `json:"render_resume,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// Validate 检查必填字段
func (m AnalysisRequestMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.AnalysisID) == "":
		return errors.Join(ErrInvalidMessage, errors.New("缺少 analysis_id"))
	case strings.TrimSpace(m.ResumeObjectKey) == "":
		return errors.Join(ErrInvalidMessage, errors.New("缺少 resume_object_key"))
	case strings.TrimSpace(m.JobText) == "" && strings.TrimSpace(m.JobURL) == "":
		return errors.Join(ErrInvalidMessage, errors.New("job_text 和 job_url 不能同时为空"))
	}
	return nil
}

// AnalysisResultMessage 分析完成或失败后发布的结果消息
type AnalysisResultMessage struct {
	AnalysisID        string    `json:"analysis_id"`
	Status            string    `json:"status"`
	MatchScore        int       `json:"match_score"`
	MatchStrength     string    `json:"match_strength,omitempty"`
	Degraded          bool      `json:"degraded"`
	ReportObjectKey   string    `json:"report_object_key,omitempty"`
	RenderedObjectKey string    `json:"rendered_object_key,omitempty"`
	Error             string    `json:"error,omitempty"`
	Retryable         bool      `json:"retryable,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}
