package processor

import (
	"errors"
	"fmt"

	"resume-match-go/internal/parser"
	"resume-match-go/internal/ratelimit"
)

// 定义基础错误类型
var (
	ErrDocumentDownloadFailed = errors.New("下载简历文档失败")
	ErrExtractTextFailed      = errors.New("提取简历文本失败")
	ErrFetchJobFailed         = errors.New("获取岗位描述失败")
	ErrFetcherNotConfigured   = errors.New("未配置岗位页面抓取器")
	ErrStoreReportFailed      = errors.New("保存分析报告失败")
	ErrRenderFailed           = errors.New("渲染简历失败")
	ErrDatabaseFailed         = errors.New("数据库操作失败")
	ErrPublishResultFailed    = errors.New("发布分析结果失败")
)

// 这些阶段的失败通常来自外部依赖的短暂故障
var transientBaseErrors = []error{
	ErrDocumentDownloadFailed,
	ErrStoreReportFailed,
	ErrDatabaseFailed,
	ErrPublishResultFailed,
}

// AnalysisError 包含详细错误信息的自定义错误
type AnalysisError struct {
	AnalysisID string
	Op         string
	BaseErr    error
	Detail     string
	Cause      error // 底层错误，可为 nil
}

func (e *AnalysisError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, ID:%s): %s", e.BaseErr, e.Op, e.AnalysisID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, ID:%s)", e.BaseErr, e.Op, e.AnalysisID)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.BaseErr, target) || (e.Cause != nil && errors.Is(e.Cause, target))
}

// Retryable 底层错误可重试，或失败发生在依赖外部存储的阶段。
// 文档本身不受支持或已损坏时重投也不会成功，不论底层错误的文字如何。
func (e *AnalysisError) Retryable() bool {
	if errors.Is(e.Cause, parser.ErrUnsupportedFormat) || errors.Is(e.Cause, parser.ErrExtractionFailed) {
		return false
	}
	if e.Cause != nil && ratelimit.IsRetryableError(e.Cause) {
		return true
	}
	for _, base := range transientBaseErrors {
		if errors.Is(e.BaseErr, base) {
			return true
		}
	}
	return false
}

func newAnalysisError(id, op string, base, cause error) error {
	e := &AnalysisError{AnalysisID: id, Op: op, BaseErr: base, Cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// IsRetryable 判断分析失败后是否值得重新投递
func IsRetryable(err error) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return ratelimit.IsRetryableError(err)
}
