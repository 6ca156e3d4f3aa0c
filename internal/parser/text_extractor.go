package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupportedFormat 文件扩展名不在支持列表中
	ErrUnsupportedFormat = errors.New("不支持的文档格式")
	// ErrExtractionFailed 文档为空、损坏、加密或没有可提取的文本
	ErrExtractionFailed = errors.New("文档文本提取失败")
)

// PDFExtractor PDF 文本提取引擎
type PDFExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error)
}

// TextExtractor 把原始文档转换为纯文本
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (string, error)
}

// DocumentTextExtractor 按扩展名分发到 PDF、DOCX 或纯文本解码
type DocumentTextExtractor struct {
	pdf    PDFExtractor
	logger zerolog.Logger
}

// DocumentExtractorOption 文本提取器选项
type DocumentExtractorOption func(*DocumentTextExtractor)

// WithDocumentLogger 设置日志
func WithDocumentLogger(l zerolog.Logger) DocumentExtractorOption {
	return func(d *DocumentTextExtractor) {
		d.logger = l
	}
}

var _ TextExtractor = (*DocumentTextExtractor)(nil)

// NewDocumentTextExtractor 创建文本提取器，pdf 为 nil 时使用 PlainPDFExtractor
func NewDocumentTextExtractor(pdf PDFExtractor, opts ...DocumentExtractorOption) *DocumentTextExtractor {
	if pdf == nil {
		pdf = PlainPDFExtractor{}
	}
	d := &DocumentTextExtractor{pdf: pdf, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Extract 提取文档文本
func (d *DocumentTextExtractor) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	format := types.FormatFromFileName(fileName)
	if format == types.FormatUnknown {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s 内容为空", ErrExtractionFailed, fileName)
	}

	var (
		text string
		err  error
	)
	switch format {
	case types.FormatPDF:
		text, _, err = d.pdf.ExtractTextFromBytes(ctx, data, fileName)
	case types.FormatDOCX:
		text, err = ExtractDocxText(data)
	case types.FormatText:
		text = DecodeText(data)
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("file", fileName).Str("format", string(format)).Msg("文档文本提取失败")
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		// 扫描件或加密文档通常没有可提取的文本
		return "", fmt.Errorf("%w: %s 没有可提取的文本", ErrExtractionFailed, fileName)
	}

	d.logger.Debug().Str("file", fileName).Str("format", string(format)).Int("chars", len(text)).Msg("文档文本提取完成")
	return text, nil
}

// DecodeText 优先按 UTF-8 解码，不合法时按 Latin-1 解码
func DecodeText(data []byte) string {
	data = trimUTF8BOM(data)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(decoded)
}

func trimUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
