package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PlainPDFExtractor 纯 Go 实现的 PDF 文本提取，不依赖外部服务
type PlainPDFExtractor struct{}

var _ PDFExtractor = PlainPDFExtractor{}

// ExtractTextFromBytes 逐页读取纯文本，跳过空页
func (PlainPDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (text string, metadata map[string]interface{}, err error) {
	// 损坏的文件可能让底层库 panic
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read pdf %s: %v", uri, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read pdf %s: %w", uri, err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pageText)
	}

	text = sb.String()
	return text, map[string]interface{}{
		"source_file_path": uri,
		"page_count":       numPages,
		"text_length":      len(text),
	}, nil
}
