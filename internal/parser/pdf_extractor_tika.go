package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TikaPDFExtractor 是基于Apache Tika的PDF解析器
type TikaPDFExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 是否提取精简元数据
	extractMetadata bool
	// 是否提取链接注释文本
	extractAnnotations bool
	logger             zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaPDFExtractor)

// WithTikaMetadata 配置是否额外请求 /meta 获取关键元数据
func WithTikaMetadata(extract bool) TikaOption {
	return func(e *TikaPDFExtractor) {
		e.extractMetadata = extract
	}
}

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaPDFExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 配置日志
func WithTikaLogger(logger zerolog.Logger) TikaOption {
	return func(e *TikaPDFExtractor) {
		e.logger = logger
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaPDFExtractor) {
		if timeout > 0 {
			e.Client.Timeout = timeout
		}
	}
}

var _ PDFExtractor = (*TikaPDFExtractor)(nil)

// NewTikaPDFExtractor 创建一个新的Tika PDF解析器
func NewTikaPDFExtractor(serverURL string, options ...TikaOption) *TikaPDFExtractor {
	extractor := &TikaPDFExtractor{
		ServerURL:          serverURL,
		Client:             &http.Client{Timeout: 60 * time.Second},
		extractMetadata:    true,
		extractAnnotations: true,
		logger:             zerolog.Nop(),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// ExtractTextFromBytes 把文档 PUT 到 {server}/tika 获取纯文本
func (e *TikaPDFExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	metadata := map[string]interface{}{
		"extraction_time":  startTime.Format(time.RFC3339),
		"source_file_path": uri,
	}

	body, err := e.put(ctx, "/tika", "text/plain", data, uri)
	if err != nil {
		return "", metadata, err
	}
	text := string(body)
	metadata["text_length"] = len(text)
	metadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	if e.extractMetadata {
		raw, metaErr := e.fetchMetadata(ctx, data, uri)
		if metaErr != nil {
			e.logger.Warn().Err(metaErr).Str("uri", uri).Msg("元数据提取失败, 继续使用基本元数据")
		}
		for k, v := range raw {
			if isImportantMetadata(k) {
				metadata[k] = v
			}
		}
	}

	e.logger.Debug().Str("uri", uri).Int("chars", len(text)).Msg("Tika 文本提取完成")
	return text, metadata, nil
}

// 判断元数据字段是否重要
func isImportantMetadata(key string) bool {
	switch key {
	case "pdf:PDFVersion", "xmpTPg:NPages", "dcterms:created", "language", "dc:title",
		"Content-Type", "pdf:docinfo:title", "pdf:docinfo:created", "pdf:encrypted":
		return true
	}
	return false
}

func (e *TikaPDFExtractor) fetchMetadata(ctx context.Context, data []byte, uri string) (map[string]interface{}, error) {
	body, err := e.put(ctx, "/meta", "application/json", data, uri)
	if err != nil {
		return nil, err
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("解析元数据JSON失败: %w", err)
	}
	return metadata, nil
}

func (e *TikaPDFExtractor) put(ctx context.Context, path, accept string, data []byte, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", accept)
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取Tika响应失败: %w", err)
	}
	return body, nil
}
