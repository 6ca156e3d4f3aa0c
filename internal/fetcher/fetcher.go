// Package fetcher 抓取岗位页面并提取正文文本
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"resume-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultTimeout          = 10 * time.Second
	DefaultMinContentLength = 1000
	DefaultMaxBodyBytes     = 5 << 20
	maxRedirects            = 5
)

var (
	// ErrMalformedURL 地址无法解析或不是 http/https
	ErrMalformedURL = errors.New("URL 格式错误")
	// ErrFetchFailure 网络错误或非 2xx 响应
	ErrFetchFailure = errors.New("页面抓取失败")
	// ErrNoContent 页面中没有可用的正文
	ErrNoContent = errors.New("页面没有可提取的正文")
)

// FetchError 抓取失败的详细信息
type FetchError struct {
	URL        string
	StatusCode int // 网络错误时为 0
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("抓取 %s 失败: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("抓取 %s 失败: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailure}
	}
	return []error{ErrFetchFailure, e.Err}
}

// Retryable 网络错误、限流和服务端错误可以重试
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == consts.StatusTooManyRequests || e.StatusCode >= 500
}

// Fetcher 获取岗位页面文本
type Fetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// HTMLFetcher 基于 hertz 客户端的页面抓取器
type HTMLFetcher struct {
	client           *client.Client
	userAgent        string
	timeout          time.Duration
	minContentLength int
	maxBodyBytes     int
	logger           zerolog.Logger
	tracer           trace.Tracer
}

// Option 抓取器选项
type Option func(*HTMLFetcher)

// WithUserAgent 设置 User-Agent
func WithUserAgent(ua string) Option {
	return func(f *HTMLFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(f *HTMLFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMinContentLength 容器文本超过该长度时直接采用
func WithMinContentLength(n int) Option {
	return func(f *HTMLFetcher) {
		if n > 0 {
			f.minContentLength = n
		}
	}
}

// WithMaxBodyBytes 限制读取的响应体大小
func WithMaxBodyBytes(n int) Option {
	return func(f *HTMLFetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(f *HTMLFetcher) {
		f.logger = l
	}
}

var _ Fetcher = (*HTMLFetcher)(nil)

// New 创建页面抓取器
func New(opts ...Option) (*HTMLFetcher, error) {
	f := &HTMLFetcher{
		userAgent:        DefaultUserAgent,
		timeout:          DefaultTimeout,
		minContentLength: DefaultMinContentLength,
		maxBodyBytes:     DefaultMaxBodyBytes,
		logger:           zerolog.Nop(),
		tracer:           otel.Tracer("resume-match-go/fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}

	c, err := client.NewClient(client.WithDialTimeout(f.timeout))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 客户端失败: %w", err)
	}
	f.client = c
	return f, nil
}

// NormalizeURL 补全缺失的协议并校验地址
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: 地址为空", ErrMalformedURL)
	}
	if !strings.Contains(rawURL, "://") {
		if !strings.Contains(rawURL, ".") {
			return "", fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
		}
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}
	return u.String(), nil
}

// FetchText 抓取页面并返回正文文本
func (f *HTMLFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	ctx, span := f.tracer.Start(ctx, "fetcher.FetchText", trace.WithAttributes(attribute.String("http.url", target)))
	defer span.End()

	start := time.Now()
	body, contentType, err := f.get(ctx, target)
	if err != nil {
		var fetchErr *FetchError
		status := 0
		if errors.As(err, &fetchErr) {
			status = fetchErr.StatusCode
		}
		tracing.RecordHTTPError(span, err, status)
		f.logger.Warn().Err(err).Str("url", target).Msg("页面抓取失败")
		return "", err
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}
	text, err := ExtractText(reader, f.minContentLength)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	span.SetAttributes(attribute.Int("content.length", len(text)))
	f.logger.Debug().Str("url", target).Int("chars", len(text)).Dur("duration", time.Since(start)).Msg("页面抓取完成")
	return text, nil
}

// get 发送 GET 请求，手动跟随重定向
func (f *HTMLFetcher) get(ctx context.Context, target string) ([]byte, string, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	for i := 0; i <= maxRedirects; i++ {
		req.Reset()
		resp.Reset()
		req.SetRequestURI(target)
		req.SetMethod(consts.MethodGet)
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

		if err := f.client.DoTimeout(ctx, req, resp, f.timeout); err != nil {
			return nil, "", &FetchError{URL: target, Err: err}
		}

		status := resp.StatusCode()
		if isRedirect(status) {
			next, err := resolveLocation(target, string(resp.Header.Peek("Location")))
			if err != nil {
				return nil, "", &FetchError{URL: target, StatusCode: status, Err: err}
			}
			target = next
			continue
		}
		if status < 200 || status >= 300 {
			return nil, "", &FetchError{URL: target, StatusCode: status}
		}

		body := resp.Body()
		if len(body) > f.maxBodyBytes {
			body = body[:f.maxBodyBytes]
		}
		// resp 会被回收，需要复制
		out := make([]byte, len(body))
		copy(out, body)
		return out, string(resp.Header.ContentType()), nil
	}
	return nil, "", &FetchError{URL: target, Err: errors.New("重定向次数过多")}
}

func isRedirect(status int) bool {
	switch status {
	case consts.StatusMovedPermanently, consts.StatusFound, consts.StatusSeeOther,
		consts.StatusTemporaryRedirect, consts.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base, location string) (string, error) {
	if location == "" {
		return "", errors.New("重定向缺少 Location")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}
