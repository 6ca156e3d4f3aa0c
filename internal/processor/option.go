package processor

import (
	"time"

	"resume-match-go/internal/fetcher"
	"resume-match-go/internal/keyword"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/metrics"
	"resume-match-go/internal/parser"

	"github.com/rs/zerolog"
)

// Option 分析器选项
type Option func(*Analyzer)

// WithSegmenter 设置简历分段器
func WithSegmenter(s *parser.Segmenter) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.segmenter = s
		}
	}
}

// WithFieldExtractor 设置字段提取器
func WithFieldExtractor(e *parser.FieldExtractor) Option {
	return func(a *Analyzer) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithJobAnalyzer 设置岗位描述分析器
func WithJobAnalyzer(j *parser.JobAnalyzer) Option {
	return func(a *Analyzer) {
		if j != nil {
			a.jobAnalyzer = j
		}
	}
}

// WithTextExtractor 设置文档文本提取器
func WithTextExtractor(t parser.TextExtractor) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.textExtractor = t
		}
	}
}

// WithFetcher 设置岗位页面抓取器
func WithFetcher(f fetcher.Fetcher) Option {
	return func(a *Analyzer) {
		a.fetcher = f
	}
}

// WithMatcher 设置匹配器
func WithMatcher(m *matcher.Matcher) Option {
	return func(a *Analyzer) {
		if m != nil {
			a.matcher = m
		}
	}
}

// WithKeywordOptions 设置关键词提取选项
func WithKeywordOptions(opts ...keyword.Option) Option {
	return func(a *Analyzer) {
		a.keywordOpts = opts
	}
}

// WithKeywordCache 设置岗位关键词缓存
func WithKeywordCache(c KeywordCache) Option {
	return func(a *Analyzer) {
		a.cache = c
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithLogger 设置日志记录器
func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l.With().Str("component", "analyzer").Logger()
	}
}

// WithIDGenerator 设置分析ID生成函数
func WithIDGenerator(fn func() string) Option {
	return func(a *Analyzer) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// WithClock 设置时间来源
func WithClock(fn func() time.Time) Option {
	return func(a *Analyzer) {
		if fn != nil {
			a.now = fn
		}
	}
}
