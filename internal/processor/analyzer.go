package processor

import (
	"context"
	"errors"
	"strings"
	"time"

	"resume-match-go/internal/fetcher"
	"resume-match-go/internal/keyword"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/metrics"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var analyzerTracer = otel.Tracer("resume-match-go/processor")

// KeywordCache 岗位关键词缓存，未命中时 Get 返回错误
// variant 是 keyword.Fingerprint 的结果，不同提取参数的列表分开缓存
type KeywordCache interface {
	GetJobKeywords(ctx context.Context, jobText, variant string) (types.KeywordList, error)
	SetJobKeywords(ctx context.Context, jobText, variant string, keywords types.KeywordList) error
}

// ResumeAnalysis 单份简历的解析结果
type ResumeAnalysis struct {
	Text     string
	Sections types.SectionMap
	Resume   types.StructuredResume
	Degraded bool
}

// AnalysisInput 一次完整分析的输入。
// 简历来自 ResumeData（按 ResumeFileName 的扩展名解析）或 ResumeText；
// 岗位来自 JobText，为空时抓取 JobURL。
type AnalysisInput struct {
	AnalysisID     string
	ResumeFileName string
	ResumeData     []byte
	ResumeText     string
	JobText        string
	JobURL         string
}

// Analyzer 串联分段、字段提取、关键词提取和匹配
type Analyzer struct {
	segmenter     *parser.Segmenter
	extractor     *parser.FieldExtractor
	jobAnalyzer   *parser.JobAnalyzer
	textExtractor parser.TextExtractor
	fetcher       fetcher.Fetcher
	matcher       *matcher.Matcher
	keywordOpts   []keyword.Option
	keywordKey    string
	cache         KeywordCache
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	newID         func() string
	now           func() time.Time
}

// NewAnalyzer 创建分析器。未指定的组件使用默认实现：
// 默认字段提取器没有实体识别模型，默认文本提取器用纯Go解析PDF，没有页面抓取器。
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		segmenter:     parser.NewSegmenter(nil),
		extractor:     parser.NewFieldExtractor(nil),
		jobAnalyzer:   parser.NewJobAnalyzer(nil),
		textExtractor: parser.NewDocumentTextExtractor(nil),
		matcher:       matcher.New(),
		logger:        zerolog.Nop(),
		newID:         newAnalysisID,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.keywordKey = keyword.Fingerprint(a.keywordOpts...)
	return a
}

// newAnalysisID 生成按时间排序的 UUIDv7
func newAnalysisID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// AnalyzeResumeText 分段并提取结构化字段，任何文本都不会出错
func (a *Analyzer) AnalyzeResumeText(ctx context.Context, text string) ResumeAnalysis {
	sections := a.segmenter.Segment(text)
	out := a.extractor.ExtractWithStatus(ctx, text, sections)
	if out.Degraded {
		a.metrics.IncDegraded()
	}
	return ResumeAnalysis{Text: text, Sections: sections, Resume: out.Resume, Degraded: out.Degraded}
}

// AnalyzeResume 提取文档文本后解析。不支持的格式和损坏的文档返回错误。
func (a *Analyzer) AnalyzeResume(ctx context.Context, fileName string, data []byte) (ResumeAnalysis, error) {
	text, err := a.textExtractor.Extract(ctx, fileName, data)
	if err != nil {
		return ResumeAnalysis{}, err
	}
	return a.AnalyzeResumeText(ctx, text), nil
}

// JobKeywords 提取岗位关键词，配置了缓存时先查缓存
func (a *Analyzer) JobKeywords(ctx context.Context, jobText string) types.KeywordList {
	if strings.TrimSpace(jobText) == "" {
		return types.KeywordList{}
	}
	if a.cache != nil {
		if cached, err := a.cache.GetJobKeywords(ctx, jobText, a.keywordKey); err == nil {
			a.logger.Debug().Int("keywords", len(cached)).Msg("岗位关键词缓存命中")
			return cached
		}
	}

	keywords := keyword.Extract(jobText, a.keywordOpts...)
	if a.cache != nil {
		if err := a.cache.SetJobKeywords(ctx, jobText, a.keywordKey, keywords); err != nil {
			a.logger.Warn().Err(err).Msg("写入岗位关键词缓存失败")
		}
	}
	return keywords
}

// AnalyzeJob 分析岗位描述并填充关键词
func (a *Analyzer) AnalyzeJob(ctx context.Context, jobText string) types.JobProfile {
	profile := a.jobAnalyzer.Analyze(jobText)
	profile.Keywords = a.JobKeywords(ctx, jobText)
	return profile
}

// FetchJob 抓取岗位页面正文
func (a *Analyzer) FetchJob(ctx context.Context, url string) (string, error) {
	if a.fetcher == nil {
		return "", ErrFetcherNotConfigured
	}
	text, err := a.fetcher.FetchText(ctx, url)
	a.metrics.ObserveFetch(err)
	return text, err
}

// Compare 比较简历技能与岗位关键词
func (a *Analyzer) Compare(resume types.StructuredResume, jobKeywords types.KeywordList) types.MatchResult {
	return a.matcher.Compare(resume, jobKeywords)
}

// Analyze 并发解析简历和岗位，然后计算匹配结果
func (a *Analyzer) Analyze(ctx context.Context, in AnalysisInput) (report *types.AnalysisReport, err error) {
	id := in.AnalysisID
	if id == "" {
		id = a.newID()
	}
	start := a.now()
	log := a.logger.With().Str("analysis_id", id).Logger()

	ctx, span := analyzerTracer.Start(ctx, "Analyzer.Analyze", trace.WithAttributes(
		attribute.String("analysis.id", id),
		attribute.String("resume.file_name", tracing.SafeAttributeValue("resume.file_name", in.ResumeFileName, 0)),
		attribute.Bool("job.from_url", strings.TrimSpace(in.JobText) == "" && in.JobURL != ""),
	))
	defer func() {
		a.metrics.ObserveAnalysis("analyze", err, a.now().Sub(start))
		if err != nil {
			tracing.RecordError(span, err, errorTypeOf(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	var (
		resume ResumeAnalysis
		job    types.JobProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if in.ResumeFileName == "" && len(in.ResumeData) == 0 {
			resume = a.AnalyzeResumeText(gctx, in.ResumeText)
			return nil
		}
		r, extractErr := a.AnalyzeResume(gctx, in.ResumeFileName, in.ResumeData)
		if extractErr != nil {
			return newAnalysisError(id, "extract", ErrExtractTextFailed, extractErr)
		}
		resume = r
		return nil
	})
	g.Go(func() error {
		jobText := in.JobText
		if strings.TrimSpace(jobText) == "" && in.JobURL != "" {
			fetched, fetchErr := a.FetchJob(gctx, in.JobURL)
			if fetchErr != nil {
				return newAnalysisError(id, "fetch", ErrFetchJobFailed, fetchErr)
			}
			jobText = fetched
		}
		job = a.AnalyzeJob(gctx, jobText)
		return nil
	})
	if err = g.Wait(); err != nil {
		log.Error().Err(err).Msg("分析失败")
		return nil, err
	}

	match := a.Compare(resume.Resume, job.Keywords)
	a.metrics.ObserveMatchScore(match.MatchScore)
	span.SetAttributes(
		attribute.Int("match.score", match.MatchScore),
		attribute.Bool("resume.degraded", resume.Degraded),
	)

	log.Info().
		Str("candidate", tracing.MaskPII(types.Deref(resume.Resume.Name))).
		Int("skills", len(resume.Resume.Skills)).
		Int("job_keywords", len(job.Keywords)).
		Int("match_score", match.MatchScore).
		Str("strength", string(match.Strength)).
		Bool("degraded", resume.Degraded).
		Dur("elapsed", a.now().Sub(start)).
		Msg("分析完成")

	return &types.AnalysisReport{
		AnalysisID: id,
		Resume:     resume.Resume,
		Sections:   resume.Sections,
		Job:        job,
		Match:      match,
		Degraded:   resume.Degraded,
		CreatedAt:  start,
	}, nil
}

func errorTypeOf(err error) tracing.ErrorType {
	switch {
	case errors.Is(err, ErrFetchJobFailed):
		return tracing.ErrorTypeHTTP
	case errors.Is(err, ErrExtractTextFailed):
		return tracing.ErrorTypeExtraction
	default:
		return tracing.ErrorTypeInternal
	}
}
