package processor

import (
	"context"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/fetcher"
	"resume-match-go/internal/keyword"
	"resume-match-go/internal/llm"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/ratelimit"

	"github.com/rs/zerolog"
)

// BuildPDFExtractor 根据配置返回PDF解析器实现
func BuildPDFExtractor(ctx context.Context, cfg *config.Config, log zerolog.Logger) (parser.PDFExtractor, error) {
	switch cfg.PDF.Engine {
	case config.PDFEngineTika:
		if cfg.Tika.ServerURL == "" {
			return nil, fmt.Errorf("PDF引擎为tika但未配置tika.server_url")
		}
		log.Info().Str("server", cfg.Tika.ServerURL).Msg("使用Tika PDF解析器")
		return parser.NewTikaPDFExtractor(cfg.Tika.ServerURL,
			parser.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second),
			parser.WithTikaLogger(log.With().Str("component", "tika_pdf").Logger()),
		), nil
	case config.PDFEnginePlain:
		log.Info().Msg("使用纯Go PDF解析器")
		return parser.PlainPDFExtractor{}, nil
	case config.PDFEngineEino, "":
		log.Info().Msg("使用Eino PDF解析器")
		return parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(log.With().Str("component", "eino_pdf").Logger()))
	default:
		return nil, fmt.Errorf("未知的PDF引擎: %s", cfg.PDF.Engine)
	}
}

// BuildModelHandle 根据 ner.provider 构建实体识别模型句柄。
// llm 模式下模型在首次使用时才加载，加载失败时分析自动降级为规则提取。
func BuildModelHandle(cfg *config.NERConfig, log zerolog.Logger) (*parser.ModelHandle, error) {
	nerLog := log.With().Str("component", "ner").Logger()
	switch cfg.Provider {
	case config.NERProviderNone:
		return parser.NewStaticModelHandle(nil), nil
	case config.NERProviderHeuristic, "":
		return parser.NewStaticModelHandle(parser.NewHeuristicRecognizer()), nil
	case config.NERProviderLLM:
		opts := []llm.QwenOption{
			llm.WithAPIURL(cfg.APIURL),
			llm.WithModelName(cfg.Model),
			llm.WithRequestTimeout(config.GetDuration(cfg.Timeout, 20*time.Second)),
			llm.WithLogger(nerLog),
		}
		if cfg.Temperature > 0 {
			opts = append(opts, llm.WithTemperature(cfg.Temperature))
		}
		chatModel, err := llm.NewQwenChatModel(cfg.APIKey, opts...)
		if err != nil {
			// 缺少密钥等配置问题同样视为模型不可用
			nerLog.Warn().Err(err).Msg("LLM 实体识别不可用，将使用规则提取")
			return parser.NewModelHandle(func(context.Context) (parser.EntityRecognizer, error) {
				return nil, err
			}, nerLog), nil
		}
		limited := ratelimit.NewRateLimitedChatModel(chatModel, cfg.QPM).WithRetryPolicy(time.Second, 3)
		return parser.NewModelHandle(
			parser.LLMRecognizerLoader(limited, cfg.ProbeOnLoad, parser.WithNERLogger(nerLog)),
			nerLog,
		), nil
	default:
		return nil, fmt.Errorf("未知的实体识别提供方: %s", cfg.Provider)
	}
}

// BuildFetcher 根据配置创建岗位页面抓取器
func BuildFetcher(cfg *config.FetcherConfig, log zerolog.Logger) (*fetcher.HTMLFetcher, error) {
	return fetcher.New(
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(config.GetDuration(cfg.Timeout, fetcher.DefaultTimeout)),
		fetcher.WithMinContentLength(cfg.MinContentLength),
		fetcher.WithMaxBodyBytes(cfg.MaxBodyBytes),
		fetcher.WithLogger(log.With().Str("component", "fetcher").Logger()),
	)
}

// KeywordOptions 把配置转换为关键词提取选项
func KeywordOptions(cfg *config.KeywordsConfig) []keyword.Option {
	opts := []keyword.Option{
		keyword.WithMinLength(cfg.MinLength),
		keyword.WithTopN(cfg.TopN),
	}
	if len(cfg.ExtraStopWords) > 0 {
		opts = append(opts, keyword.WithStopWords(cfg.ExtraStopWords...))
	}
	return opts
}

// NewAnalyzerFromConfig 按配置组装分析器，extra 中的选项最后应用
func NewAnalyzerFromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger, extra ...Option) (*Analyzer, error) {
	pdf, err := BuildPDFExtractor(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("初始化PDF解析器失败: %w", err)
	}
	handle, err := BuildModelHandle(&cfg.NER, log)
	if err != nil {
		return nil, err
	}
	htmlFetcher, err := BuildFetcher(&cfg.Fetcher, log)
	if err != nil {
		return nil, fmt.Errorf("初始化岗位抓取器失败: %w", err)
	}

	keywords := parser.MergeSectionKeywords(parser.DefaultSectionKeywords(), cfg.Segmenter.SectionKeywords, cfg.Segmenter.ReplaceDefaults)
	extractor := parser.NewFieldExtractor(handle,
		parser.WithNameScanLines(cfg.Extractor.NameScanLines),
		parser.WithNameScanChars(cfg.Extractor.NameScanChars),
		parser.WithMinConfidence(cfg.Extractor.MinConfidence),
		parser.WithExtractorLogger(log.With().Str("component", "field_extractor").Logger()),
	)

	opts := []Option{
		WithLogger(log),
		WithSegmenter(parser.NewSegmenter(keywords)),
		WithFieldExtractor(extractor),
		WithTextExtractor(parser.NewDocumentTextExtractor(pdf, parser.WithDocumentLogger(log))),
		WithFetcher(htmlFetcher),
		WithMatcher(matcher.New(matcher.WithTopN(cfg.Matcher.TopN), matcher.WithDisplayTopN(cfg.Keywords.DisplayTopN))),
		WithKeywordOptions(KeywordOptions(&cfg.Keywords)...),
	}
	return NewAnalyzer(append(opts, extra...)...), nil
}
