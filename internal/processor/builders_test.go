package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/parser"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPDFExtractor(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.PDF.Engine = config.PDFEnginePlain
	pdf, err := BuildPDFExtractor(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, parser.PlainPDFExtractor{}, pdf)

	cfg.PDF.Engine = config.PDFEngineTika
	cfg.Tika.ServerURL = ""
	_, err = BuildPDFExtractor(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err, "tika 需要服务地址")

	cfg.Tika.ServerURL = "http://localhost:9998"
	pdf, err = BuildPDFExtractor(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &parser.TikaPDFExtractor{}, pdf)

	cfg.PDF.Engine = "ocr"
	_, err = BuildPDFExtractor(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildModelHandle(t *testing.T) {
	ctx := context.Background()

	h, err := BuildModelHandle(&config.NERConfig{Provider: config.NERProviderNone}, zerolog.Nop())
	require.NoError(t, err)
	_, err = h.Get(ctx)
	assert.ErrorIs(t, err, parser.ErrModelUnavailable)

	h, err = BuildModelHandle(&config.NERConfig{Provider: config.NERProviderHeuristic}, zerolog.Nop())
	require.NoError(t, err)
	rec, err := h.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	_, err = BuildModelHandle(&config.NERConfig{Provider: "spacy"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildModelHandleLLMWithoutKeyDegrades(t *testing.T) {
	h, err := BuildModelHandle(&config.NERConfig{Provider: config.NERProviderLLM}, zerolog.Nop())
	require.NoError(t, err, "缺少密钥不阻止启动")

	_, err = h.Get(context.Background())
	assert.Error(t, err)

	extractor := parser.NewFieldExtractor(h)
	out := extractor.ExtractWithStatus(context.Background(), testResume, parser.NewSegmenter(nil).Segment(testResume))
	assert.True(t, out.Degraded)
	assert.Equal(t, []string{"Python", "SQL", "Docker"}, out.Resume.Skills)
}

func TestKeywordOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Keywords.ExtraStopWords = []string{"python"}

	a := NewAnalyzer(WithKeywordOptions(KeywordOptions(&cfg.Keywords)...))
	assert.Equal(t, []string{"java", "sql"}, a.JobKeywords(context.Background(), testJob).Tokens())
}

func TestNewAnalyzerFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PDF.Engine = config.PDFEnginePlain
	cfg.NER.Provider = config.NERProviderHeuristic

	a, err := NewAnalyzerFromConfig(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, a.fetcher)

	report, err := a.Analyze(context.Background(), AnalysisInput{ResumeText: testResume, JobText: testJob})
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Equal(t, 67, report.Match.MatchScore)
}

func TestNewAnalyzerFromConfigRejectsUnknownEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PDF.Engine = "ocr"
	_, err := NewAnalyzerFromConfig(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestAnalysisErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := newAnalysisError("a1", "download", ErrDocumentDownloadFailed, cause)

	assert.Equal(t, "下载简历文档失败 (操作:download, ID:a1): boom", err.Error())
	assert.ErrorIs(t, err, ErrDocumentDownloadFailed)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))

	noCause := newAnalysisError("a2", "render", ErrRenderFailed, nil)
	assert.Equal(t, "渲染简历失败 (操作:render, ID:a2)", noCause.Error())
	assert.False(t, IsRetryable(noCause))
}

func TestCorruptDocumentIsNotRetryable(t *testing.T) {
	corrupt := fmt.Errorf("%w: %w", parser.ErrExtractionFailed, io.ErrUnexpectedEOF)
	err := newAnalysisError("a1", "extract", ErrExtractTextFailed, corrupt)
	assert.False(t, IsRetryable(err), "损坏文档即使底层错误含 EOF 也不应重投")

	unsupported := fmt.Errorf("%w: %q", parser.ErrUnsupportedFormat, ".xls")
	assert.False(t, IsRetryable(newAnalysisError("a1", "extract", ErrExtractTextFailed, unsupported)))

	// 下载阶段的 EOF 仍可重试
	assert.True(t, IsRetryable(newAnalysisError("a1", "download", ErrDocumentDownloadFailed, io.ErrUnexpectedEOF)))
}

func TestIsRetryablePlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("i/o timeout")))
	assert.False(t, IsRetryable(context.Canceled))
}
