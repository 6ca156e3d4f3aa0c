// resume-match 对单份简历和岗位描述做一次匹配分析，或把分析请求提交到队列
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/render"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/types"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	resumePath string
	jobPath    string
	jobURL     string
	template   string
	out        string
	submit     bool
	render     bool
	status     string
	rank       bool
	limit      int
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径，为空时在常见位置查找")
	pflag.StringVarP(&opts.resumePath, "resume", "r", "", "简历文件 (pdf, docx, txt)")
	pflag.StringVarP(&opts.jobPath, "job", "j", "", "岗位描述文本文件")
	pflag.StringVar(&opts.jobURL, "job-url", "", "岗位页面链接，未提供 --job 时抓取")
	pflag.StringVarP(&opts.template, "template", "t", "", "docx 模板，默认使用 renderer.template_path")
	pflag.StringVarP(&opts.out, "out", "o", "", "渲染后的 docx 输出路径")
	pflag.BoolVar(&opts.submit, "submit", false, "上传简历并提交到分析队列，而不是在本地分析")
	pflag.BoolVar(&opts.render, "render", false, "与 --submit 一起使用，要求工作者渲染 docx")
	pflag.StringVar(&opts.status, "status", "", "查询分析记录")
	pflag.BoolVar(&opts.rank, "rank", false, "列出与 --job 相同岗位的已完成分析，按分数排序")
	pflag.IntVar(&opts.limit, "limit", 20, "--rank 返回的最大条数")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 .env 失败: %v\n", err)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	logger.BindHertz()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch {
	case opts.status != "":
		err = runStatus(ctx, cfg, opts)
	case opts.rank:
		err = runRank(ctx, cfg, opts)
	case opts.submit:
		err = runSubmit(ctx, cfg, opts)
	default:
		err = runAnalyze(ctx, cfg, opts)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("执行失败")
	}
}

func readJob(opts options) (string, error) {
	if opts.jobPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(opts.jobPath)
	if err != nil {
		return "", fmt.Errorf("读取岗位描述失败: %w", err)
	}
	return string(data), nil
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts options) error {
	if opts.resumePath == "" {
		return errors.New("必须提供 --resume")
	}
	data, err := os.ReadFile(opts.resumePath)
	if err != nil {
		return fmt.Errorf("读取简历失败: %w", err)
	}
	jobText, err := readJob(opts)
	if err != nil {
		return err
	}

	var extra []processor.Option
	if cfg.Redis.Address != "" {
		redis, err := storage.NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis 不可用，不使用岗位关键词缓存")
		} else {
			defer redis.Close()
			extra = append(extra, processor.WithKeywordCache(redis))
		}
	}

	analyzer, err := processor.NewAnalyzerFromConfig(ctx, cfg, logger.Logger, extra...)
	if err != nil {
		return err
	}
	report, err := analyzer.Analyze(ctx, processor.AnalysisInput{
		ResumeFileName: filepath.Base(opts.resumePath),
		ResumeData:     data,
		JobText:        jobText,
		JobURL:         opts.jobURL,
	})
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}

	if opts.out == "" {
		return nil
	}
	return renderToFile(ctx, cfg, opts, *report)
}

func renderToFile(ctx context.Context, cfg *config.Config, opts options, report types.AnalysisReport) error {
	templatePath := opts.template
	if templatePath == "" {
		templatePath = cfg.Renderer.TemplatePath
	}
	renderer, err := render.NewDocxRenderer(templatePath)
	if err != nil {
		return err
	}
	doc, err := renderer.RenderReport(ctx, report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, doc, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", opts.out, err)
	}
	logger.Info().Str("path", opts.out).Msg("已生成 docx")
	return nil
}

func runSubmit(ctx context.Context, cfg *config.Config, opts options) error {
	if opts.resumePath == "" {
		return errors.New("必须提供 --resume")
	}
	data, err := os.ReadFile(opts.resumePath)
	if err != nil {
		return fmt.Errorf("读取简历失败: %w", err)
	}
	jobText, err := readJob(opts)
	if err != nil {
		return err
	}

	st, err := storage.NewStorage(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.MinIO == nil || st.RabbitMQ == nil {
		return errors.New("提交分析需要配置 minio 和 rabbitmq")
	}
	var records processor.RecordStore
	if st.MySQL != nil {
		records = st.MySQL
	}

	submitter, err := processor.NewSubmitter(st.MinIO, records, st.RabbitMQ, cfg.RabbitMQ, logger.Logger)
	if err != nil {
		return err
	}
	id, err := submitter.Submit(ctx, processor.SubmitRequest{
		ResumeFileName: filepath.Base(opts.resumePath),
		ResumeData:     data,
		JobText:        jobText,
		JobURL:         opts.jobURL,
		RenderResume:   opts.render,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

type statusView struct {
	AnalysisID     string   `json:"analysis_id"`
	Status         string   `json:"status"`
	Candidate      string   `json:"candidate,omitempty"`
	JobTitle       string   `json:"job_title,omitempty"`
	MatchScore     int      `json:"match_score"`
	MatchStrength  string   `json:"match_strength,omitempty"`
	MatchingSkills []string `json:"matching_skills"`
	MissingSkills  []string `json:"missing_skills"`
	Degraded       bool     `json:"degraded"`
	Error          string   `json:"error,omitempty"`
	ReportURL      string   `json:"report_url,omitempty"`
	RenderedURL    string   `json:"rendered_url,omitempty"`
}

func runStatus(ctx context.Context, cfg *config.Config, opts options) error {
	st, err := storage.NewStorage(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.MySQL == nil {
		return errors.New("查询分析记录需要配置 mysql")
	}

	rec, err := st.MySQL.GetAnalysis(ctx, opts.status)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return fmt.Errorf("分析 %s 不存在", opts.status)
	}
	if err != nil {
		return err
	}
	matching, err := rec.MatchingSkills()
	if err != nil {
		return err
	}
	missing, err := rec.MissingSkills()
	if err != nil {
		return err
	}

	view := statusView{
		AnalysisID:     rec.AnalysisID,
		Status:         rec.Status,
		Candidate:      rec.CandidateName,
		JobTitle:       rec.JobTitle,
		MatchScore:     rec.MatchScore,
		MatchStrength:  rec.MatchStrength,
		MatchingSkills: matching,
		MissingSkills:  missing,
		Degraded:       rec.Degraded,
		Error:          rec.ErrorMessage,
	}
	if st.MinIO != nil {
		expiry := 24 * time.Hour
		if rec.ReportObjectKey != "" {
			if view.ReportURL, err = st.MinIO.GetPresignedURL(ctx, rec.ReportObjectKey, expiry); err != nil {
				logger.Warn().Err(err).Msg("生成报告链接失败")
			}
		}
		if rec.RenderedObjectKey != "" {
			if view.RenderedURL, err = st.MinIO.GetPresignedURL(ctx, rec.RenderedObjectKey, expiry); err != nil {
				logger.Warn().Err(err).Msg("生成 docx 链接失败")
			}
		}
	}
	return printJSON(view)
}

type rankRow struct {
	AnalysisID    string `json:"analysis_id"`
	Candidate     string `json:"candidate,omitempty"`
	Email         string `json:"email,omitempty"`
	MatchScore    int    `json:"match_score"`
	MatchStrength string `json:"match_strength"`
}

func runRank(ctx context.Context, cfg *config.Config, opts options) error {
	jobText, err := readJob(opts)
	if err != nil {
		return err
	}
	if jobText == "" {
		return errors.New("--rank 需要 --job")
	}
	st, err := storage.NewStorage(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.MySQL == nil {
		return errors.New("排序需要配置 mysql")
	}

	records, err := st.MySQL.ListAnalysesByJob(ctx, storage.JobTextID(jobText), opts.limit)
	if err != nil {
		return err
	}
	rows := make([]rankRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, rankRow{
			AnalysisID:    r.AnalysisID,
			Candidate:     r.CandidateName,
			Email:         r.CandidateEmail,
			MatchScore:    r.MatchScore,
			MatchStrength: r.MatchStrength,
		})
	}
	return printJSON(rows)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
