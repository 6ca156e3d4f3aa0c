// worker 消费分析请求队列，把报告写入对象存储和数据库并发布结果
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/metrics"
	"resume-match-go/internal/outbox"
	"resume-match-go/internal/processor"
	"resume-match-go/internal/render"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

var version = "dev"

func main() {
	var configPath string
	var workers int
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时在常见位置查找")
	pflag.IntVarP(&workers, "workers", "w", 0, "并发消费者数量，默认使用 rabbitmq.workers")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 .env 失败: %v\n", err)
	}
	cfg, err := config.LoadConfig(configPath)
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
	log := logger.Component("worker_main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, version)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("关闭链路追踪失败")
		}
	}()

	st, err := storage.NewStorage(ctx, cfg, logger.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer st.Close()
	if st.MinIO == nil || st.RabbitMQ == nil {
		log.Fatal().Msg("工作者需要配置 minio 和 rabbitmq")
	}

	var m *metrics.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		metricsServer = startMetricsServer(cfg.Metrics, reg)
	}

	analyzerOpts := []processor.Option{processor.WithMetrics(m)}
	deps := processor.WorkerDeps{Documents: st.MinIO, Publisher: st.RabbitMQ}
	// 未配置的组件保持接口为 nil
	if st.Redis != nil {
		analyzerOpts = append(analyzerOpts, processor.WithKeywordCache(st.Redis))
		deps.Locker = st.Redis
	}
	var relay *outbox.MessageRelay
	if st.MySQL != nil {
		deps.Records = st.MySQL
		if cfg.Outbox.Enabled {
			deps.Outbox = st.MySQL
			relay = outbox.NewMessageRelay(st.MySQL.DB(), st.RabbitMQ, cfg.Outbox, logger.Logger)
		}
	}
	if cfg.Renderer.TemplatePath != "" {
		renderer, err := render.NewDocxRenderer(cfg.Renderer.TemplatePath)
		if err != nil {
			log.Fatal().Err(err).Msg("加载 docx 模板失败")
		}
		deps.Renderer = renderer
	}

	analyzer, err := processor.NewAnalyzerFromConfig(ctx, cfg, logger.Logger, analyzerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化分析器失败")
	}
	worker, err := processor.NewWorker(analyzer, deps, cfg.RabbitMQ, logger.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化工作者失败")
	}

	if workers <= 0 {
		workers = cfg.RabbitMQ.Workers
	}
	relayDone := make(chan struct{})
	if relay != nil {
		go func() {
			defer close(relayDone)
			relay.Run(ctx)
		}()
	} else {
		close(relayDone)
	}

	log.Info().Str("version", version).Int("workers", workers).Bool("outbox", relay != nil).Msg("工作者启动")
	if err := worker.Run(ctx, st.RabbitMQ, cfg.RabbitMQ.RequestQueue, cfg.RabbitMQ.PrefetchCount, workers); err != nil {
		log.Error().Err(err).Msg("工作者异常退出")
	}
	log.Info().Msg("收到退出信号，正在关闭资源...")
	stop()
	<-relayDone

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("关闭指标服务失败")
		}
	}
}

func startMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", cfg.Address).Msg("指标服务退出")
		}
	}()
	logger.Info().Str("addr", cfg.Address).Str("path", cfg.Path).Msg("指标服务已启动")
	return srv
}
