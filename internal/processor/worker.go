package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
)

// DocumentStore 简历文档和报告的对象存储
type DocumentStore interface {
	DownloadDocument(ctx context.Context, objectKey string) ([]byte, error)
	UploadReport(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// RecordStore 分析记录持久化
type RecordStore interface {
	SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error
	// UpdateAnalysisStatus 记录不存在时返回 storage.ErrRecordNotFound
	UpdateAnalysisStatus(ctx context.Context, analysisID, status, errMsg string) error
}

// ResultPublisher 发布分析结果消息
type ResultPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}) error
}

// Locker 分布式锁，拿不到锁时 AcquireLock 返回空字符串
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// ReportRenderer 把分析报告渲染为 docx
type ReportRenderer interface {
	RenderReport(ctx context.Context, report types.AnalysisReport) ([]byte, error)
}

// OutboxStore 在同一事务中保存分析记录和待发布的结果消息
type OutboxStore interface {
	SaveAnalysisWithEvent(ctx context.Context, record *models.AnalysisRecord, event *models.OutboxMessage) error
}

// WorkerDeps 工作者依赖，除 Documents 外均可为 nil。
// 配置 Outbox 时成功结果经发件箱发布，不再直接调用 Publisher。
type WorkerDeps struct {
	Documents DocumentStore
	Records   RecordStore
	Outbox    OutboxStore
	Publisher ResultPublisher
	Locker    Locker
	Renderer  ReportRenderer
}

// Worker 消费分析请求消息
type Worker struct {
	analyzer  *Analyzer
	deps      WorkerDeps
	exchange  string
	resultKey string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewWorker 创建工作者
func NewWorker(analyzer *Analyzer, deps WorkerDeps, mq config.RabbitMQConfig, log zerolog.Logger) (*Worker, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer 不能为空")
	}
	if deps.Documents == nil {
		return nil, errors.New("未配置文档存储")
	}
	return &Worker{
		analyzer:  analyzer,
		deps:      deps,
		exchange:  mq.AnalysisExchange,
		resultKey: mq.ResultRoutingKey,
		logger:    log.With().Str("component", "worker").Logger(),
		now:       time.Now,
	}, nil
}

// HandleMessage 处理一条消息，返回 true 表示确认。
// 无效消息和不可重试的失败都会被确认，可重试的失败交给队列重新投递。
func (w *Worker) HandleMessage(ctx context.Context, body []byte) bool {
	var msg storage.AnalysisRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error().Err(err).Msg("解析分析请求消息失败，丢弃")
		return true
	}
	if err := msg.Validate(); err != nil {
		w.logger.Error().Err(err).Str("analysis_id", msg.AnalysisID).Msg("分析请求消息无效，丢弃")
		return true
	}
	log := w.logger.With().Str("analysis_id", msg.AnalysisID).Logger()

	if w.deps.Locker != nil {
		lockKey := storage.AnalysisLockKey(msg.AnalysisID)
		lockValue, err := w.deps.Locker.AcquireLock(ctx, lockKey, constants.AnalysisLockTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("获取分析锁失败，继续处理可能导致重复分析")
		case lockValue == "":
			log.Info().Msg("该分析正在其他实例处理中，跳过")
			return true
		default:
			defer func() {
				released, err := w.deps.Locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue)
				if err != nil || !released {
					log.Warn().Err(err).Bool("released", released).Msg("释放分析锁失败")
				}
			}()
		}
	}

	result, err := w.Process(ctx, msg)
	if err == nil {
		log.Info().Int("match_score", result.MatchScore).Msg("分析请求处理完成")
		return true
	}

	retryable := IsRetryable(err)
	log.Error().Err(err).Bool("retryable", retryable).Msg("分析请求处理失败")
	w.recordFailure(context.WithoutCancel(ctx), msg, err, retryable)
	return !retryable
}

// Process 执行一次分析请求：下载简历，分析，保存报告和记录，发布结果
func (w *Worker) Process(ctx context.Context, msg storage.AnalysisRequestMessage) (*storage.AnalysisResultMessage, error) {
	id := msg.AnalysisID

	data, err := w.deps.Documents.DownloadDocument(ctx, msg.ResumeObjectKey)
	if err != nil {
		return nil, newAnalysisError(id, "download", ErrDocumentDownloadFailed, err)
	}

	report, err := w.analyzer.Analyze(ctx, AnalysisInput{
		AnalysisID:     id,
		ResumeFileName: msg.ResumeFileName,
		ResumeData:     data,
		JobText:        msg.JobText,
		JobURL:         msg.JobURL,
	})
	if err != nil {
		return nil, err
	}

	reportKey := fmt.Sprintf(constants.ReportJSONObjectKey, id)
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, newAnalysisError(id, "marshal", ErrStoreReportFailed, err)
	}
	if err := w.deps.Documents.UploadReport(ctx, reportKey, reportJSON, "application/json"); err != nil {
		return nil, newAnalysisError(id, "upload_report", ErrStoreReportFailed, err)
	}

	var renderedKey string
	if msg.RenderResume && w.deps.Renderer != nil {
		doc, err := w.deps.Renderer.RenderReport(ctx, *report)
		if err != nil {
			return nil, newAnalysisError(id, "render", ErrRenderFailed, err)
		}
		renderedKey = fmt.Sprintf(constants.ReportDocxObjectKey, id)
		if err := w.deps.Documents.UploadReport(ctx, renderedKey, doc, storage.ContentTypeFor(renderedKey)); err != nil {
			return nil, newAnalysisError(id, "upload_render", ErrStoreReportFailed, err)
		}
	}

	result := &storage.AnalysisResultMessage{
		AnalysisID:        id,
		Status:            constants.AnalysisStatusCompleted,
		MatchScore:        report.Match.MatchScore,
		MatchStrength:     string(report.Match.Strength),
		Degraded:          report.Degraded,
		ReportObjectKey:   reportKey,
		RenderedObjectKey: renderedKey,
		CompletedAt:       w.now(),
	}

	if w.deps.Outbox == nil && w.deps.Records == nil {
		if err := w.publish(ctx, result); err != nil {
			return nil, newAnalysisError(id, "publish", ErrPublishResultFailed, err)
		}
		return result, nil
	}

	record, err := models.NewAnalysisRecord(*report, w.source(msg), constants.AnalysisStatusCompleted)
	if err != nil {
		return nil, newAnalysisError(id, "build_record", ErrDatabaseFailed, err)
	}
	record.ReportObjectKey = reportKey
	record.RenderedObjectKey = renderedKey

	if w.deps.Outbox != nil {
		event, err := models.NewOutboxMessage(id, constants.EventAnalysisCompleted, w.exchange, w.resultKey, result)
		if err != nil {
			return nil, newAnalysisError(id, "build_event", ErrDatabaseFailed, err)
		}
		if err := w.deps.Outbox.SaveAnalysisWithEvent(ctx, record, event); err != nil {
			return nil, newAnalysisError(id, "save_record", ErrDatabaseFailed, err)
		}
		return result, nil
	}

	if err := w.deps.Records.SaveAnalysis(ctx, record); err != nil {
		return nil, newAnalysisError(id, "save_record", ErrDatabaseFailed, err)
	}
	if err := w.publish(ctx, result); err != nil {
		return nil, newAnalysisError(id, "publish", ErrPublishResultFailed, err)
	}
	return result, nil
}

func (w *Worker) source(msg storage.AnalysisRequestMessage) models.AnalysisSource {
	src := models.AnalysisSource{
		ResumeFileName:  msg.ResumeFileName,
		ResumeObjectKey: msg.ResumeObjectKey,
		JobSourceURL:    msg.JobURL,
	}
	// 抓取得到的岗位文本不回传，按URL关联
	if msg.JobText != "" {
		src.JobTextID = storage.JobTextID(msg.JobText)
	}
	return src
}

func (w *Worker) publish(ctx context.Context, result *storage.AnalysisResultMessage) error {
	if w.deps.Publisher == nil {
		return nil
	}
	return w.deps.Publisher.PublishJSON(ctx, w.exchange, w.resultKey, result)
}

// recordFailure 保存失败记录并发布失败结果，自身的错误只记录日志
func (w *Worker) recordFailure(ctx context.Context, msg storage.AnalysisRequestMessage, cause error, retryable bool) {
	log := w.logger.With().Str("analysis_id", msg.AnalysisID).Logger()

	if w.deps.Records != nil {
		err := w.deps.Records.UpdateAnalysisStatus(ctx, msg.AnalysisID, constants.AnalysisStatusFailed, cause.Error())
		if errors.Is(err, storage.ErrRecordNotFound) {
			err = w.deps.Records.SaveAnalysis(ctx, failedRecord(msg, cause))
		}
		if err != nil {
			log.Error().Err(err).Msg("保存失败记录失败")
		}
	}

	if err := w.publish(ctx, &storage.AnalysisResultMessage{
		AnalysisID:  msg.AnalysisID,
		Status:      constants.AnalysisStatusFailed,
		Error:       cause.Error(),
		Retryable:   retryable,
		CompletedAt: w.now(),
	}); err != nil {
		log.Error().Err(err).Msg("发布失败结果失败")
	}
}

func failedRecord(msg storage.AnalysisRequestMessage, cause error) *models.AnalysisRecord {
	record := &models.AnalysisRecord{
		AnalysisID:      msg.AnalysisID,
		ResumeFileName:  msg.ResumeFileName,
		ResumeObjectKey: msg.ResumeObjectKey,
		JobSourceURL:    msg.JobURL,
		Status:          constants.AnalysisStatusFailed,
		ErrorMessage:    cause.Error(),
	}
	if msg.JobText != "" {
		record.JobTextID = storage.JobTextID(msg.JobText)
	}
	return record
}

// Run 在 workers 个消费者上处理请求队列，ctx 取消且所有消费者退出后返回
func (w *Worker) Run(ctx context.Context, mq storage.MessageQueue, queue string, prefetch, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		done, err := mq.StartConsumer(ctx, queue, prefetch, func(body []byte) bool {
			return w.HandleMessage(ctx, body)
		})
		if err != nil {
			return fmt.Errorf("启动第 %d 个消费者失败: %w", i+1, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}
	w.logger.Info().Str("queue", queue).Int("workers", workers).Int("prefetch", prefetch).Msg("分析工作者已启动")
	wg.Wait()
	return nil
}
