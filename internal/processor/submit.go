package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
)

// ErrJobRequired 岗位文本和岗位链接都为空
var ErrJobRequired = errors.New("必须提供岗位描述或岗位链接")

// DocumentUploader 上传原始简历
type DocumentUploader interface {
	UploadDocument(ctx context.Context, analysisID, fileName string, data []byte) (string, error)
}

// SubmitRequest 提交到分析队列的请求
type SubmitRequest struct {
	ResumeFileName string
	ResumeData     []byte
	JobText        string
	JobURL         string
	RenderResume   bool
}

// Submitter 上传简历并发布分析请求，由 Worker 异步处理
type Submitter struct {
	docs       DocumentUploader
	records    RecordStore
	publisher  ResultPublisher
	exchange   string
	requestKey string
	newID      func() string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewSubmitter 创建提交器，records 可为 nil
func NewSubmitter(docs DocumentUploader, records RecordStore, publisher ResultPublisher, mq config.RabbitMQConfig, log zerolog.Logger) (*Submitter, error) {
	if docs == nil || publisher == nil {
		return nil, errors.New("提交分析请求需要对象存储和消息队列")
	}
	return &Submitter{
		docs:       docs,
		records:    records,
		publisher:  publisher,
		exchange:   mq.AnalysisExchange,
		requestKey: mq.RequestRoutingKey,
		newID:      newAnalysisID,
		now:        time.Now,
		logger:     log.With().Str("component", "submitter").Logger(),
	}, nil
}

// Submit 返回新分析的ID
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if types.FormatFromFileName(req.ResumeFileName) == types.FormatUnknown {
		return "", fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, req.ResumeFileName)
	}
	if strings.TrimSpace(req.JobText) == "" && strings.TrimSpace(req.JobURL) == "" {
		return "", ErrJobRequired
	}

	id := s.newID()
	objectKey, err := s.docs.UploadDocument(ctx, id, req.ResumeFileName, req.ResumeData)
	if err != nil {
		return "", newAnalysisError(id, "upload_document", ErrStoreReportFailed, err)
	}

	msg := storage.AnalysisRequestMessage{
		AnalysisID:      id,
		ResumeFileName:  req.ResumeFileName,
		ResumeObjectKey: objectKey,
		JobText:         req.JobText,
		JobURL:          req.JobURL,
		RenderResume:    req.RenderResume,
		SubmittedAt:     s.now(),
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	if s.records != nil {
		record := &models.AnalysisRecord{
			AnalysisID:      id,
			ResumeFileName:  req.ResumeFileName,
			ResumeObjectKey: objectKey,
			JobSourceURL:    req.JobURL,
			Status:          constants.AnalysisStatusPending,
		}
		if req.JobText != "" {
			record.JobTextID = storage.JobTextID(req.JobText)
		}
		if err := s.records.SaveAnalysis(ctx, record); err != nil {
			return "", newAnalysisError(id, "save_record", ErrDatabaseFailed, err)
		}
	}

	if err := s.publisher.PublishJSON(ctx, s.exchange, s.requestKey, msg); err != nil {
		return "", newAnalysisError(id, "publish_request", ErrPublishResultFailed, err)
	}
	s.logger.Info().Str("analysis_id", id).Str("object", objectKey).Msg("分析请求已提交")
	return id, nil
}
