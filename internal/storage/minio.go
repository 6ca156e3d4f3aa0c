package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("resume-match-go/storage/minio")

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadDocument 上传原始简历，返回对象键
	UploadDocument(ctx context.Context, analysisID, fileName string, data []byte) (string, error)
	// DownloadDocument 下载原始简历
	DownloadDocument(ctx context.Context, objectKey string) ([]byte, error)
	// UploadReport 上传分析报告或渲染结果到报告存储桶
	UploadReport(ctx context.Context, objectKey string, data []byte, contentType string) error
	// GetPresignedURL 获取报告存储桶中对象的预签名URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client          *minio.Client
	cfg             *config.MinIOConfig
	documentsBucket string
	reportsBucket   string
	logger          zerolog.Logger
}

// NewMinIO 创建MinIO客户端，并确保文档和报告两个存储桶存在
func NewMinIO(cfg *config.MinIOConfig, log zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:          client,
		cfg:             cfg,
		documentsBucket: cfg.DocumentsBucket,
		reportsBucket:   cfg.ReportsBucket,
		logger:          log.With().Str("component", "minio").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, bucket := range []string{m.documentsBucket, m.reportsBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	if cfg.ReportExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.reportsBucket, "expire-reports", cfg.ReportExpireDays); err != nil {
			m.logger.Warn().Err(err).Str("bucket", m.reportsBucket).Msg("设置报告生命周期规则失败")
		}
	}

	m.logger.Info().Str("endpoint", cfg.Endpoint).Msg("MinIO客户端初始化成功")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("已创建存储桶")
	return nil
}

// setupBucketLifecycle 为指定存储桶设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// DocumentObjectKey 返回原始简历的对象键，扩展名统一小写
func DocumentObjectKey(analysisID, fileName string) string {
	return fmt.Sprintf(constants.DocumentObjectKey, analysisID, strings.ToLower(filepath.Ext(fileName)))
}

func (m *MinIO) put(ctx context.Context, bucket, objectKey string, data []byte, contentType string) error {
	ctx, span := minioTracer.Start(ctx, "MinIO.PutObject", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("minio.bucket", bucket),
			attribute.String("minio.object", objectKey),
			attribute.Int("minio.size", len(data)),
		))
	defer span.End()

	_, err := m.client.PutObject(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return fmt.Errorf("上传对象 %s/%s 失败: %w", bucket, objectKey, err)
	}
	m.logger.Debug().Str("bucket", bucket).Str("object", objectKey).Int("size", len(data)).Msg("对象上传成功")
	return nil
}

// UploadDocument 上传原始简历到文档存储桶
func (m *MinIO) UploadDocument(ctx context.Context, analysisID, fileName string, data []byte) (string, error) {
	objectKey := DocumentObjectKey(analysisID, fileName)
	if err := m.put(ctx, m.documentsBucket, objectKey, data, ContentTypeFor(fileName)); err != nil {
		return "", err
	}
	return objectKey, nil
}

// UploadReport 上传到报告存储桶
func (m *MinIO) UploadReport(ctx context.Context, objectKey string, data []byte, contentType string) error {
	return m.put(ctx, m.reportsBucket, objectKey, data, contentType)
}

// DownloadDocument 从文档存储桶下载原始简历
func (m *MinIO) DownloadDocument(ctx context.Context, objectKey string) ([]byte, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.GetObject", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("minio.bucket", m.documentsBucket),
			attribute.String("minio.object", objectKey),
		))
	defer span.End()

	obj, err := m.client.GetObject(ctx, m.documentsBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.documentsBucket, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.documentsBucket, objectKey, err)
	}
	span.SetAttributes(attribute.Int("minio.size", len(data)))
	return data, nil
}

// GetPresignedURL 获取报告的预签名下载地址
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.reportsBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// ContentTypeFor 按文件扩展名返回内容类型
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".text", ".md":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
