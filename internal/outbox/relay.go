// Package outbox 实现发件箱模式：分析记录和结果消息在同一事务中写入 MySQL，
// 中继定期把待发布的消息投递到 RabbitMQ。
package outbox

import (
	"context"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/storage/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetries      = 5
)

// Publisher 投递原始消息体
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	now             func() time.Time
	tracer          trace.Tracer
}

// NewMessageRelay 创建中继，cfg 中的非正值使用默认值
func NewMessageRelay(db *gorm.DB, publisher Publisher, cfg config.OutboxConfig, log zerolog.Logger) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          log.With().Str("component", "outbox_relay").Logger(),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      defaultMaxRetries,
		now:             time.Now,
		tracer:          otel.Tracer("resume-match-go/outbox"),
	}
	if cfg.PollIntervalSeconds > 0 {
		r.pollingInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	if cfg.BatchSize > 0 {
		r.batchSize = cfg.BatchSize
	}
	if cfg.MaxRetries > 0 {
		r.maxRetries = cfg.MaxRetries
	}
	return r
}

// Run 按轮询间隔处理待发布消息，直到 ctx 取消
func (r *MessageRelay) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("发件箱中继启动")
	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("发件箱中继已停止")
			return
		case <-ticker.C:
			if _, err := r.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("处理待发布消息失败")
			}
		}
	}
}

// ProcessPending 在一个事务中锁定并发布一批 PENDING 消息，返回成功发布的条数。
// FOR UPDATE SKIP LOCKED 让多个中继实例可以并行运行。
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}
	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	sent, err := r.publishBatch(ctx, messages, func(msg *models.OutboxMessage) error {
		return tx.Save(msg).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update outbox message")
		return 0, err
	}

	if err := tx.Commit().Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return 0, err
	}
	span.SetAttributes(attribute.Int("outbox.sent_count", sent))
	r.logger.Debug().Int("fetched", len(messages)).Int("sent", sent).Msg("发件箱批次处理完成")
	return sent, nil
}

// publishBatch 逐条发布并通过 save 写回状态。save 失败时立即返回，
// 调用方回滚事务后这批消息会在下一轮被重新拾取。
func (r *MessageRelay) publishBatch(ctx context.Context, messages []models.OutboxMessage, save func(*models.OutboxMessage) error) (int, error) {
	sent := 0
	for i := range messages {
		msg := &messages[i]
		if r.publishOne(ctx, msg) {
			sent++
		}
		if err := save(msg); err != nil {
			return 0, err
		}
	}
	return sent, nil
}

// publishOne 发布一条消息并按结果更新其状态
func (r *MessageRelay) publishOne(ctx context.Context, msg *models.OutboxMessage) bool {
	pubErr := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload))
	msg.MarkPublished(pubErr, r.now(), r.maxRetries)
	if pubErr != nil {
		r.logger.Warn().Err(pubErr).
			Uint64("id", msg.ID).
			Str("analysis_id", msg.AggregateID).
			Int("retry_count", msg.RetryCount).
			Str("status", msg.Status).
			Msg("发布发件箱消息失败")
		return false
	}
	return true
}
