package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// 发件箱消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 与分析记录在同一事务中写入、由中继异步发布的消息
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"` // 分析ID
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// NewOutboxMessage 序列化 payload 并构造待发布消息
func NewOutboxMessage(aggregateID, eventType, exchange, routingKey string, payload interface{}) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化发件箱消息失败: %w", err)
	}
	return &OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          string(data),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           OutboxStatusPending,
	}, nil
}

// MarkPublished 按发布结果更新状态，失败达到 maxRetries 次后标记为 FAILED
func (m *OutboxMessage) MarkPublished(err error, now time.Time, maxRetries int) {
	if err != nil {
		m.RetryCount++
		m.ErrorMessage = err.Error()
		if m.RetryCount >= maxRetries {
			m.Status = OutboxStatusFailed
		}
		return
	}
	m.Status = OutboxStatusSent
	m.ProcessedAt = &now
	m.ErrorMessage = ""
}
