package storage

import (
	"context"
	"fmt"
	"strings"

	"resume-match-go/internal/config"

	"github.com/rs/zerolog"
)

// Storage 存储管理器，聚合所有存储相关依赖。未配置的组件为 nil。
type Storage struct {
	// 对象存储
	MinIO *MinIO
	// 消息队列
	RabbitMQ *RabbitMQ
	// 关系型数据库
	MySQL *MySQL
	// 键值存储
	Redis *Redis

	logger zerolog.Logger
}

// NewStorage 按配置初始化存储组件，单个组件失败只记录警告，全部失败时返回错误
func NewStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{logger: log}
	var initErrors []string
	configured := 0

	if cfg.MinIO.Endpoint != "" {
		configured++
		m, err := NewMinIO(&cfg.MinIO, log)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			s.MinIO = m
		}
	}

	if cfg.RabbitMQ.URL != "" {
		configured++
		mq, err := NewRabbitMQ(&cfg.RabbitMQ, log)
		if err == nil {
			if err = mq.SetupAnalysisTopology(); err != nil {
				mq.Close()
			}
		}
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else {
			s.RabbitMQ = mq
		}
	}

	if cfg.MySQL.Host != "" {
		configured++
		db, err := NewMySQL(&cfg.MySQL, log)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		} else {
			s.MySQL = db
		}
	}

	if cfg.Redis.Address != "" {
		configured++
		r, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		} else {
			s.Redis = r
		}
	}

	if configured > 0 && len(initErrors) == configured {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		log.Warn().Strs("errors", initErrors).Msg("部分存储组件初始化失败")
	}
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
