package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("resume-match-go/storage/redis")

// jobTextNamespace 岗位文本 UUIDv5 的命名空间，相同文本总是得到相同的缓存键
var jobTextNamespace = uuid.NewV5(uuid.NamespaceURL, "resume-match-go/job-text")

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// JobTextID 由岗位文本生成稳定的 UUIDv5，首尾空白不影响结果
func JobTextID(jobText string) string {
	return uuid.NewV5(jobTextNamespace, strings.TrimSpace(jobText)).String()
}

// JobKeywordsKey 返回岗位关键词缓存键。variant 描述提取参数，
// 参数变化后旧配置下缓存的列表不会再被命中
func JobKeywordsKey(jobText, variant string) string {
	id := uuid.NewV5(jobTextNamespace, variant+"\n"+strings.TrimSpace(jobText))
	return fmt.Sprintf(constants.KeyJobKeywords, id.String())
}

// AnalysisLockKey 返回分析任务锁的键
func AnalysisLockKey(analysisID string) string {
	return fmt.Sprintf(constants.KeyAnalysisLock, analysisID)
}

// KeywordCacheTTL 返回配置的关键词缓存有效期
func (r *Redis) KeywordCacheTTL() time.Duration {
	if r.config == nil || r.config.KeywordCacheTTLHours <= 0 {
		return constants.DefaultKeywordCacheTTL
	}
	return time.Duration(r.config.KeywordCacheTTLHours) * time.Hour
}

func (r *Redis) startSpan(ctx context.Context, name, operation, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.DBSystemRedis,
		attribute.String("db.operation", operation),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	}
	if r.config != nil {
		attrs = append(attrs,
			attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
			attribute.String("net.peer.name", r.config.Address),
		)
	}
	return redisTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// GetJobKeywords 读取岗位关键词缓存，未命中时返回 ErrNotFound
func (r *Redis) GetJobKeywords(ctx context.Context, jobText, variant string) (types.KeywordList, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	key := JobKeywordsKey(jobText, variant)
	ctx, span := r.startSpan(ctx, "Redis.GetJobKeywords", "GET", key)
	defer span.End()

	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			span.SetStatus(codes.Ok, "key not found")
			return nil, ErrNotFound
		}
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("读取岗位关键词缓存失败: %w", err)
	}

	var keywords types.KeywordList
	if err := json.Unmarshal([]byte(val), &keywords); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, fmt.Errorf("反序列化岗位关键词失败: %w", err)
	}
	span.SetAttributes(attribute.Int("keywords.count", len(keywords)))
	span.SetStatus(codes.Ok, "")
	return keywords, nil
}

// SetJobKeywords 缓存岗位关键词
func (r *Redis) SetJobKeywords(ctx context.Context, jobText, variant string, keywords types.KeywordList) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := JobKeywordsKey(jobText, variant)
	ctx, span := r.startSpan(ctx, "Redis.SetJobKeywords", "SET", key)
	defer span.End()

	if keywords == nil {
		keywords = types.KeywordList{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("序列化岗位关键词失败: %w", err)
	}
	if err := r.Client.Set(ctx, key, data, r.KeywordCacheTTL()).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("设置岗位关键词缓存失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// AcquireLock 尝试获取一个分布式锁，返回空字符串表示锁已被占用
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	ctx, span := r.startSpan(ctx, "Redis.AcquireLock", "SETNX", lockKey)
	defer span.End()

	lockValue, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("生成锁标识失败: %w", err)
	}
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue.String(), expiration).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", err
	}
	span.SetAttributes(attribute.Bool("lock.acquired", ok))
	if !ok {
		return "", nil
	}
	return lockValue.String(), nil
}

// releaseLockScript 只有持有者才能删除锁
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ReleaseLock 释放一个分布式锁
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	ctx, span := r.startSpan(ctx, "Redis.ReleaseLock", "EVALSHA", lockKey)
	defer span.End()

	res, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, err
	}
	return res == 1, nil
}
