package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrModelUnavailable 实体识别模型加载失败
var ErrModelUnavailable = errors.New("实体识别模型不可用")

// EntityLabel 实体类别
type EntityLabel string

const (
	EntityPerson       EntityLabel = "PERSON"
	EntityOrganization EntityLabel = "ORG"
	EntityLocation     EntityLabel = "LOCATION"
	EntityMisc         EntityLabel = "MISC"
)

// Entity 识别出的命名实体
type Entity struct {
	Text  string      `json:"text"`
	Label EntityLabel `json:"label"`
	Score float64     `json:"score"` // 0-1
}

// EntityRecognizer 命名实体识别器，实现必须支持并发调用
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// RecognizerLoader 加载识别器，可能很慢，只会被调用一次
type RecognizerLoader func(ctx context.Context) (EntityRecognizer, error)

// ModelHandle 持有实体识别模型。首次 Get 时加载，之后复用；
// 加载失败也会被缓存，后续调用直接返回 ErrModelUnavailable 而不会重试；
// 调用方 ctx 被取消导致的失败除外。
type ModelHandle struct {
	loader RecognizerLoader
	logger zerolog.Logger

	mu        sync.Mutex
	state     atomic.Pointer[loadResult]
	loadCount atomic.Int32
}

type loadResult struct {
	recognizer EntityRecognizer
	err        error
}

// NewModelHandle 创建模型句柄，loader 为 nil 时句柄始终不可用
func NewModelHandle(loader RecognizerLoader, logger zerolog.Logger) *ModelHandle {
	return &ModelHandle{loader: loader, logger: logger}
}

// NewStaticModelHandle 包装一个已经构造好的识别器，r 为 nil 时句柄不可用
func NewStaticModelHandle(r EntityRecognizer) *ModelHandle {
	h := &ModelHandle{logger: zerolog.Nop()}
	if r == nil {
		h.state.Store(&loadResult{err: ErrModelUnavailable})
	} else {
		h.state.Store(&loadResult{recognizer: r})
	}
	return h
}

// Get 返回识别器，模型不可用时返回的错误满足 errors.Is(err, ErrModelUnavailable)
func (h *ModelHandle) Get(ctx context.Context) (EntityRecognizer, error) {
	if res := h.state.Load(); res != nil {
		return res.recognizer, res.err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if res := h.state.Load(); res != nil {
		return res.recognizer, res.err
	}

	res, keep := h.load(ctx)
	if keep {
		h.state.Store(res)
	}
	return res.recognizer, res.err
}

// load 返回的 keep 为 false 表示失败源于调用方取消，结果不缓存
func (h *ModelHandle) load(ctx context.Context) (*loadResult, bool) {
	h.loadCount.Add(1)
	if h.loader == nil {
		return &loadResult{err: fmt.Errorf("%w: 未配置模型加载器", ErrModelUnavailable)}, true
	}

	r, err := h.loader(ctx)
	var loadErr error
	switch {
	case err != nil && ctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		h.logger.Debug().Err(err).Msg("调用方已取消，实体识别模型稍后重新加载")
		return &loadResult{err: fmt.Errorf("%w: %w", ErrModelUnavailable, err)}, false
	case err != nil:
		loadErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	case r == nil:
		loadErr = fmt.Errorf("%w: 加载器返回空识别器", ErrModelUnavailable)
	default:
		h.logger.Info().Msg("实体识别模型加载完成")
		return &loadResult{recognizer: r}, true
	}
	h.logger.Warn().Err(loadErr).Msg("实体识别模型加载失败，后续请求将只使用规则提取")
	return &loadResult{err: loadErr}, true
}

// Available 在不触发加载的情况下报告模型状态，尚未加载时返回 false
func (h *ModelHandle) Available() bool {
	res := h.state.Load()
	return res != nil && res.err == nil
}

// Reset 清除缓存的加载结果，下一次 Get 会重新加载
func (h *ModelHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Store(nil)
}

// LoadCount 返回实际调用加载器的次数
func (h *ModelHandle) LoadCount() int {
	return int(h.loadCount.Load())
}
