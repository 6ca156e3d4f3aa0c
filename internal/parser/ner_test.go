package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer 返回固定实体
type fakeRecognizer struct {
	entities []Entity
	err      error
	calls    atomic.Int32
}

func (f *fakeRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	f.calls.Add(1)
	return f.entities, f.err
}

func TestModelHandleLoadsOnceUnderConcurrency(t *testing.T) {
	var loads atomic.Int32
	rec := &fakeRecognizer{}
	h := NewModelHandle(func(ctx context.Context) (EntityRecognizer, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return rec, nil
	}, zerolog.Nop())

	assert.False(t, h.Available(), "加载前不应报告可用")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.Get(context.Background())
			assert.NoError(t, err)
			assert.Same(t, rec, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load(), "并发调用只应加载一次")
	assert.Equal(t, 1, h.LoadCount())
	assert.True(t, h.Available())
}

func TestModelHandleCachesFailure(t *testing.T) {
	var loads atomic.Int32
	h := NewModelHandle(func(ctx context.Context) (EntityRecognizer, error) {
		loads.Add(1)
		return nil, errors.New("weights missing")
	}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		r, err := h.Get(context.Background())
		assert.Nil(t, r)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	}
	assert.Equal(t, int32(1), loads.Load(), "加载失败后不应重试")
	assert.False(t, h.Available())

	h.Reset()
	_, _ = h.Get(context.Background())
	assert.Equal(t, int32(2), loads.Load(), "Reset 后应重新加载")
}

func TestModelHandleRetriesAfterCanceledLoad(t *testing.T) {
	var loads atomic.Int32
	rec := &fakeRecognizer{}
	h := NewModelHandle(func(ctx context.Context) (EntityRecognizer, error) {
		loads.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return rec, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.Available(), "取消导致的失败不应被缓存为可用")

	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, rec, got)
	assert.Equal(t, int32(2), loads.Load(), "调用方取消后应重新加载")
	assert.True(t, h.Available())
}

func TestModelHandleCachesLoaderTimeoutWhenCallerAlive(t *testing.T) {
	var loads atomic.Int32
	h := NewModelHandle(func(ctx context.Context) (EntityRecognizer, error) {
		loads.Add(1)
		return nil, context.DeadlineExceeded
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := h.Get(context.Background())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	}
	assert.Equal(t, int32(1), loads.Load(), "加载器自身超时属于加载失败，应被缓存")
}

func TestModelHandleNilLoaderAndNilRecognizer(t *testing.T) {
	_, err := NewModelHandle(nil, zerolog.Nop()).Get(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	h := NewModelHandle(func(ctx context.Context) (EntityRecognizer, error) { return nil, nil }, zerolog.Nop())
	_, err = h.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = NewStaticModelHandle(nil).Get(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	rec := &fakeRecognizer{}
	got, err := NewStaticModelHandle(rec).Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, rec, got)
}

func TestHeuristicRecognizer(t *testing.T) {
	text := "Dr. Jane Emily Doe\nSan Francisco, CA | (555) 123-4567 | jane.doe@example.com\n" +
		"Senior Data Scientist | DataDriven Corp. | New York, NY\nStanford University, Stanford, CA"
	entities, err := NewHeuristicRecognizer().Recognize(context.Background(), text)
	require.NoError(t, err)

	byLabel := map[EntityLabel][]string{}
	for _, e := range entities {
		byLabel[e.Label] = append(byLabel[e.Label], e.Text)
	}
	require.NotEmpty(t, byLabel[EntityPerson])
	assert.Equal(t, "Jane Emily Doe", byLabel[EntityPerson][0])
	assert.NotContains(t, byLabel[EntityPerson], "Senior Data Scientist", "职位不应被识别为人名")
	assert.Contains(t, byLabel[EntityLocation], "San Francisco, CA")
	assert.Contains(t, byLabel[EntityLocation], "New York, NY")
	assert.Contains(t, byLabel[EntityOrganization], "DataDriven Corp.")
	assert.Contains(t, byLabel[EntityOrganization], "Stanford University")
}

func TestHeuristicRecognizerAllCapsName(t *testing.T) {
	entities, err := NewHeuristicRecognizer().Recognize(context.Background(), "JOHN SMITH\nEXPERIENCE")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "JOHN SMITH", entities[0].Text)
	assert.Equal(t, EntityPerson, entities[0].Label)
	assert.InDelta(t, 0.6, entities[0].Score, 1e-9)
}

// stubChatModel 返回固定内容的聊天模型
type stubChatModel struct {
	content  string
	err      error
	received [][]*einoschema.Message
}

func (s *stubChatModel) Generate(ctx context.Context, input []*einoschema.Message, opts ...model.Option) (*einoschema.Message, error) {
	s.received = append(s.received, input)
	if s.err != nil {
		return nil, s.err
	}
	return einoschema.AssistantMessage(s.content, nil), nil
}

func (s *stubChatModel) Stream(ctx context.Context, input []*einoschema.Message, opts ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestLLMRecognizerParsesFencedJSON(t *testing.T) {
	cm := &stubChatModel{content: "```json\n[{\"text\":\"Jane Doe\",\"label\":\"PER\",\"score\":0.98},{\"text\":\"Acme\",\"label\":\"organization\",\"score\":1.7},{\"text\":\" \",\"label\":\"MISC\",\"score\":0.5}]\n```"}
	r := NewLLMRecognizer(cm)

	entities, err := r.Recognize(context.Background(), "Jane Doe\nAcme")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, Entity{Text: "Jane Doe", Label: EntityPerson, Score: 0.98}, entities[0])
	assert.Equal(t, EntityOrganization, entities[1].Label)
	assert.Equal(t, 1.0, entities[1].Score, "分数应被限制在 0-1")

	require.Len(t, cm.received, 1)
	assert.Equal(t, einoschema.System, cm.received[0][0].Role)
	assert.Equal(t, "Jane Doe\nAcme", cm.received[0][1].Content)
}

func TestLLMRecognizerLogsTruncatedResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	content := strings.Repeat("x", 400)
	r := NewLLMRecognizer(&stubChatModel{content: content}, WithNERLogger(logger))

	_, err := r.Recognize(context.Background(), "Jane Doe")
	require.Error(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	logged, ok := entry["content"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len([]rune(logged)), 150, "日志中的模型输出应被截断")
	assert.Contains(t, logged, "...")
}

func TestLLMRecognizerErrors(t *testing.T) {
	_, err := NewLLMRecognizer(&stubChatModel{content: "no entities here"}).Recognize(context.Background(), "x")
	assert.Error(t, err)

	_, err = NewLLMRecognizer(&stubChatModel{err: errors.New("boom")}).Recognize(context.Background(), "x")
	assert.Error(t, err)

	entities, err := NewLLMRecognizer(&stubChatModel{err: errors.New("boom")}).Recognize(context.Background(), "  ")
	assert.NoError(t, err, "空文本不应请求模型")
	assert.Empty(t, entities)
}

func TestLLMRecognizerLoaderProbe(t *testing.T) {
	h := NewModelHandle(LLMRecognizerLoader(&stubChatModel{err: errors.New("401 unauthorized")}, true), zerolog.Nop())
	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable, "探测失败应视为模型不可用")

	h = NewModelHandle(LLMRecognizerLoader(&stubChatModel{content: "[]"}, true), zerolog.Nop())
	r, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestLLMRecognizerTruncatesInput(t *testing.T) {
	cm := &stubChatModel{content: "[]"}
	r := NewLLMRecognizer(cm, WithNERMaxInputRunes(5))
	_, err := r.Recognize(context.Background(), "abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, "abcde", cm.received[0][1].Content)
}
