package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQwenChatModelRequiresKey(t *testing.T) {
	_, err := NewQwenChatModel("  ")
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestQwenChatModelGenerate(t *testing.T) {
	var received chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"[]"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":1,"total_tokens":13}}`))
	}))
	defer server.Close()

	m, err := NewQwenChatModel("test-key", WithAPIURL(server.URL), WithModelName("qwen-plus"), WithTemperature(0), WithRequestTimeout(5*time.Second))
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("提取实体"),
		schema.UserMessage("Jane Doe"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, "[]", msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 13, msg.ResponseMeta.Usage.TotalTokens)

	assert.Equal(t, "qwen-plus", received.Model)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "Jane Doe", received.Messages[1].Content)
	require.NotNil(t, received.Temperature)
	assert.Equal(t, float32(0), *received.Temperature)
}

func TestQwenChatModelModelOverride(t *testing.T) {
	var received chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	m, err := NewQwenChatModel("k", WithAPIURL(server.URL))
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}, model.WithModel("qwen-max"))
	require.NoError(t, err)
	assert.Equal(t, "qwen-max", received.Model)
	assert.Nil(t, received.Temperature, "未设置温度时不发送该字段")
}

func TestQwenChatModelErrors(t *testing.T) {
	replies := []struct {
		status int
		body   string
	}{
		{http.StatusTooManyRequests, `{"error":"rate limited"}`},
		{http.StatusBadRequest, `{"error":"bad request"}`},
		{http.StatusOK, `{"choices":[]}`},
	}
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := replies[int(calls.Add(1)-1)%len(replies)]
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	defer server.Close()

	m, err := NewQwenChatModel("k", WithAPIURL(server.URL))
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Retryable())

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorContains(t, err, "空选项")

	_, err = m.Stream(context.Background(), nil)
	assert.Error(t, err)
}

func TestMockChatClientSequential(t *testing.T) {
	m := NewMockChatClientSequential([]MockResponse{{Content: "first"}, {Error: errors.New("boom")}})

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("a")})
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)

	_, err = m.Generate(context.Background(), nil)
	assert.EqualError(t, err, "boom")

	_, err = m.Generate(context.Background(), nil)
	assert.Error(t, err, "响应用完后返回错误")
	assert.Equal(t, 3, m.Calls)
	assert.Len(t, m.GetReceivedMessages(), 1)
}
