package nlu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furnivox/internal/command"
)

// fakeOpenAI answers every request with a fixed status and body and keeps
// the decoded request bodies.
type fakeOpenAI struct {
	mu       sync.Mutex
	status   int
	body     string
	paths    []string
	requests []map[string]any
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	var req map[string]any
	if json.Unmarshal(raw, &req) == nil {
		f.requests = append(f.requests, req)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func newFakeClient(t *testing.T, status int, body string) (openai.Client, *fakeOpenAI) {
	t.Helper()

	fake := &fakeOpenAI{status: status, body: body}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/"),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return client, fake
}

func completion(message string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"finish_reason":"stop","logprobs":null,"message":` + message + `}]}`
}

func toolMessage(name, args string) string {
	raw, _ := json.Marshal(args)
	return `{"role":"assistant","content":null,"refusal":null,"tool_calls":[{"id":"call_1","type":"function",` +
		`"function":{"name":"` + name + `","arguments":` + string(raw) + `}}]}`
}

func testPrompt(msg string) Prompt {
	return Prompt{System: "system prompt", Tools: command.Tools(), Message: msg}
}

func TestOpenAI_ToolCall(t *testing.T) {
	client, fake := newFakeClient(t, http.StatusOK,
		completion(toolMessage("spawn_furniture", `{"objectName":"chair","modelId":"abc123","color":"blue"}`)))

	d, err := NewOpenAI(client, "gpt-4o-mini", 300).Decide(context.Background(), testPrompt("spawn a blue chair"))
	require.NoError(t, err)

	require.NotNil(t, d.Tool)
	assert.Equal(t, "spawn_furniture", d.Tool.Name)
	assert.Equal(t, map[string]any{"objectName": "chair", "modelId": "abc123", "color": "blue"}, d.Tool.Arguments)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "/chat/completions", fake.paths[0])
	req := fake.requests[0]
	assert.Equal(t, "gpt-4o-mini", req["model"])
	assert.EqualValues(t, 300, req["max_completion_tokens"])

	tools, ok := req["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 4)
	first := tools[0].(map[string]any)
	assert.Equal(t, "function", first["type"])
	assert.Equal(t, "spawn_furniture", first["function"].(map[string]any)["name"])

	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAI_EmptyArgumentsAreAnEmptyBag(t *testing.T) {
	client, _ := newFakeClient(t, http.StatusOK, completion(toolMessage("delete_furniture", "")))

	d, err := NewOpenAI(client, "", 0).Decide(context.Background(), testPrompt("delete this"))
	require.NoError(t, err)

	require.NotNil(t, d.Tool)
	assert.Equal(t, "delete_furniture", d.Tool.Name)
	assert.Empty(t, d.Tool.Arguments)
	assert.NotNil(t, d.Tool.Arguments)
}

func TestOpenAI_FreeText(t *testing.T) {
	client, _ := newFakeClient(t, http.StatusOK,
		completion(`{"role":"assistant","content":"I can spawn chairs, tables, and sofas.","refusal":null}`))

	d, err := NewOpenAI(client, "", 0).Decide(context.Background(), testPrompt("what can you do?"))
	require.NoError(t, err)

	assert.Nil(t, d.Tool)
	assert.Equal(t, "I can spawn chairs, tables, and sofas.", d.Text)
}

func TestOpenAI_MalformedArgumentsFallBackToText(t *testing.T) {
	client, _ := newFakeClient(t, http.StatusOK, completion(toolMessage("spawn_furniture", `{"objectName":`)))

	d, err := NewOpenAI(client, "", 0).Decide(context.Background(), testPrompt("spawn"))
	require.NoError(t, err)

	assert.Nil(t, d.Tool)
	assert.Equal(t, FallbackReply, d.Text)
}

func TestOpenAI_UpstreamError(t *testing.T) {
	client, _ := newFakeClient(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`)

	_, err := NewOpenAI(client, "", 0).Decide(context.Background(), testPrompt("spawn a chair"))
	assert.Error(t, err)
}

func TestOpenAI_NoChoices(t *testing.T) {
	client, _ := newFakeClient(t, http.StatusOK,
		`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)

	_, err := NewOpenAI(client, "", 0).Decide(context.Background(), testPrompt("hi"))
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAITranscriber(t *testing.T) {
	client, fake := newFakeClient(t, http.StatusOK, `{"text":"  spawn a chair "}`)

	text, err := NewOpenAITranscriber(client, "").Transcribe(context.Background(), make([]float32, 1600))
	require.NoError(t, err)

	assert.Equal(t, "spawn a chair", text)
	require.Len(t, fake.paths, 1)
	assert.True(t, strings.HasSuffix(fake.paths[0], "/audio/transcriptions"))
}

func TestOpenAITranscriber_RejectsEmptyAudio(t *testing.T) {
	client, fake := newFakeClient(t, http.StatusOK, `{"text":""}`)

	_, err := NewOpenAITranscriber(client, "").Transcribe(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, fake.paths)
}

func TestOpenAITranscriber_UpstreamError(t *testing.T) {
	client, fake := newFakeClient(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)

	_, err := NewOpenAITranscriber(client, "whisper-1").Transcribe(context.Background(), make([]float32, 160))
	assert.ErrorContains(t, err, "transcription")
	assert.Len(t, fake.paths, 1)
}
