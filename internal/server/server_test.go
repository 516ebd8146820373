package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furnivox/internal/assets"
	"furnivox/internal/command"
	"furnivox/internal/inventory"
	"furnivox/internal/nlu"
	"furnivox/pkg/audioconv"
)

const testCSV = `abc123,"Chair,OfficeChair"
t1,Table
`

type stubProcessor struct {
	action command.Action
	err    error
	texts  []string
}

func (p *stubProcessor) Process(_ context.Context, text string) (command.Action, error) {
	p.texts = append(p.texts, text)
	if p.err != nil {
		return nil, p.err
	}
	out := make(command.Action, len(p.action))
	for k, v := range p.action {
		out[k] = v
	}
	return out, nil
}

type stubTranscriber struct {
	text    string
	err     error
	samples int
}

func (t *stubTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	t.samples = len(pcm)
	return t.text, t.err
}

type fixture struct {
	srv  *httptest.Server
	dir  string
	proc *stubProcessor
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, mod func(*Options)) *fixture {
	t.Helper()

	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	writeFile(t, filepath.Join(models, "chair", "abc123.glb"), "glTF-chair")
	writeFile(t, filepath.Join(models, "chair", "c2.glb"), "glTF-c2")
	writeFile(t, filepath.Join(models, "table", "t1.glb"), "glTF-table")
	writeFile(t, filepath.Join(models, "abc123.glb"), "glTF-flat")
	csvPath := filepath.Join(dir, "inventory.csv")
	writeFile(t, csvPath, testCSV)

	idx, err := inventory.Parse(strings.NewReader(testCSV))
	require.NoError(t, err)

	proc := &stubProcessor{action: command.Action{"action": "delete", "quantity": 1, "scale": 1.0}}
	opts := Options{
		Commands:     proc,
		Assets:       assets.NewStore(models, ""),
		Index:        idx,
		InventoryCSV: csvPath,
	}
	if mod != nil {
		mod(&opts)
	}

	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, dir: dir, proc: proc}
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) post(t *testing.T, path, ctype string, body io.Reader) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, ctype, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/ping")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["message"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))
}

func TestProcessCommand(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/api/process_command", "application/json", strings.NewReader(`{"command":"delete this"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{"action": "delete", "quantity": 1.0, "scale": 1.0}, decode(t, resp))
	assert.Equal(t, []string{"delete this"}, f.proc.texts)
}

func TestProcessCommand_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{``, `not json`, `{}`, `{"text":"hi"}`, `{"command":null}`} {
		resp := f.post(t, "/api/process_command", "application/json", strings.NewReader(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, map[string]any{"error": "No command provided"}, decode(t, resp), body)
	}
	assert.Empty(t, f.proc.texts)
}

func TestProcessCommand_EmptyAndUpstreamErrors(t *testing.T) {
	f := newFixture(t, nil)

	f.proc.err = nlu.ErrEmptyCommand
	resp := f.post(t, "/api/process_command", "application/json", strings.NewReader(`{"command":"   "}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.proc.err = errors.Join(nlu.ErrUpstream, errors.New("connection refused"))
	resp = f.post(t, "/api/process_command", "application/json", strings.NewReader(`{"command":"spawn a chair"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp)
	assert.True(t, strings.HasPrefix(body["error"].(string), "LLM Error: "), body["error"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestProcessCommand_WithMatcher(t *testing.T) {
	idx, err := inventory.Parse(strings.NewReader(testCSV))
	require.NoError(t, err)
	svc, err := nlu.NewService(nlu.NewMatcher(idx), idx, time.Second)
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) { o.Commands = svc })

	resp := f.post(t, "/api/process_command", "application/json", strings.NewReader(`{"command":"spawn a blue chair"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "spawn", body["action"])
	assert.Equal(t, "chair", body["objectName"])
	assert.Equal(t, "abc123", body["modelId"])
	assert.Equal(t, "blue", body["color"])
	assert.Equal(t, 1.0, body["quantity"])
	assert.Equal(t, 1.0, body["scale"])
}

func wavBody(t *testing.T, seconds float64) *bytes.Reader {
	t.Helper()
	pcm := make([]float32, int(seconds*audioconv.SampleRate))
	for i := range pcm {
		pcm[i] = 0.1
	}
	var buf audioconv.SeekBuffer
	require.NoError(t, audioconv.EncodeWAV(&buf, pcm, audioconv.SampleRate))
	return bytes.NewReader(buf.Bytes())
}

func TestProcessAudio(t *testing.T) {
	tr := &stubTranscriber{text: "delete this"}
	f := newFixture(t, func(o *Options) { o.Transcriber = tr })

	resp := f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 0.5))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "delete", body["action"])
	assert.Equal(t, "delete this", body["transcript"])
	assert.Equal(t, []string{"delete this"}, f.proc.texts)
	assert.InDelta(t, 8000, tr.samples, 1)
}

func TestProcessAudio_EmptyTranscript(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Transcriber = &stubTranscriber{} })

	resp := f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 0.1))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "query", body["action"])
	assert.Equal(t, "", body["transcript"])
	assert.Empty(t, f.proc.texts)
}

func TestProcessAudio_Errors(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 0.1))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f = newFixture(t, func(o *Options) { o.Transcriber = &stubTranscriber{text: "x"} })
	resp = f.post(t, "/api/process_audio", "application/octet-stream", strings.NewReader("definitely not audio"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "Invalid audio")

	f = newFixture(t, func(o *Options) {
		o.Transcriber = &stubTranscriber{text: "x"}
		o.MaxAudioBytes = 1024
	})
	resp = f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	tr := &stubTranscriber{text: "x"}
	f = newFixture(t, func(o *Options) {
		o.Transcriber = tr
		o.MaxAudioSamples = 1600
	})
	resp = f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 0.5))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "Audio too long"}, decode(t, resp))
	assert.Zero(t, tr.samples)

	f = newFixture(t, func(o *Options) { o.Transcriber = &stubTranscriber{err: errors.New("model crashed")} })
	resp = f.post(t, "/api/process_audio", "audio/wav", wavBody(t, 0.1))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeModel(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/models/chair/abc123.glb")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assets.MediaType, resp.Header.Get("Content-Type"))
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "glTF-chair", string(body))
}

func TestServeModel_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/models/chair/missing.glb")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "error", "message": "File not found: chair/missing.glb"}, decode(t, resp))

	resp = f.get(t, "/models/sofa/x.glb")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeGLB(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/glb/abc123")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assets.MediaType, resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "glTF-flat", string(body))

	resp = f.get(t, "/glb/zzz")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "GLB file not found: zzz", decode(t, resp)["message"])
}

func TestListModels(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/models/chair")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"status":   "success",
		"category": "chair",
		"count":    2.0,
		"models":   []any{"abc123.glb", "c2.glb"},
	}, decode(t, resp))

	resp = f.get(t, "/models/sofa")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Category not found: sofa", decode(t, resp)["message"])
}

func TestCategories(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/categories")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"status":     "success",
		"count":      2.0,
		"categories": map[string]any{"chair": 2.0, "table": 1.0},
	}, decode(t, resp))
}

func TestInventoryCSV(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/inventory.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testCSV, string(body))

	f = newFixture(t, func(o *Options) { o.InventoryCSV = filepath.Join(t.TempDir(), "none.csv") })
	resp = f.get(t, "/inventory.csv")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "Inventory CSV not found"}, decode(t, resp))
}

func TestInventory(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.get(t, "/api/inventory")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, 2.0, body["count"])
	cats, ok := body["categories"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, cats, 2)
	assert.Contains(t, cats, "chair")
	assert.Contains(t, cats, "table")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/process_command", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://quest.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.get(t, "/ping")

	// The request counter is bumped after the handler returns.
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return strings.Contains(string(body), "furnivox_asset_bytes_served_total") &&
			strings.Contains(string(body), `route="GET /ping"`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebsocket(t *testing.T) {
	f := newFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"command":"delete this"}`)))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "delete", reply["action"])

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`garbage`)))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, map[string]any{"error": "No command provided"}, reply)

	f.proc.err = errors.Join(nlu.ErrUpstream, errors.New("boom"))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"command":"spawn"}`)))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply["error"], "LLM Error")
}
