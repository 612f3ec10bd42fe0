package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/kiki/internal/action"
	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/config"
	"github.com/harunnryd/kiki/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	reply    string
	err      error
	requests []contract.CompletionRequest
}

func (r *fakeRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &contract.CompletionResponse{Content: r.reply}, nil
}

func (r *fakeRouter) ListModels() []string             { return []string{"gemini-2.0-flash"} }
func (r *fakeRouter) Health(ctx context.Context) error { return nil }

func newGateway(router *fakeRouter) *Server {
	return New(Options{
		Router:       router,
		Model:        "gemini-2.0-flash",
		SystemPrompt: "You are Kiki.",
		FallbackText: "offline",
		Actions: []action.Descriptor{{
			Name:        "getWeather",
			Description: "Current weather for a city.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
			},
		}},
	})
}

func postChat(t *testing.T, handler http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, config.DefaultGatewayPath, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatReturnsOutput(t *testing.T) {
	router := &fakeRouter{reply: "  4\n"}
	gw := newGateway(router)

	rec := postChat(t, gw.Handler(), backend.Request{
		Messages: []chat.Message{
			{Role: chat.RoleAssistant, Text: "Hi! I'm Kiki."},
			{Role: chat.RoleUser, Text: "What's 2+2?"},
			{Role: chat.RoleError, Text: "❌ I'm having trouble connecting right now. Please try again."},
			{Role: chat.RoleAssistant, Text: "Let me think."},
		},
		MaxTokens:   1000,
		Temperature: 0.7,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp backend.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "4", resp.Output)
	assert.False(t, resp.IsFallback)

	require.Len(t, router.requests, 1)
	sent := router.requests[0]
	assert.Equal(t, []contract.Message{
		{Role: contract.RoleUser, Content: "What's 2+2?"},
		{Role: contract.RoleAssistant, Content: "Let me think."},
	}, sent.Messages)
	assert.Equal(t, 1000, sent.MaxTokens)
	require.NotNil(t, sent.Temperature)
	assert.InDelta(t, 0.7, *sent.Temperature, 1e-9)
	assert.Contains(t, sent.System, "You are Kiki.")
	assert.Contains(t, sent.System, `{"type":"action","action":"<name>","params":{...}}`)
	assert.Contains(t, sent.System, "- getWeather: Current weather for a city.")
}

func TestHandleChatFallback(t *testing.T) {
	router := &fakeRouter{err: errors.New("all providers down")}
	gw := newGateway(router)

	rec := postChat(t, gw.Handler(), backend.Request{
		Messages: []chat.Message{{Role: chat.RoleUser, Text: "hello"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp backend.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsFallback)
	assert.Equal(t, "offline", resp.Output)
}

func TestHandleChatRejectsBadRequests(t *testing.T) {
	gw := newGateway(&fakeRouter{reply: "x"})
	handler := gw.Handler()

	req := httptest.NewRequest(http.MethodPost, config.DefaultGatewayPath, strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postChat(t, handler, backend.Request{Messages: []chat.Message{{Role: chat.RoleAssistant, Text: "welcome"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, config.DefaultGatewayPath, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	gw := newGateway(&fakeRouter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []interface{}{"gemini-2.0-flash"}, body["models"])
}

func TestGatewayRoundTripWithBackendClient(t *testing.T) {
	gw := newGateway(&fakeRouter{reply: `{"type":"action","action":"getWeather","params":{"city":"Paris"}}`})
	server := httptest.NewServer(gw.Handler())
	defer server.Close()

	client, err := backend.NewClient(backend.Options{URL: server.URL + config.DefaultGatewayPath, MaxTokens: 1000, Temperature: 0.7})
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []chat.Message{{Role: chat.RoleUser, Text: "Weather in Paris?", Timestamp: time.Now()}})
	require.NoError(t, err)

	reply := chat.ParseReply(resp.Text())
	require.True(t, reply.IsAction())
	assert.Equal(t, "getWeather", reply.Action.Action)
	assert.Equal(t, map[string]any{"city": "Paris"}, reply.Action.Params)
}

func TestListenAndStop(t *testing.T) {
	gw := newGateway(&fakeRouter{reply: "hi"})

	addr, err := gw.Listen(config.ServerConfig{Port: 0})
	require.NoError(t, err)

	_, err = gw.Listen(config.ServerConfig{Port: 0})
	assert.Error(t, err)

	port := addr.(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, gw.Stop(context.Background()))
	require.NoError(t, gw.Stop(context.Background()))
}

func TestBuildSystemPromptWithoutActions(t *testing.T) {
	assert.Equal(t, "You are Kiki.", BuildSystemPrompt("  You are Kiki.  ", nil))
}
