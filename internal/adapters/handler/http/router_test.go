package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpadapter "github.com/vncsmyrnk/poll-ledger/internal/adapters/handler/http"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
)

type testApp struct {
	Server *httptest.Server
	Tokens ports.TokenService
}

type pollBody struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Options     []string  `json:"options"`
	Status      string    `json:"status"`
	Votes       []int64   `json:"votes"`
	TotalVotes  int64     `json:"total_votes"`
	Percentages []float64 `json:"percentages"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	broker := services.NewBroker(0, logger.Nop(), m)
	t.Cleanup(broker.Close)

	tokens, err := services.NewTokenService("test-secret")
	require.NoError(t, err)

	pollService := services.NewPollService(store, broker, logger.Nop(), m)
	voteService := services.NewVoteService(store, broker, logger.Nop(), m)

	handler := httpadapter.NewHandler(httpadapter.RouterConfig{
		Log:         logger.Nop(),
		Tokens:      tokens,
		CORSOrigins: []string{"http://localhost:3000"},
		Gatherer:    reg,
	}, httpadapter.NewPollHandler(pollService), httpadapter.NewVoteHandler(voteService))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testApp{Server: server, Tokens: tokens}
}

func (a *testApp) token(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	token, err := a.Tokens.Issue(userID, fmt.Sprintf("user-%s@example.com", userID), 15*time.Minute)
	require.NoError(t, err)
	return userID, token
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.Server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	resp, err := a.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testApp) createPoll(t *testing.T, token string, options ...string) pollBody {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/polls", token, map[string]any{
		"title":   "Best color?",
		"options": options,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[pollBody](t, resp)
}

func TestRequiresAuthentication(t *testing.T) {
	app := setupTestApp(t)

	resp := app.do(t, http.MethodGet, "/api/polls/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, resp).Code)

	resp = app.do(t, http.MethodGet, "/api/polls/mine", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerTokenAccepted(t *testing.T) {
	app := setupTestApp(t)
	_, token := app.token(t)

	req, err := http.NewRequest(http.MethodGet, app.Server.URL+"/api/polls/mine", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPollLifecycle(t *testing.T) {
	app := setupTestApp(t)
	ownerID, owner := app.token(t)
	_, u1 := app.token(t)
	_, u2 := app.token(t)
	_, u3 := app.token(t)

	poll := app.createPoll(t, owner, "Red", "Blue", "Green")
	assert.Equal(t, ownerID, poll.OwnerID)
	assert.Equal(t, []int64{0, 0, 0}, poll.Votes)
	assert.Equal(t, []float64{0, 0, 0}, poll.Percentages)

	votesPath := fmt.Sprintf("/api/polls/%s/votes", poll.ID)
	for _, v := range []struct {
		token string
		opt   int
	}{{u1, 0}, {u2, 0}, {u3, 1}} {
		resp := app.do(t, http.MethodPost, votesPath, v.token, map[string]int{"option_index": v.opt})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := app.do(t, http.MethodPost, votesPath, u1, map[string]int{"option_index": 2})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_VOTED", decode[errorBody](t, resp).Code)

	resp = app.do(t, http.MethodGet, "/api/polls/"+poll.ID.String(), u1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[pollBody](t, resp)
	assert.Equal(t, []int64{2, 1, 0}, got.Votes)
	assert.Equal(t, int64(3), got.TotalVotes)
	assert.InDelta(t, 66.67, got.Percentages[0], 0.01)

	resp = app.do(t, http.MethodGet, fmt.Sprintf("/api/polls/%s/my-vote", poll.ID), u3, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decode[map[string]any](t, resp)["option_index"])

	resp = app.do(t, http.MethodGet, fmt.Sprintf("/api/polls/%s/my-vote", poll.ID), owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	statusPath := fmt.Sprintf("/api/polls/%s/status", poll.ID)
	resp = app.do(t, http.MethodPatch, statusPath, u1, map[string]string{"status": "closed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = app.do(t, http.MethodPatch, statusPath, owner, map[string]string{"status": "closed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "closed", decode[pollBody](t, resp).Status)

	_, late := app.token(t)
	resp = app.do(t, http.MethodPost, votesPath, late, map[string]int{"option_index": 0})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "POLL_CLOSED", decode[errorBody](t, resp).Code)

	resp = app.do(t, http.MethodDelete, "/api/polls/"+poll.ID.String(), u1, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = app.do(t, http.MethodDelete, "/api/polls/"+poll.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = app.do(t, http.MethodGet, "/api/polls/"+poll.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEndpoints(t *testing.T) {
	app := setupTestApp(t)
	_, alice := app.token(t)
	_, bob := app.token(t)

	mine := app.createPoll(t, alice, "a", "b")
	theirs := app.createPoll(t, bob, "a", "b")

	resp := app.do(t, http.MethodGet, "/api/polls/mine", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]pollBody](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	resp = app.do(t, http.MethodGet, "/api/polls/community", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[[]pollBody](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, theirs.ID, list[0].ID)

	_, carol := app.token(t)
	resp = app.do(t, http.MethodGet, "/api/polls/mine", carol, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]pollBody](t, resp))
}

func TestValidationErrors(t *testing.T) {
	app := setupTestApp(t)
	_, token := app.token(t)

	resp := app.do(t, http.MethodPost, "/api/polls", token, map[string]any{"title": "", "options": []string{"a", "b"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodPost, "/api/polls", token, map[string]any{"title": "t", "options": []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decode[errorBody](t, resp).Code)

	resp = app.do(t, http.MethodGet, "/api/polls/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	poll := app.createPoll(t, token, "a", "b")
	resp = app.do(t, http.MethodPost, fmt.Sprintf("/api/polls/%s/votes", poll.ID), token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodPost, fmt.Sprintf("/api/polls/%s/votes", poll.ID), token, map[string]int{"option_index": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodPatch, fmt.Sprintf("/api/polls/%s/status", poll.ID), token, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodPost, fmt.Sprintf("/api/polls/%s/votes", uuid.New()), token, map[string]int{"option_index": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpsEndpoints(t *testing.T) {
	app := setupTestApp(t)

	resp := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	_, token := app.token(t)
	app.createPoll(t, token, "a", "b")

	resp = app.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "polls_created_total 1")
}

func TestCORSPreflight(t *testing.T) {
	app := setupTestApp(t)

	req, err := http.NewRequest(http.MethodOptions, app.Server.URL+"/api/polls", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := app.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
