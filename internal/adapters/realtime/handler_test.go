package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpadapter "github.com/vncsmyrnk/poll-ledger/internal/adapters/handler/http"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/realtime"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
)

type wsApp struct {
	server *httptest.Server
	tokens ports.TokenService
	polls  ports.PollService
	votes  ports.VoteService
}

func setupWSApp(t *testing.T) *wsApp {
	t.Helper()
	store := memory.NewStore()
	broker := services.NewBroker(0, logger.Nop(), nil)
	t.Cleanup(broker.Close)

	tokens, err := services.NewTokenService("test-secret")
	require.NoError(t, err)
	polls := services.NewPollService(store, broker, logger.Nop(), nil)
	votes := services.NewVoteService(store, broker, logger.Nop(), nil)

	ws := realtime.NewHandler(broker, polls, logger.Nop())
	handler := httpadapter.NewHandler(httpadapter.RouterConfig{
		Log:      logger.Nop(),
		Tokens:   tokens,
		Realtime: ws.Connect,
	}, httpadapter.NewPollHandler(polls), httpadapter.NewVoteHandler(votes))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &wsApp{server: server, tokens: tokens, polls: polls, votes: votes}
}

func (a *wsApp) user(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	token, err := a.tokens.Issue(id, "", time.Minute)
	require.NoError(t, err)
	return id, token
}

func (a *wsApp) dial(t *testing.T, scope, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/api/ws?scope=" + scope + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) realtime.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestCommunityFeed(t *testing.T) {
	app := setupWSApp(t)
	ctx := context.Background()
	bobID, _ := app.user(t)
	_, alice := app.user(t)

	existing, err := app.polls.Create(ctx, bobID, ports.CreatePollInput{Title: "Best color?", Options: []string{"Red", "Blue"}})
	require.NoError(t, err)

	conn, _, err := app.dial(t, "community", alice)
	require.NoError(t, err)

	snapshot := readMessage(t, conn)
	assert.Equal(t, realtime.MessageSnapshot, snapshot.Type)
	require.Len(t, snapshot.Polls, 1)
	assert.Equal(t, existing.ID, snapshot.Polls[0].ID)

	cache := domain.NewPollCache(snapshot.Polls...)

	_, err = app.votes.Vote(ctx, ports.VoteInput{PollID: existing.ID, VoterID: uuid.New(), OptionIndex: 1})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, string(domain.EventPollUpdated), msg.Type)
	require.NotNil(t, msg.Poll)
	assert.Equal(t, []int64{0, 1}, msg.Poll.Votes)
	assert.Equal(t, int64(1), msg.Version)

	assert.True(t, cache.Apply(domain.PollEvent{Type: domain.EventType(msg.Type), Poll: msg.Poll, Version: msg.Version}))
	got, ok := cache.Get(existing.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.TotalVotes)

	require.NoError(t, app.polls.Delete(ctx, existing.ID.String(), bobID))
	msg = readMessage(t, conn)
	assert.Equal(t, string(domain.EventPollDeleted), msg.Type)
}

func TestOwnerFeed(t *testing.T) {
	app := setupWSApp(t)
	ctx := context.Background()
	aliceID, alice := app.user(t)

	conn, _, err := app.dial(t, "mine", alice)
	require.NoError(t, err)

	snapshot := readMessage(t, conn)
	assert.Equal(t, realtime.MessageSnapshot, snapshot.Type)
	assert.Empty(t, snapshot.Polls)

	// Someone else's poll never reaches the owner feed.
	_, err = app.polls.Create(ctx, uuid.New(), ports.CreatePollInput{Title: "Other", Options: []string{"a", "b"}})
	require.NoError(t, err)

	poll, err := app.polls.Create(ctx, aliceID, ports.CreatePollInput{Title: "Mine", Options: []string{"a", "b"}})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, string(domain.EventPollInserted), msg.Type)
	assert.Equal(t, poll.ID, msg.Poll.ID)
}

func TestConnectRejections(t *testing.T) {
	app := setupWSApp(t)

	_, resp, err := app.dial(t, "community", "bad-token")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, token := app.user(t)
	_, resp, err = app.dial(t, "everything", token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
