// Package realtime pushes poll change events to websocket clients and, when
// several instances run, relays them between instances over redis.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	httpadapter "github.com/vncsmyrnk/poll-ledger/internal/adapters/handler/http"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"go.uber.org/zap"
)

const MessageSnapshot = "snapshot"

// Message is the wire frame. A snapshot frame carries the full current view;
// every other frame is one change event.
type Message struct {
	Type    string         `json:"type"`
	Polls   []*domain.Poll `json:"polls,omitempty"`
	Poll    *domain.Poll   `json:"poll,omitempty"`
	Version int64          `json:"version,omitempty"`
}

type Handler struct {
	notifier ports.Notifier
	polls    ports.PollService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(notifier ports.Notifier, polls ports.PollService, log *logger.Logger) *Handler {
	return &Handler{
		notifier: notifier,
		polls:    polls,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func scopeFromQuery(v string) (ports.Scope, bool) {
	switch v {
	case "mine":
		return ports.ScopeOwner, true
	case "", "community":
		return ports.ScopeActive, true
	default:
		return "", false
	}
}

// Connect must run behind the http Authenticator.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpadapter.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	scope, ok := scopeFromQuery(r.URL.Query().Get("scope"))
	if !ok {
		http.Error(w, "scope must be mine or community", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	client := NewClient(conn, userID)
	log := h.log.WithContext(ctx).With(zap.String("client_id", client.ID), zap.String("scope", string(scope)))
	log.Info("websocket connected")

	go client.WriteLoop(ctx)
	go func() {
		defer cancel()
		if err := h.stream(ctx, client, ports.Filter{Scope: scope, ViewerID: userID}); err != nil {
			log.Warn("websocket stream ended", zap.Error(err))
		}
	}()

	client.ReadLoop()
	cancel()
	log.Info("websocket disconnected")
}

// stream subscribes before listing so no committed change is missed between
// the snapshot and the first event. A lagged subscription is replaced and the
// snapshot resent; replace-on-receive makes the overlap harmless.
func (h *Handler) stream(ctx context.Context, client *Client, filter ports.Filter) error {
	for {
		sub, err := h.notifier.Subscribe(ctx, filter)
		if err != nil {
			return err
		}

		if err := h.sendSnapshot(ctx, client, filter); err != nil {
			sub.Close()
			return err
		}

		for ev := range sub.Events() {
			if err := send(ctx, client, Message{Type: string(ev.Type), Poll: ev.Poll, Version: ev.Version}); err != nil {
				sub.Close()
				return err
			}
		}

		if err := sub.Err(); !errors.Is(err, services.ErrSubscriberLagged) {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		h.log.WithContext(ctx).Info("resyncing lagged websocket client", zap.String("client_id", client.ID))
	}
}

func (h *Handler) sendSnapshot(ctx context.Context, client *Client, filter ports.Filter) error {
	var (
		polls []*domain.Poll
		err   error
	)
	if filter.Scope == ports.ScopeOwner {
		polls, err = h.polls.ListByOwner(ctx, filter.ViewerID)
	} else {
		polls, err = h.polls.ListActiveExcludingOwner(ctx, filter.ViewerID)
	}
	if err != nil {
		return err
	}
	return send(ctx, client, Message{Type: MessageSnapshot, Polls: polls})
}

func send(ctx context.Context, client *Client, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case client.Send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
