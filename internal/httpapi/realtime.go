package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"clinic/execution-service/internal/hub"
	"clinic/execution-service/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.uber.org/zap"
)

const realtimeLookupTimeout = 5 * time.Second

// NewRealtimeHandler serves the SockJS change feed under /realtime. A
// connection names its user with ?user_id= and may narrow the feed to one
// item with {"action":"subscribe","item_id":"..."}.
func NewRealtimeHandler(h *hub.Hub, users store.UserStore, buffer int, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 16
	}

	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		userID := userIDFromRealtimeRequest(session.Request())
		if userID == "" {
			_ = session.Close(4001, "missing user")
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			_ = session.Close(4001, "invalid user")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), realtimeLookupTimeout)
		_, err := users.GetUser(ctx, userID)
		cancel()
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				_ = session.Close(4002, "unknown user")
				return
			}
			logger.Error("realtime user lookup", zap.String("user_id", userID), zap.Error(err))
			_ = session.Close(4003, "user lookup failed")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, buffer)}
		h.Register(client)
		defer h.Unregister(client)
		logger.Debug("realtime connected", zap.String("client_id", client.ID), zap.String("user_id", userID))

		go func() {
			for msg := range client.Send {
				if err := session.Send(string(msg)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				logger.Debug("realtime disconnected", zap.String("client_id", client.ID))
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			itemID := strings.TrimSpace(parsed.ItemID)
			if itemID != "" {
				if _, err := uuid.Parse(itemID); err != nil {
					_ = session.Close(4004, "invalid item")
					return
				}
			}
			h.UpdateSubscription(client, hub.Subscription{ItemID: itemID})
		}
	})
}

func userIDFromRealtimeRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
		return userID
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}
