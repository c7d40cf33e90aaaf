package handler

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
	"socialsync/internal/metrics"
	"socialsync/internal/model"
	"socialsync/internal/repository"
	"socialsync/internal/service"
	"socialsync/internal/store"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsMaxReadBytes = 4096
	wsSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is one server-to-client frame. Type is the store event type
// (child_added, child_changed, child_removed).
type wsFrame struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Data any    `json:"data,omitempty"`
}

// StreamHandler pushes live changes of chats, notifications and comment
// threads over WebSocket connections.
type StreamHandler struct {
	chatService *service.ChatService
	watcher     store.Watcher
}

func NewStreamHandler(chatService *service.ChatService, watcher store.Watcher) *StreamHandler {
	return &StreamHandler{
		chatService: chatService,
		watcher:     watcher,
	}
}

// subscribeFunc starts the underlying watch. send queues a frame for the
// client and reports false once the connection is gone.
type subscribeFunc func(ctx context.Context, send func(wsFrame) bool) (store.Subscription, error)

// Chat handles GET /ws/chats/{peerId}
// Streams the conversation; messages addressed to the caller are marked
// read as they are delivered.
func (h *StreamHandler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	peerID := chi.URLParam(r, "peerId")

	h.serve(w, r, "chat", func(ctx context.Context, send func(wsFrame) bool) (store.Subscription, error) {
		return h.chatService.Watch(ctx, identity.UID, peerID, func(typ store.EventType, msg model.Message) {
			send(wsFrame{Type: string(typ), Key: msg.ID, Data: msg})
		})
	})
}

// Notifications handles GET /ws/notifications
func (h *StreamHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	log := logging.For("ws").WithField("user_id", identity.UID)

	h.serve(w, r, "notifications", func(ctx context.Context, send func(wsFrame) bool) (store.Subscription, error) {
		return h.watcher.Subscribe(ctx, repository.NotificationsPath(identity.UID), func(ev store.Event) {
			frame := wsFrame{Type: string(ev.Type), Key: ev.Key}
			if ev.Type != store.ChildRemoved {
				n, err := repository.DecodeNotification(ev)
				if err != nil {
					log.WithError(err).WithField("key", ev.Key).Warn("Skipping undecodable notification")
					return
				}
				frame.Data = n
			}
			send(frame)
		})
	})
}

// Comments handles GET /ws/posts/{id}/comments
func (h *StreamHandler) Comments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	log := logging.For("ws").WithField("post_id", postID)

	h.serve(w, r, "comments", func(ctx context.Context, send func(wsFrame) bool) (store.Subscription, error) {
		return h.watcher.Subscribe(ctx, repository.CommentsPath(postID), func(ev store.Event) {
			frame := wsFrame{Type: string(ev.Type), Key: ev.Key}
			if ev.Type != store.ChildRemoved {
				c, err := repository.DecodeComment(ev)
				if err != nil {
					log.WithError(err).WithField("key", ev.Key).Warn("Skipping undecodable comment")
					return
				}
				frame.Data = c
			}
			send(frame)
		})
	})
}

// serve subscribes first so that watch errors still get a normal HTTP
// response, then upgrades. One goroutine writes frames and pings; the
// request goroutine reads until the client goes away.
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, kind string, subscribe subscribeFunc) {
	log := logging.For("ws").WithFields(logrus.Fields{"kind": kind, "path": r.URL.Path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan wsFrame, wsSendBuffer)
	send := func(f wsFrame) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sub, err := subscribe(ctx, send)
	if err != nil {
		writeServiceError(w, r, err, "Subscribe", "Failed to subscribe")
		return
	}
	defer sub.Cancel()
	// cancel must run before sub.Cancel so a handler blocked in send returns
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Info("Upgrade FAILED")
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Close websocket FAILED")
		}
	}()

	metrics.Subscriptions.WithLabelValues(kind).Inc()
	defer metrics.Subscriptions.WithLabelValues(kind).Dec()
	log.Debug("Subscription opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		writeLoop(ctx, conn, out, log)
	}()

	readLoop(conn, log)
	cancel()
	wg.Wait()
	log.Debug("Subscription closed")
}

// writeLoop is the only writer of conn.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan wsFrame, log *logrus.Entry) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case f := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(f); err != nil {
				log.WithError(err).Debug("Write frame FAILED")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.WithError(err).Debug("Ping FAILED")
				return
			}
		}
	}
}

// readLoop drains client frames until the connection fails. Clients only
// send pongs and a close frame.
func readLoop(conn *websocket.Conn, log *logrus.Entry) {
	conn.SetReadLimit(wsMaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Debug("Peer closed")
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Debug("Read timeout")
			} else {
				log.WithError(err).Debug("Read FAILED")
			}
			return
		}
	}
}
