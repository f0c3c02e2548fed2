package echoapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 1024
	sendBufferSize = 8

	opNavigate     = "navigate"
	opHeartbeat    = "heartbeat"
	opHeartbeatAck = "heartbeat_ack"
	opRedirect     = "redirect"
)

// channelEvent is the frame exchanged over the tab channel.
//
//	client: {"op":"navigate","path":"/lycee-wima/admin/users"} | {"op":"heartbeat"}
//	server: {"op":"redirect","to":"/lycee-wima/auth/login"} | {"op":"heartbeat_ack"}
type channelEvent struct {
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
	To   string `json:"to,omitempty"`
}

type tabChannel struct {
	sessions *session.Manager
	logger   core.Logger
	upgrader websocket.Upgrader
}

// registerTabChannel mounts the websocket through which a tab learns that another tab of its browser
// cleared the shared session.
func registerTabChannel(g *echo.Group, deps ServerDeps) {
	tc := tabChannel{
		sessions: deps.Sessions,
		logger:   deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.Conf.Server.AllowedOrigins),
		},
	}
	g.GET("/api/session/channel", tc.serve)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (tc *tabChannel) serve(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	guard, err := getContextGuard(ctx)
	if err != nil {
		return err
	}

	c, cancel := context.WithCancel(ctx.Request().Context())
	defer cancel()

	sub, err := tc.sessions.Subscribe(c, scope.Browser)
	if err != nil {
		return errors.Wrap(err, "subscribing to session invalidations")
	}
	defer sub.Close()

	conn, err := tc.upgrader.Upgrade(ctx.Response(), ctx.Request(), ctx.Response().Header())
	if err != nil {
		// the upgrader already replied
		tc.logger.Debug("ws: upgrade failed", err)
		return nil
	}

	client := &tabClient{
		conn:   conn,
		guard:  guard,
		logger: tc.logger,
		path:   ctx.QueryParam("path"),
		send:   make(chan channelEvent, sendBufferSize),
	}
	go client.writePump(c, sub.C())
	client.readPump(cancel)
	return nil
}

type tabClient struct {
	conn   *websocket.Conn
	guard  *session.Guard
	logger core.Logger
	send   chan channelEvent

	mu   sync.Mutex
	path string // page currently displayed by the tab
}

func (tc *tabClient) currentPath() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.path
}

func (tc *tabClient) setPath(path string) {
	tc.mu.Lock()
	tc.path = path
	tc.mu.Unlock()
}

func (tc *tabClient) queue(ev channelEvent) {
	select {
	case tc.send <- ev:
	default:
	}
}

func (tc *tabClient) readPump(done context.CancelFunc) {
	defer done()

	tc.conn.SetReadLimit(maxMessageSize)
	if err := tc.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	for {
		var ev channelEvent
		if err := tc.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				tc.logger.Debug("ws: unexpected close", err)
			}
			return
		}

		switch ev.Op {
		case opNavigate:
			tc.setPath(ev.Path)
		case opHeartbeat:
			if err := tc.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				return
			}
			tc.queue(channelEvent{Op: opHeartbeatAck})
		default:
			tc.logger.Debug("ws: unknown op " + ev.Op)
		}
	}
}

// writePump is the only writer of the connection.
func (tc *tabClient) writePump(ctx context.Context, invalidations <-chan session.Invalidation) {
	defer tc.conn.Close()

	for {
		select {
		case ev, ok := <-invalidations:
			if !ok {
				return
			}
			to, redirect := tc.guard.HandleInvalidation(ctx, ev, tc.currentPath())
			if !redirect {
				continue
			}
			tc.setPath(to)
			if err := tc.write(channelEvent{Op: opRedirect, To: to}); err != nil {
				return
			}
		case ev := <-tc.send:
			if err := tc.write(ev); err != nil {
				return
			}
		case <-ctx.Done():
			_ = tc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = tc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (tc *tabClient) write(ev channelEvent) error {
	if err := tc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return tc.conn.WriteJSON(ev)
}
