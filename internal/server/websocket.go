package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/msaudio/audioserver-go/internal/api"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/command"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a silent peer stays connected.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameBytes bounds one inbound command frame.
	maxFrameBytes = 1 << 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The miniserver and the apps connect without browser origin headers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveWS runs one websocket session: inbound text frames are commands in
// the miniserver grammar, outbound frames interleave command responses with
// the broadcast plane.
func (s *surface) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	sub, cancel := s.hub.Subscribe()
	sess := &wsSession{
		surface:    s,
		conn:       conn,
		sub:        sub,
		cancel:     cancel,
		responses:  make(chan []byte, 16),
		writerDone: make(chan struct{}),
		requestID:  api.RequestID(r),
	}

	go sess.writePump()
	sess.readPump(r.Context())
}

type wsSession struct {
	surface    *surface
	conn       *websocket.Conn
	sub        *broadcast.Subscriber
	cancel     func()
	responses  chan []byte
	writerDone chan struct{}
	requestID  string
}

// readPump executes command frames until the connection dies. Cancelling
// the subscription closes its channel, which in turn stops the write pump.
func (sess *wsSession) readPump(ctx context.Context) {
	defer sess.cancel()

	sess.conn.SetReadLimit(maxFrameBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		raw := strings.TrimSpace(string(frame))
		if raw == "" {
			continue
		}

		res := sess.surface.router.Execute(ctx, raw, nil, command.Origin{
			Surface:   command.SurfaceWS,
			RequestID: sess.requestID,
		})
		body, err := json.Marshal(res.Body)
		if err != nil {
			sess.surface.logger.Error().Err(err).Str("command", raw).Msg("encoding ws response")
			continue
		}

		select {
		case sess.responses <- body:
		case <-sess.writerDone:
			return
		}
	}
}

// writePump is the single writer on the connection. Responses take priority
// over fan-out frames; pings keep idle peers alive.
func (sess *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(sess.writerDone)
		_ = sess.conn.Close()
		sess.cancel()
	}()

	for {
		select {
		case body := <-sess.responses:
			if !sess.write(websocket.TextMessage, body) {
				return
			}
			continue
		default:
		}

		select {
		case body := <-sess.responses:
			if !sess.write(websocket.TextMessage, body) {
				return
			}
		case frame, ok := <-sess.sub.C:
			if !ok {
				// Hub shut down; say goodbye properly.
				_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = sess.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if !sess.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !sess.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (sess *wsSession) write(kind int, data []byte) bool {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sess.conn.WriteMessage(kind, data) == nil
}
