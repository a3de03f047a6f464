package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/events"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	clientBuffer = 64
)

// Stream pushes every emitted event to connected websocket clients as JSON.
// A client that falls behind by more than its buffer is disconnected.
type Stream struct {
	upgrader    websocket.Upgrader
	unsubscribe func()

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan events.Event
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewStream creates a Stream subscribed to every event of emitter.
func NewStream(emitter *events.Emitter) *Stream {
	s := &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*streamClient]struct{}),
	}
	s.unsubscribe = emitter.SubscribeAll(s.broadcast)
	return s
}

// Run blocks until ctx is done, then unsubscribes and disconnects every
// client.
func (s *Stream) Run(ctx context.Context) error {
	<-ctx.Done()
	s.unsubscribe()

	s.mu.Lock()
	s.closed = true
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of connected clients.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Stream) broadcast(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			streamLogger().WithField("remote", c.conn.RemoteAddr().String()).Warn("stream client too slow, dropping")
			c.close()
			delete(s.clients, c)
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		streamLogger().WithError(err).Debug("upgrade failed")
		return
	}
	c := &streamClient{conn: conn, send: make(chan events.Event, clientBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.readLoop(c)
	s.writeLoop(c)
}

// readLoop discards client messages and unregisters the client once the
// connection fails.
func (s *Stream) readLoop(c *streamClient) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()
}

func (s *Stream) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func streamLogger() *log.Entry {
	return log.WithField("component", "stream")
}
