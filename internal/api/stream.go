// WebSocket event stream for entitlement lifecycle updates. The front-end
// subscribes here to refresh balances without polling.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/somniax/backend/internal/entitlement"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// streamClient is one subscribed connection. All writes to the connection go
// through the send channel and writePump so ping and event writes never race.
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	wallet string // lowercase hex filter, empty for all wallets
	done   chan struct{}
	once   sync.Once
}

// EventStream fans entitlement events out to WebSocket subscribers.
type EventStream struct {
	mu      sync.Mutex
	clients map[*streamClient]bool
}

func NewEventStream() *EventStream {
	return &EventStream{clients: make(map[*streamClient]bool)}
}

// Publish broadcasts one event to every subscriber whose wallet filter
// matches. Slow subscribers are dropped rather than blocking the tracker.
func (s *EventStream) Publish(event entitlement.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	wallet := strings.ToLower(event.Wallet)

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if client.wallet != "" && client.wallet != wallet {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slog.Warn("dropping slow entitlement stream subscriber")
			delete(s.clients, client)
			client.close()
		}
	}
}

// HandleWebSocket upgrades the request and subscribes it to the stream. A
// ?wallet= query parameter narrows the stream to one wallet's events.
func (s *EventStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	var wallet string
	if raw := r.URL.Query().Get("wallet"); raw != "" {
		if !common.IsHexAddress(raw) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid wallet filter"))
			conn.Close()
			return
		}
		wallet = strings.ToLower(common.HexToAddress(raw).Hex())
	}

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		wallet: wallet,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()
	slog.Info("entitlement stream subscriber connected", "wallet", wallet)

	go client.writePump()
	go client.readPump(s)
}

func (s *EventStream) unsubscribe(client *streamClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	client.close()
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump is the only goroutine writing to the connection.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump consumes control frames; subscribers never send data messages.
func (c *streamClient) readPump(s *EventStream) {
	defer s.unsubscribe(c)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("entitlement stream read error", "error", err)
			}
			return
		}
	}
}
