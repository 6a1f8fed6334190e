// Package api streams run progress to websocket clients. A client watches one
// or more runs by subscribing to their channels; every progress, completion or
// failure of a run is pushed to the clients watching it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	// Server -> Client messages
	MsgTypeProgress  MessageType = "progress"
	MsgTypeCompleted MessageType = "completed"
	MsgTypeFailed    MessageType = "failed"
	MsgTypeError     MessageType = "error"
	MsgTypeHeartbeat MessageType = "heartbeat"

	// Client -> Server messages
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
)

const (
	heartbeatInterval = 30 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	writeWait         = 10 * time.Second
	maxMessageSize    = 4096
	sendBuffer        = 64

	runChannelPrefix = "simulations:"
)

var (
	errInvalidMessage = errors.New("invalid message")
	errNotRunChannel  = errors.New("channel must name a run (simulations:<id>)")
)

// RunChannel is the channel carrying updates for one run.
func RunChannel(id string) string { return runChannelPrefix + id }

// WSMessage is a WebSocket message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func encodeFrame(msgType MessageType, channel string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Client is one websocket connection and the runs it watches. runs is
// guarded by the hub's lock.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	runs map[string]struct{}
}

// Hub tracks connected clients and which runs each one watches.
type Hub struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	watchers map[string]map[*Client]struct{}
	closed   bool
}

// NewHub creates a new WebSocket hub. m may be nil.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:   logger,
		metrics:  m,
		clients:  make(map[*Client]struct{}),
		watchers: make(map[string]map[*Client]struct{}),
	}
}

// Run sends heartbeats until ctx is done, then detaches every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.heartbeat()
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	remaining := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		remaining = append(remaining, c)
	}
	h.mu.Unlock()

	for _, c := range remaining {
		h.Detach(c)
	}
	h.logger.Debug("websocket hub stopped", zap.Int("detached", len(remaining)))
}

func (h *Hub) heartbeat() {
	frame, err := encodeFrame(MsgTypeHeartbeat, "", nil)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.offer(frame)
	}
}

// Serve attaches conn as a new client and starts its read and write loops.
// It reports false when the hub has already stopped.
func (h *Hub) Serve(conn *websocket.Conn) bool {
	c := &Client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		runs: make(map[string]struct{}),
	}
	if !h.Attach(c) {
		return false
	}
	go c.deliver()
	go c.listen()
	return true
}

// Attach adds c to the hub. It reports false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	h.logger.Debug("websocket client attached", zap.String("client", c.id))
	return true
}

// Detach removes c and every run it watches, then closes its send queue.
// Detaching twice is a no-op.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for channel := range c.runs {
		h.dropWatcher(channel, c)
	}
	close(c.send)

	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
	h.logger.Debug("websocket client detached", zap.String("client", c.id))
}

// dropWatcher must be called with h.mu held.
func (h *Hub) dropWatcher(channel string, c *Client) {
	delete(c.runs, channel)
	if set, ok := h.watchers[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.watchers, channel)
		}
	}
}

// Watch subscribes c to a run channel.
func (h *Hub) Watch(c *Client, channel string) error {
	if !strings.HasPrefix(channel, runChannelPrefix) || len(channel) == len(runChannelPrefix) {
		return errNotRunChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return nil
	}
	set := h.watchers[channel]
	if set == nil {
		set = make(map[*Client]struct{})
		h.watchers[channel] = set
	}
	set[c] = struct{}{}
	c.runs[channel] = struct{}{}
	return nil
}

// Unwatch stops delivering a run channel to c.
func (h *Hub) Unwatch(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropWatcher(channel, c)
}

// Watchers returns the number of clients watching a channel.
func (h *Hub) Watchers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[channel])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish pushes one update to every client watching channel. A client whose
// queue is full misses the update.
func (h *Hub) Publish(channel string, msgType MessageType, data interface{}) {
	frame, err := encodeFrame(msgType, channel, data)
	if err != nil {
		h.logger.Error("failed to encode run update", zap.String("channel", channel), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.watchers[channel] {
		c.offer(frame)
	}
}

// offer queues frame without blocking. Callers hold the hub's read lock, so
// send cannot be closed underneath them.
func (c *Client) offer(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

// reply answers a client request with an error frame.
func (c *Client) reply(channel string, cause error) {
	frame, err := encodeFrame(MsgTypeError, channel, map[string]string{"error": cause.Error()})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.offer(frame)
	}
}

// handle applies one subscribe or unsubscribe request.
func (c *Client) handle(raw []byte) (string, error) {
	var req WSMessage
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", errInvalidMessage
	}
	switch req.Type {
	case MsgTypeSubscribe:
		return req.Channel, c.hub.Watch(c, req.Channel)
	case MsgTypeUnsubscribe:
		c.hub.Unwatch(c, req.Channel)
		return req.Channel, nil
	default:
		return req.Channel, fmt.Errorf("unknown message type %q", req.Type)
	}
}

// listen reads client requests until the connection fails.
func (c *Client) listen() {
	defer func() {
		c.hub.Detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		if channel, err := c.handle(raw); err != nil {
			c.reply(channel, err)
		}
	}
}

// deliver writes queued updates and keepalive pings. A closed queue means the
// client was detached.
func (c *Client) deliver() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case frame, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			err = c.write(websocket.TextMessage, frame)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, payload)
}
