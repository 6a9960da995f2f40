package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit bounds how many missed events a single catchup response
// replays; a client behind by more than this is told to reload via REST
// instead of trusting a huge backlog frame.
const catchupLimit = 200

// listenTimeout bounds how long WaitForNotification may block between polls
// of the command channel, so a Subscribe/Unsubscribe request is never stuck
// behind an idle connection.
const listenTimeout = 10 * time.Second

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Action      string `json:"action"` // "subscribe" | "unsubscribe"
	ExecutionID string `json:"execution_id"`
	SinceSeq    int64  `json:"since_seq"`
}

// ConnectionManager owns every live WebSocket connection and its channel
// subscriptions for one process, modeled on the teacher's
// pkg/events/manager.go.
type ConnectionManager struct {
	connections map[string]*connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool // execution channel -> connection IDs
	channelMu sync.RWMutex

	recorder *Recorder

	listener   *NotifyListener
	listenerMu sync.RWMutex

	writeTimeout time.Duration
}

type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a ConnectionManager.
func NewConnectionManager(recorder *Recorder, writeTimeout time.Duration) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &ConnectionManager{
		connections:  make(map[string]*connection),
		channels:     make(map[string]map[string]bool),
		recorder:     recorder,
		writeTimeout: writeTimeout,
	}
}

// SetListener wires the NotifyListener used for dynamic LISTEN/UNLISTEN.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// HandleConnection manages one WebSocket client's lifecycle. Blocks until
// the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: id, conn: conn, subscriptions: make(map[string]bool), ctx: ctx, cancel: cancel}

	m.register(c)
	defer m.unregister(c)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("events: invalid client message", "connection_id", id, "error", err)
			continue
		}
		m.handle(ctx, c, msg)
	}
}

func (m *ConnectionManager) handle(ctx context.Context, c *connection, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.ExecutionID == "" {
			return
		}
		m.subscribe(c, msg.ExecutionID)
		m.sendCatchup(ctx, c, msg.ExecutionID, msg.SinceSeq)
	case "unsubscribe":
		m.unsubscribe(c, msg.ExecutionID)
	}
}

func (m *ConnectionManager) sendCatchup(ctx context.Context, c *connection, executionID string, sinceSeq int64) {
	events, err := m.recorder.Since(ctx, executionID, sinceSeq, catchupLimit+1)
	if err != nil {
		slog.Warn("events: catchup query failed", "execution_id", executionID, "error", err)
		return
	}
	if len(events) > catchupLimit {
		m.sendJSON(c, map[string]string{"type": "catchup.overflow", "execution_id": executionID})
		return
	}
	for _, ev := range events {
		payload, _ := json.Marshal(toWire(ev, ""))
		m.sendRaw(c, payload)
	}
}

func (m *ConnectionManager) subscribe(c *connection, channel string) {
	c.subscriptions[channel] = true

	m.channelMu.Lock()
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[string]bool)
	}
	first := len(m.channels[channel]) == 0
	m.channels[channel][c.id] = true
	m.channelMu.Unlock()

	if first {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			if err := l.Subscribe(c.ctx, Channel(channel)); err != nil {
				slog.Warn("events: LISTEN failed", "channel", channel, "error", err)
			}
		}
	}
}

func (m *ConnectionManager) unsubscribe(c *connection, channel string) {
	delete(c.subscriptions, channel)

	m.channelMu.Lock()
	if subs := m.channels[channel]; subs != nil {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	empty := m.channels[channel] == nil
	m.channelMu.Unlock()

	if empty {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			_ = l.Unsubscribe(c.ctx, Channel(channel))
		}
	}
}

// Broadcast sends payload to every connection subscribed to pgChannel
// (the raw `execution_<id>` NOTIFY channel name).
func (m *ConnectionManager) Broadcast(pgChannel string, payload []byte) {
	executionID := trimChannelPrefix(pgChannel)

	m.channelMu.RLock()
	subs, ok := m.channels[executionID]
	if !ok {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	m.mu.RLock()
	conns := make([]*connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendRaw(c, payload); err != nil {
			slog.Warn("events: send failed", "connection_id", c.id, "error", err)
		}
	}
}

// trimChannelPrefix recovers the bare execution ID from a NOTIFY channel
// name built by Channel().
func trimChannelPrefix(pgChannel string) string {
	const prefix = "execution_"
	if len(pgChannel) > len(prefix) && pgChannel[:len(prefix)] == prefix {
		return pgChannel[len(prefix):]
	}
	return pgChannel
}

func (m *ConnectionManager) sendJSON(c *connection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = m.sendRaw(c, b)
}

func (m *ConnectionManager) sendRaw(c *connection, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (m *ConnectionManager) register(c *connection) {
	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()
}

func (m *ConnectionManager) unregister(c *connection) {
	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	m.channelMu.Lock()
	for ch, subs := range m.channels {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.channels, ch)
		}
	}
	m.channelMu.Unlock()

	c.cancel()
}

// ActiveConnections returns the number of live WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
