package slack

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ///////////////////////////////////////////////
// RTM Stream
// ///////////////////////////////////////////////

// MessageEvent is one inbound (user, text) pair from the message stream.
type MessageEvent struct {
	// UserID is the sending user's platform ID.
	UserID string
	// Text is the raw message text.
	Text string
}

// RTM maintains the Real Time Messaging websocket: it dials, reads message
// events, and on any failure reconnects indefinitely with a fixed delay.
// Delivery gaps during a reconnect never touch session state; the core keeps
// its timers running regardless.
type RTM struct {
	client *Client
	// botID filters the bot's own messages out of the stream.
	botID string
	// reconnectDelay is the fixed sleep between reconnect attempts.
	reconnectDelay time.Duration

	// events delivers inbound messages to the daemon's event loop.
	events chan MessageEvent
	// done is closed by [RTM.Close] to stop the run loop.
	done chan struct{}
	// once ensures Close is idempotent.
	once sync.Once

	// mu guards conn so Close can unblock a pending read.
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRTM creates an RTM stream handler. Call [RTM.Run] on its own goroutine
// to start reading.
func NewRTM(client *Client, botID string, reconnectDelay time.Duration) *RTM {
	return &RTM{
		client:         client,
		botID:          botID,
		reconnectDelay: reconnectDelay,
		events:         make(chan MessageEvent, 16),
		done:           make(chan struct{}),
	}
}

// Events returns the channel of inbound message events. The channel is
// closed when the run loop exits.
func (r *RTM) Events() <-chan MessageEvent {
	return r.events
}

// Run connects and reads until [RTM.Close] is called. Every connection
// failure or read error triggers a reconnect after the fixed delay; the
// retry never gives up.
func (r *RTM) Run() {
	defer close(r.events)

	for {
		if r.closed() {
			return
		}
		if err := r.connect(); err != nil {
			slog.Warn("unable to connect, retrying", "error", err)
			if !r.sleep() {
				return
			}
			continue
		}
		slog.Info("message stream connected")

		r.readLoop()
		if r.closed() {
			return
		}
		slog.Warn("message stream disconnected, reconnecting")
		if !r.sleep() {
			return
		}
	}
}

// Close stops the run loop and closes the active connection, unblocking any
// pending read.
func (r *RTM) Close() {
	r.once.Do(func() {
		close(r.done)
		r.mu.Lock()
		if r.conn != nil {
			r.conn.Close()
		}
		r.mu.Unlock()
	})
}

// closed reports whether Close has been called.
func (r *RTM) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// sleep waits the reconnect delay, returning false if Close happened first.
func (r *RTM) sleep() bool {
	select {
	case <-r.done:
		return false
	case <-time.After(r.reconnectDelay):
		return true
	}
}

// connect fetches a fresh websocket URL and dials it.
func (r *RTM) connect() error {
	wsURL, err := r.client.RTMConnect()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return nil
}

// rtmEvent is the subset of stream event fields the daemon cares about.
type rtmEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
	Text string `json:"text"`
}

// readLoop reads stream frames until the connection errors, forwarding plain
// user messages as [MessageEvent]s. Messages sent by the bot itself and
// events without both a user and text are skipped.
func (r *RTM) readLoop() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		conn.Close()
		r.conn = nil
		r.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !r.closed() {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}

		var ev rtmEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("skipping unparseable event", "error", err)
			continue
		}
		if ev.Type != "message" || ev.User == "" || ev.Text == "" || ev.User == r.botID {
			continue
		}

		select {
		case r.events <- MessageEvent{UserID: ev.User, Text: ev.Text}:
		case <-r.done:
			return
		}
	}
}
