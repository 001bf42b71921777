// Package relay talks to the relayer backend: a websocket channel that
// delivers mint outcomes for the active account, and a one-shot reporter
// for lock/burn records.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"imuabridge/metrics"
	"imuabridge/types"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrChannelClosed = errors.New("relay channel is not open")

type Handler func(types.RelayEvent)

// connection is one websocket session, its goroutines only ever touch their own connection
type connection struct {
	account string
	conn    *websocket.Conn
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (cc *connection) alive() bool {
	select {
	case <-cc.done:
		return false
	default:
		return true
	}
}

func (cc *connection) writeJSON(v interface{}) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()

	cc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return cc.conn.WriteJSON(v)
}

func (cc *connection) close() {
	cc.closeOnce.Do(func() {
		close(cc.done)

		cc.writeMu.Lock()
		cc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		cc.writeMu.Unlock()
		cc.conn.Close()
	})
}

// Channel is the push path from the relayer, keyed by the active account
type Channel struct {
	baseURL   string
	heartbeat time.Duration
	dialer    *websocket.Dialer
	limiter   *rate.Limiter

	mu      sync.Mutex
	current *connection
	account string // kept after a drop so Nudge knows whom to reconnect
	handler Handler
}

// NewChannel allows reconnectPerMinute interaction-triggered reconnects. A value <= 0
// disables the limit, config.ReconnectRate never returns one.
func NewChannel(baseURL string, heartbeat time.Duration, reconnectPerMinute int) *Channel {
	limit := rate.Inf
	if reconnectPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(reconnectPerMinute))
	}
	return &Channel{
		baseURL:   baseURL,
		heartbeat: heartbeat,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (c *Channel) endpoint(account string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("address", account)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open is a no-op when already open for account, a different account closes the old connection first
func (c *Channel) Open(ctx context.Context, account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.account == account && c.current.alive() {
		return nil
	}
	if c.current != nil {
		c.current.close()
		c.current = nil
		metrics.RelayChannelConnected.Set(0)
	}
	c.account = account

	endpoint, err := c.endpoint(account)
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("relay channel dial: %w", err)
	}

	cc := &connection{account: account, conn: conn, done: make(chan struct{})}
	c.current = cc
	metrics.RelayChannelConnected.Set(1)
	log.Printf("Relay channel open for %s", account)

	go c.readLoop(cc)
	if c.heartbeat > 0 {
		go c.heartbeatLoop(cc)
	}
	return nil
}

// Close tears down the connection and forgets the account
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.account = ""
	if c.current == nil {
		return
	}
	c.current.close()
	c.current = nil
	metrics.RelayChannelConnected.Set(0)
	log.Printf("Relay channel closed")
}

// Send is best effort
func (c *Channel) Send(v interface{}) error {
	c.mu.Lock()
	cc := c.current
	c.mu.Unlock()

	if cc == nil || !cc.alive() {
		return ErrChannelClosed
	}
	return cc.writeJSON(v)
}

// OnEvent replaces the inbound handler
func (c *Channel) OnEvent(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.alive()
}

func (c *Channel) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// Nudge reports user activity: a dropped channel with a known account is opened again.
// Missed events are not replayed.
func (c *Channel) Nudge(ctx context.Context) error {
	c.mu.Lock()
	connected := c.current != nil && c.current.alive()
	account := c.account
	c.mu.Unlock()

	if connected || account == "" {
		return nil
	}
	if !c.limiter.Allow() {
		metrics.RelayReconnects.WithLabelValues("throttled").Inc()
		return nil
	}

	if err := c.Open(ctx, account); err != nil {
		metrics.RelayReconnects.WithLabelValues("error").Inc()
		log.Printf("Relay channel reconnect for %s failed: %s", account, err.Error())
		return err
	}
	metrics.RelayReconnects.WithLabelValues("ok").Inc()
	return nil
}

// drop forgets cc if it is still the current connection
func (c *Channel) drop(cc *connection) {
	cc.close()

	c.mu.Lock()
	if c.current == cc {
		c.current = nil
		metrics.RelayChannelConnected.Set(0)
		log.Printf("Relay channel for %s dropped", cc.account)
	}
	c.mu.Unlock()
}

func (c *Channel) readLoop(cc *connection) {
	defer c.drop(cc)

	for {
		_, message, err := cc.conn.ReadMessage()
		if err != nil {
			if cc.alive() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Relay channel read error: %s", err.Error())
			}
			return
		}

		// one frame may carry several newline separated events
		for _, line := range bytes.Split(message, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var ev types.RelayEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				log.Printf("Ignoring malformed relay event: %s", err.Error())
				continue
			}
			c.dispatch(cc, ev)
		}
	}
}

func (c *Channel) dispatch(cc *connection, ev types.RelayEvent) {
	if ev.Type == types.RelayEventHeartbeat {
		return
	}

	c.mu.Lock()
	h := c.handler
	current := c.current == cc
	c.mu.Unlock()

	if !current {
		log.Debugf("Discarding %s event from a replaced relay channel", ev.Type)
		return
	}
	metrics.RelayEventsReceived.WithLabelValues(ev.Type).Inc()
	if h != nil {
		h(ev)
	}
}

func (c *Channel) heartbeatLoop(cc *connection) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-cc.done:
			return
		case t := <-ticker.C:
			err := cc.writeJSON(types.Heartbeat{Type: types.RelayEventHeartbeat, Timestamp: t.UnixMilli()})
			if err != nil {
				log.Printf("Relay heartbeat failed: %s", err.Error())
				c.drop(cc)
				return
			}
			metrics.RelayHeartbeats.Inc()
		}
	}
}
