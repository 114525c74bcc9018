package kickws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/kick-relay/internal/core"
	"github.com/you/kick-relay/internal/discovery"
)

// State is the lifecycle phase of one upstream connection.
type State int

const (
	StateDisconnected State = iota
	StateSocketOpening
	StateAwaitingIdentifiers
	StateSubscribing
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateSocketOpening:
		return "socket-opening"
	case StateAwaitingIdentifiers:
		return "awaiting-identifiers"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

type EventType int

const (
	EventChannelConnected EventType = iota + 1
	EventSubscribed
	EventMessage
	EventError
	EventInactive
)

// Event is one lifecycle or message emission from a connection. Exactly
// one payload field is set per type.
type Event struct {
	Type    EventType
	Channel string
	Info    core.ChannelInfo
	Message *RawMessage
	Err     error
}

type Options struct {
	AppKey      string
	Cluster     string
	Host        string
	URL         string // overrides the derived broker URL when set
	HTTPClient  *http.Client
	IdleTimeout time.Duration
}

// BrokerURL derives the pusher endpoint. App key and cluster are static
// configuration, never per-channel.
func (o Options) BrokerURL() string {
	if o.URL != "" {
		return o.URL
	}
	return fmt.Sprintf("wss://ws-%s.%s/app/%s?protocol=7&client=js&version=4.3.1&flash=false",
		o.Cluster, o.Host, o.AppKey)
}

// Connection owns one socket to the upstream broker for one channel. It
// does not reconnect on failure; the connection manager decides whether a
// fresh connection is warranted.
type Connection struct {
	channel string
	opts    Options
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	ws    *websocket.Conn
	idle  *time.Timer
}

func NewConnection(channel string, opts Options) *Connection {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 90 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		channel: strings.ToLower(strings.TrimSpace(channel)),
		opts:    opts,
		events:  make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Connection) Channel() string { return c.channel }

// Events is the stream the connection manager consumes. It is never
// closed; teardown is signalled by cancellation instead, so a slow reader
// can never race a close.
func (c *Connection) Events() <-chan Event { return c.events }

// Done reports connection teardown.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the broker and starts the read loop. The returned error
// covers dialing only; everything after arrives as events.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("kickws: connect in state %s", c.state)
	}
	c.state = StateSocketOpening
	c.mu.Unlock()

	log.Printf("kickws: dialing broker for channel=%s", c.channel)
	ws, _, err := websocket.Dial(ctx, c.opts.BrokerURL(), &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
	})
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial broker: %w", err)
	}
	ws.SetReadLimit(1 << 20)

	c.mu.Lock()
	c.ws = ws
	c.idle = time.AfterFunc(c.opts.IdleTimeout, c.reportInactive)
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

// SubscribeWith sends subscribe frames for every topic derivable from the
// given identifiers. With both identifiers unknown no frame is sent; the
// transition to Subscribing is strictly event-driven by identifier
// arrival, never by a timer.
func (c *Connection) SubscribeWith(ctx context.Context, ids discovery.Identifiers) error {
	topics := Topics(ids.Chatroom.Value, ids.Channel.Value)
	if len(topics) == 0 {
		return nil
	}

	c.mu.Lock()
	ws := c.ws
	if ws == nil || c.state == StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("kickws: subscribe on %s connection", c.state)
	}
	if c.state == StateSocketOpening || c.state == StateAwaitingIdentifiers {
		c.state = StateSubscribing
	}
	c.mu.Unlock()

	if ids.Chatroom.Guessed || ids.Channel.Guessed {
		log.Printf("kickws: subscribing channel=%s with guessed identifiers", c.channel)
	}

	for _, topic := range topics {
		frame, err := json.Marshal(subscribeFrame{
			Event: eventSubscribe,
			Data:  subscribeData{Channel: topic},
		})
		if err != nil {
			return fmt.Errorf("marshal subscribe frame: %w", err)
		}
		if err := ws.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("send subscribe %s: %w", topic, err)
		}
		log.Printf("kickws: subscribed topic=%s channel=%s", topic, c.channel)
	}
	c.resetIdle()
	return nil
}

func (c *Connection) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			wasDisconnected := c.state == StateDisconnected
			c.state = StateDisconnected
			c.mu.Unlock()
			if !wasDisconnected && c.ctx.Err() == nil {
				c.emit(Event{Type: EventError, Channel: c.channel, Err: fmt.Errorf("socket closed: %w", err)})
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	wsMetrics.incFramesSeen()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		wsMetrics.incDecodeErrors()
		log.Printf("kickws: bad frame on channel=%s: %v", c.channel, err)
		return
	}

	switch {
	case env.Event == eventConnectionEstablished:
		c.mu.Lock()
		if c.state == StateSocketOpening {
			c.state = StateAwaitingIdentifiers
		}
		c.mu.Unlock()
		log.Printf("kickws: broker connection established for channel=%s", c.channel)
		// Optimistic announcement: downstream gets a connected UI now, the
		// authoritative subscribe follows once real identifiers arrive.
		c.emit(Event{Type: EventChannelConnected, Channel: c.channel, Info: placeholderInfo(c.channel)})

	case env.Event == eventSubscriptionSucceeded:
		c.mu.Lock()
		first := c.state != StateSubscribed
		c.state = StateSubscribed
		c.mu.Unlock()
		c.resetIdle()
		log.Printf("kickws: subscription succeeded topic=%s channel=%s", env.Channel, c.channel)
		if first {
			c.emit(Event{Type: EventSubscribed, Channel: c.channel})
		}

	case env.Event == eventSubscriptionError:
		log.Printf("kickws: subscription error topic=%s channel=%s", env.Channel, c.channel)

	case chatEventNames[env.Event]:
		msg, err := decodeChatMessage(env.Data)
		if err != nil {
			wsMetrics.incDecodeErrors()
			log.Printf("kickws: bad chat payload on channel=%s: %v", c.channel, err)
			return
		}
		wsMetrics.incChatMessages()
		c.resetIdle()
		c.emit(Event{Type: EventMessage, Channel: c.channel, Message: msg})
	}
}

// placeholderInfo is the best-effort metadata for the optimistic connected
// announcement, before real identifiers resolve.
func placeholderInfo(channel string) core.ChannelInfo {
	return core.ChannelInfo{
		ID:       "fallback",
		Slug:     channel,
		Username: channel,
		Chatroom: core.Chatroom{ID: "unknown", ChannelID: "unknown"},
	}
}

func (c *Connection) reportInactive() {
	if c.ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateDisconnected {
		return
	}
	log.Printf("kickws: channel=%s inactive for %s", c.channel, c.opts.IdleTimeout)
	c.emit(Event{Type: EventInactive, Channel: c.channel})
}

func (c *Connection) resetIdle() {
	c.mu.Lock()
	if c.idle != nil {
		c.idle.Reset(c.opts.IdleTimeout)
	}
	c.mu.Unlock()
}

// emit delivers an event unless the connection is torn down. The events
// channel is buffered; should a reader fall this far behind, teardown is
// the only other way out, so block against cancellation rather than drop.
func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Close tears the connection down: cancels in-flight work, stops timers,
// closes the socket. Safe to call more than once; never returns an error
// because teardown has no caller-visible failure mode.
func (c *Connection) Close() {
	c.cancel()

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "released")
	}
}
