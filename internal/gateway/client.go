package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/you/kick-relay/internal/discovery"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024 // badge payloads carry full channel metadata
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one overlay session. It watches at most one channel; joining
// another channel leaves the previous one first.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	channel string
}

// ServeWS upgrades an overlay connection and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: upgrade: %v", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	gatewayMetrics.incClients()

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.leaveCurrent()
		gatewayMetrics.decClients()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: read: %v", err)
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("gateway: bad client frame: %v", err)
		return
	}

	switch env.Event {
	case eventJoinChannel:
		var channel string
		if err := json.Unmarshal(env.Data, &channel); err != nil || channel == "" {
			c.sendEvent(eventConnectionError, "joinChannel requires a channel name")
			return
		}
		c.handleJoin(channel)

	case eventLeaveChannel:
		c.leaveCurrent()

	case eventBadgeData:
		var payload badgeDataPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			log.Printf("gateway: bad badgeData payload: %v", err)
			return
		}
		c.hub.handleBadgeData(payload)

	default:
		log.Printf("gateway: unknown client event %q", env.Event)
	}
}

func (c *Client) handleJoin(channel string) {
	key := roomKey(channel)
	if c.channel == key {
		return
	}
	c.leaveCurrent()

	c.hub.join(c, key)
	c.channel = key

	if err := c.hub.Manager.Acquire(context.Background(), key); err != nil {
		c.hub.leave(c, key)
		c.channel = ""
		c.sendEvent(eventConnectionError, "Failed to connect to channel: "+channel)
		return
	}
	log.Printf("gateway: client joined channel=%s", key)
}

func (c *Client) leaveCurrent() {
	if c.channel == "" {
		return
	}
	channel := c.channel
	c.channel = ""
	c.hub.leave(c, channel)
	c.hub.Manager.Release(channel)
	log.Printf("gateway: client left channel=%s", channel)
}

// handleBadgeData caches the client-fetched badge set and forwards the
// identifiers it carries as discovery hints, which triggers the pending
// subscribe when the pair completes.
func (h *Hub) handleBadgeData(payload badgeDataPayload) {
	channel := roomKey(payload.ChannelName)
	if channel == "" {
		return
	}

	if set := payload.badgeSet(); len(set) > 0 && h.Badges != nil {
		h.Badges.CacheFromClient(channel, set)
	}

	var ids discovery.Identifiers
	if v := payload.ChannelInfo.Chatroom.ID.String(); v != "" && v != "0" {
		ids.Chatroom = discovery.Identifier{Value: v}
	}
	if len(payload.SubscriberBadges) > 0 {
		if v := payload.SubscriberBadges[0].ChannelID.String(); v != "" && v != "0" {
			ids.Channel = discovery.Identifier{Value: v}
		}
	}
	if ids.Chatroom.Known() || ids.Channel.Known() {
		h.Manager.Hint(context.Background(), channel, ids)
	}
}

func (c *Client) sendEvent(event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		return
	}
	c.trySend(frame)
}

// trySend queues a frame without blocking; a full buffer drops the frame.
func (c *Client) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
		gatewayMetrics.incDropped()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
