package kickws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/kick-relay/internal/discovery"
)

func TestTopicsExactSet(t *testing.T) {
	got := Topics("123", "456")
	want := []string{
		"chatroom_123",
		"chatrooms.123.v2",
		"chatrooms.123",
		"channel_456",
		"channel.456",
		"predictions-channel-456",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Topics() = %v, want %v", got, want)
	}
}

func TestTopicsWithUnknownIdentifiers(t *testing.T) {
	if got := Topics("", ""); len(got) != 0 {
		t.Fatalf("Topics(\"\", \"\") = %v, want none", got)
	}
	if got := Topics("123", ""); len(got) != 3 {
		t.Fatalf("Topics(chatroom only) = %v, want 3 topics", got)
	}
}

// newBroker runs a fake pusher endpoint. The handler owns the server side
// of the socket; inbound frames are forwarded on the returned channel.
func newBroker(t *testing.T, script func(ctx context.Context, ws *websocket.Conn)) (*httptest.Server, chan []byte) {
	t.Helper()
	inbound := make(chan []byte, 32)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			for {
				_, data, err := ws.Read(ctx)
				if err != nil {
					return
				}
				inbound <- data
			}
		}()
		script(ctx, ws)
	}))
	return server, inbound
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func sendEnvelope(ctx context.Context, ws *websocket.Conn, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func waitEvent(t *testing.T, c *Connection, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %d", want)
		}
	}
}

func TestOptimisticChannelConnected(t *testing.T) {
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished, Data: `{"socket_id":"1.1"}`})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("FooBar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := waitEvent(t, c, EventChannelConnected)
	if ev.Channel != "foobar" {
		t.Fatalf("Channel = %q, want foobar", ev.Channel)
	}
	if ev.Info.ID != "fallback" || ev.Info.Chatroom.ID != "unknown" {
		t.Fatalf("Info = %+v, want placeholder identifiers", ev.Info)
	}
	if got := c.State(); got != StateAwaitingIdentifiers {
		t.Fatalf("State() = %s, want awaiting-identifiers", got)
	}
}

func TestSubscribeWithUnknownIdentifiersSendsNothing(t *testing.T) {
	server, inbound := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, c, EventChannelConnected)

	if err := c.SubscribeWith(context.Background(), discovery.Identifiers{}); err != nil {
		t.Fatalf("SubscribeWith() error = %v", err)
	}

	select {
	case frame := <-inbound:
		t.Fatalf("frame sent with unknown identifiers: %s", frame)
	case <-time.After(200 * time.Millisecond):
	}
	if got := c.State(); got != StateAwaitingIdentifiers {
		t.Fatalf("State() = %s, want awaiting-identifiers", got)
	}
}

func TestSubscribeFlow(t *testing.T) {
	server, inbound := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, c, EventChannelConnected)

	ids := discovery.Identifiers{
		Chatroom: discovery.Identifier{Value: "123"},
		Channel:  discovery.Identifier{Value: "456"},
	}
	if err := c.SubscribeWith(context.Background(), ids); err != nil {
		t.Fatalf("SubscribeWith() error = %v", err)
	}

	var topics []string
	for i := 0; i < 6; i++ {
		select {
		case data := <-inbound:
			var frame subscribeFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("bad subscribe frame: %v", err)
			}
			if frame.Event != eventSubscribe {
				t.Fatalf("frame event = %q", frame.Event)
			}
			topics = append(topics, frame.Data.Channel)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out after %d subscribe frames", i)
		}
	}
	want := Topics("123", "456")
	if !reflect.DeepEqual(topics, want) {
		t.Fatalf("subscribed topics = %v, want %v", topics, want)
	}
	if got := c.State(); got != StateSubscribing {
		t.Fatalf("State() = %s, want subscribing", got)
	}
}

func TestSubscriptionAckMarksSubscribed(t *testing.T) {
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		sendEnvelope(ctx, ws, envelope{Event: eventSubscriptionSucceeded, Channel: "chatrooms.123.v2"})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitEvent(t, c, EventSubscribed)
	if got := c.State(); got != StateSubscribed {
		t.Fatalf("State() = %s, want subscribed", got)
	}
}

func TestChatMessageDecoded(t *testing.T) {
	payload := `{"sender":{"id":9001,"username":"viewer1","identity":{"color":"#ff0000","badges":[{"type":"subscriber","text":"Subscriber","count":6}]}},"content":"hello [emote:1:Kappa]","created_at":"2024-05-01T12:00:00Z","emotes":[]}`
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		sendEnvelope(ctx, ws, envelope{
			Event:   `App\Events\ChatMessageEvent`,
			Channel: "chatrooms.123.v2",
			Data:    payload,
		})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := waitEvent(t, c, EventMessage)
	msg := ev.Message
	if msg.Sender.Username != "viewer1" {
		t.Fatalf("Sender.Username = %q", msg.Sender.Username)
	}
	if msg.Content != "hello [emote:1:Kappa]" {
		t.Fatalf("Content = %q", msg.Content)
	}
	if len(msg.Sender.Identity.Badges) != 1 || msg.Sender.Identity.Badges[0].Count != 6 {
		t.Fatalf("Badges = %+v", msg.Sender.Identity.Badges)
	}
}

func TestUnknownEventsIgnored(t *testing.T) {
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		sendEnvelope(ctx, ws, envelope{Event: `App\Events\LivestreamUpdated`, Data: `{}`})
		sendEnvelope(ctx, ws, envelope{Event: eventSubscriptionSucceeded, Channel: "chatroom_123"})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// The subscribed ack arrives after the unknown event; seeing it proves
	// the unknown event neither blocked nor surfaced as a message.
	waitEvent(t, c, EventSubscribed)
}

func TestSocketCloseEmitsError(t *testing.T) {
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		ws.Close(websocket.StatusInternalError, "upstream gone")
	})
	defer server.Close()

	c := NewConnection("foobar", Options{URL: wsURL(server), HTTPClient: server.Client()})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := waitEvent(t, c, EventError)
	if ev.Err == nil {
		t.Fatalf("EventError carried nil error")
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", got)
	}
}

func TestInactivitySelfReport(t *testing.T) {
	server, _ := newBroker(t, func(ctx context.Context, ws *websocket.Conn) {
		sendEnvelope(ctx, ws, envelope{Event: eventConnectionEstablished})
		<-ctx.Done()
	})
	defer server.Close()

	c := NewConnection("foobar", Options{
		URL:         wsURL(server),
		HTTPClient:  server.Client(),
		IdleTimeout: 80 * time.Millisecond,
	})
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitEvent(t, c, EventInactive)
}

func TestConnectDialFailure(t *testing.T) {
	c := NewConnection("foobar", Options{URL: "ws://127.0.0.1:1/app/nope"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatalf("Connect() succeeded against closed port")
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", got)
	}
}
