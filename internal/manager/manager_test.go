package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/you/kick-relay/internal/badges"
	"github.com/you/kick-relay/internal/core"
	"github.com/you/kick-relay/internal/cosmetics"
	"github.com/you/kick-relay/internal/discovery"
	"github.com/you/kick-relay/internal/emotes"
	"github.com/you/kick-relay/internal/kickws"
)

type fakeConn struct {
	connectDelay time.Duration
	connectErr   error
	events       chan kickws.Event
	done         chan struct{}

	mu     sync.Mutex
	subs   []discovery.Identifiers
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan kickws.Event, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeConn) Connect(ctx context.Context) error {
	if f.connectDelay > 0 {
		time.Sleep(f.connectDelay)
	}
	return f.connectErr
}

func (f *fakeConn) SubscribeWith(ctx context.Context, ids discovery.Identifiers) error {
	f.mu.Lock()
	f.subs = append(f.subs, ids)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Events() <-chan kickws.Event { return f.events }
func (f *fakeConn) Done() <-chan struct{}       { return f.done }

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) subscriptions() []discovery.Identifiers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]discovery.Identifiers(nil), f.subs...)
}

type recorder struct {
	mu        sync.Mutex
	connected []core.ChannelInfo
	errors    []string
	emotes    [][]core.CatalogEmote
	messages  chan core.ChatMessage
}

func newRecorder() *recorder {
	return &recorder{messages: make(chan core.ChatMessage, 16)}
}

func (r *recorder) ChannelConnected(channel string, info core.ChannelInfo) {
	r.mu.Lock()
	r.connected = append(r.connected, info)
	r.mu.Unlock()
}

func (r *recorder) ChatMessage(channel string, msg core.ChatMessage) {
	r.messages <- msg
}

func (r *recorder) ConnectionError(channel, reason string) {
	r.mu.Lock()
	r.errors = append(r.errors, reason)
	r.mu.Unlock()
}

func (r *recorder) EmotesLoaded(channel string, emotes []core.CatalogEmote) {
	r.mu.Lock()
	r.emotes = append(r.emotes, emotes)
	r.mu.Unlock()
}

// newTestManager wires a manager whose connections are fakes. The conns
// channel yields each constructed fake in order.
func newTestManager(sink Broadcaster, configure func(*fakeConn)) (*Manager, *atomic.Int64, chan *fakeConn) {
	var constructions atomic.Int64
	conns := make(chan *fakeConn, 16)

	m := New(Options{Sink: sink})
	m.newConn = func(channel string) upstream {
		constructions.Add(1)
		f := newFakeConn()
		if configure != nil {
			configure(f)
		}
		conns <- f
		return f
	}
	return m, &constructions, conns
}

func TestAcquireIsCaseInsensitive(t *testing.T) {
	m, constructions, _ := newTestManager(newRecorder(), nil)

	if err := m.Acquire(context.Background(), "FooBar"); err != nil {
		t.Fatalf("Acquire(FooBar) error = %v", err)
	}
	if err := m.Acquire(context.Background(), "foobar"); err != nil {
		t.Fatalf("Acquire(foobar) error = %v", err)
	}

	if constructions.Load() != 1 {
		t.Fatalf("constructions = %d, want 1", constructions.Load())
	}
	if got := m.Refs("FOOBAR"); got != 2 {
		t.Fatalf("Refs() = %d, want 2", got)
	}
}

func TestConcurrentAcquireBuildsOneConnection(t *testing.T) {
	m, constructions, _ := newTestManager(newRecorder(), func(f *fakeConn) {
		f.connectDelay = 50 * time.Millisecond
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Acquire(context.Background(), "foobar"); err != nil {
				t.Errorf("Acquire() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if constructions.Load() != 1 {
		t.Fatalf("constructions = %d, want 1", constructions.Load())
	}
	if got := m.Refs("foobar"); got != 10 {
		t.Fatalf("Refs() = %d, want 10", got)
	}
}

func TestReleaseToZeroTearsDownAndForgets(t *testing.T) {
	m, constructions, conns := newTestManager(newRecorder(), nil)

	if err := m.Acquire(context.Background(), "foobar"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	conn := <-conns

	m.Release("FooBar")

	if !conn.isClosed() {
		t.Fatalf("connection not closed after last release")
	}
	if got := m.Refs("foobar"); got != 0 {
		t.Fatalf("Refs() = %d, want 0", got)
	}

	// A fresh acquire must construct anew, not revive torn-down state.
	if err := m.Acquire(context.Background(), "foobar"); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if constructions.Load() != 2 {
		t.Fatalf("constructions = %d, want 2", constructions.Load())
	}
}

func TestReleaseWithRemainingRefsKeepsConnection(t *testing.T) {
	m, _, conns := newTestManager(newRecorder(), nil)

	m.Acquire(context.Background(), "foobar")
	m.Acquire(context.Background(), "foobar")
	conn := <-conns

	m.Release("foobar")
	if conn.isClosed() {
		t.Fatalf("connection closed with a subscriber remaining")
	}
}

func TestAcquireFailureRetainsNothing(t *testing.T) {
	m, constructions, _ := newTestManager(newRecorder(), func(f *fakeConn) {
		f.connectErr = context.DeadlineExceeded
	})

	if err := m.Acquire(context.Background(), "foobar"); err == nil {
		t.Fatalf("Acquire() succeeded, want error")
	}
	if got := m.Refs("foobar"); got != 0 {
		t.Fatalf("Refs() = %d after failed acquire", got)
	}

	// The failed attempt must not poison later acquires.
	m.Acquire(context.Background(), "foobar")
	if constructions.Load() != 2 {
		t.Fatalf("constructions = %d, want 2", constructions.Load())
	}
}

func TestHintTriggersSubscribe(t *testing.T) {
	m, _, conns := newTestManager(newRecorder(), nil)

	m.Acquire(context.Background(), "foobar")
	conn := <-conns

	m.Hint(context.Background(), "FooBar", discovery.Identifiers{
		Chatroom: discovery.Identifier{Value: "123"},
		Channel:  discovery.Identifier{Value: "456"},
	})

	subs := conn.subscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	if subs[0].Chatroom.Value != "123" || subs[0].Channel.Value != "456" {
		t.Fatalf("subscribed with %+v", subs[0])
	}
}

func TestJoinScenarioEndToEnd(t *testing.T) {
	badgeResolver := badges.NewResolver(nil)
	sink := newRecorder()

	m := New(Options{
		Sink:   sink,
		Badges: badgeResolver,
		Emotes: emotes.NewCatalog(nil),
		Chain:  discovery.NewChain(discovery.NewCache(), nil),
	})
	var conns []*fakeConn
	m.newConn = func(channel string) upstream {
		f := newFakeConn()
		conns = append(conns, f)
		return f
	}

	// Client joins with mixed case; exactly one connection for "foobar".
	if err := m.Acquire(context.Background(), "fooBar"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
	conn := conns[0]

	// Socket opens; the optimistic connected announcement carries
	// placeholder identifiers.
	conn.events <- kickws.Event{
		Type:    kickws.EventChannelConnected,
		Channel: "foobar",
		Info: core.ChannelInfo{
			ID:       "fallback",
			Slug:     "foobar",
			Chatroom: core.Chatroom{ID: "unknown", ChannelID: "unknown"},
		},
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.connected) == 1
	})
	sink.mu.Lock()
	if sink.connected[0].Chatroom.ID != "unknown" {
		t.Fatalf("optimistic info = %+v", sink.connected[0])
	}
	sink.mu.Unlock()

	// Client pushes badge data with the real identifiers and the channel's
	// custom badge set.
	badgeResolver.CacheFromClient("foobar", []core.SubscriberBadge{
		{ID: "1", Months: 6, URL: "https://cdn.example/6mo.png"},
	})
	m.Hint(context.Background(), "fooBar", discovery.Identifiers{
		Chatroom: discovery.Identifier{Value: "123"},
		Channel:  discovery.Identifier{Value: "456"},
	})
	if subs := conn.subscriptions(); len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}

	// An inbound chat event flows through enrichment to the broadcaster.
	conn.events <- kickws.Event{
		Type:    kickws.EventMessage,
		Channel: "foobar",
		Message: &kickws.RawMessage{
			Sender: kickws.RawSender{
				ID:       "9001",
				Username: "viewer1",
				Identity: core.Identity{
					Badges: []core.RawBadge{{Type: "subscriber", Text: "Subscriber", Count: 6}},
				},
			},
			Content:   "hello [emote:1:Kappa]",
			CreatedAt: "2024-05-01T12:00:00Z",
		},
	}

	select {
	case msg := <-sink.messages:
		if !strings.Contains(msg.Content, "https://files.kick.com/emotes/1/fullsize") {
			t.Fatalf("Content = %q, want inline emote rewritten", msg.Content)
		}
		if len(msg.Badges) != 1 || msg.Badges[0].Image != "https://cdn.example/6mo.png" {
			t.Fatalf("Badges = %+v, want cached 6-month custom badge", msg.Badges)
		}
		if msg.Username != "viewer1" {
			t.Fatalf("Username = %q", msg.Username)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("message never delivered")
	}
}

func TestHangingCosmeticsLookupDoesNotBlockDelivery(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cosmeticsResolver := cosmetics.NewResolver(server.Client(), true, 100*time.Millisecond)
	cosmeticsResolver.KickBase = server.URL

	sink := newRecorder()
	m := New(Options{Sink: sink, Cosmetics: cosmeticsResolver})
	var conn *fakeConn
	m.newConn = func(channel string) upstream {
		conn = newFakeConn()
		return conn
	}

	m.Acquire(context.Background(), "foobar")
	conn.events <- kickws.Event{
		Type:    kickws.EventMessage,
		Channel: "foobar",
		Message: &kickws.RawMessage{
			Sender:  kickws.RawSender{ID: "1", Username: "slowpoke"},
			Content: "hi",
		},
	}

	select {
	case msg := <-sink.messages:
		if msg.User.Cosmetics != nil {
			t.Fatalf("Cosmetics = %+v, want none on timeout", msg.User.Cosmetics)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message held hostage by cosmetics lookup")
	}
}

func TestInactiveConnectionReclaimed(t *testing.T) {
	sink := newRecorder()
	m, _, conns := newTestManager(sink, nil)

	m.Acquire(context.Background(), "foobar")
	conn := <-conns

	conn.events <- kickws.Event{Type: kickws.EventInactive, Channel: "foobar"}

	waitFor(t, func() bool { return conn.isClosed() })
	if got := m.Refs("foobar"); got != 0 {
		t.Fatalf("Refs() = %d after reclaim", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.errors) != 1 {
		t.Fatalf("errors = %v, want one inactivity report", sink.errors)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}
