package manager

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/you/kick-relay/internal/badges"
	"github.com/you/kick-relay/internal/core"
	"github.com/you/kick-relay/internal/cosmetics"
	"github.com/you/kick-relay/internal/discovery"
	"github.com/you/kick-relay/internal/emotes"
	"github.com/you/kick-relay/internal/kickws"
)

// Broadcaster receives per-channel lifecycle and message emissions. The
// gateway is the production implementation; delivery faults are its
// problem, the manager never blocks on it.
type Broadcaster interface {
	ChannelConnected(channel string, info core.ChannelInfo)
	ChatMessage(channel string, msg core.ChatMessage)
	ConnectionError(channel, reason string)
	EmotesLoaded(channel string, emotes []core.CatalogEmote)
}

// upstream is the slice of kickws.Connection the manager drives, split
// out so tests can substitute a fake broker.
type upstream interface {
	Connect(ctx context.Context) error
	SubscribeWith(ctx context.Context, ids discovery.Identifiers) error
	Events() <-chan kickws.Event
	Done() <-chan struct{}
	Close()
}

// Manager owns the channel→connection map: one live upstream connection
// per channel regardless of how many downstream subscribers watch it.
type Manager struct {
	chain     *discovery.Chain
	badges    *badges.Resolver
	cosmetics *cosmetics.Resolver
	emotes    *emotes.Catalog
	sink      Broadcaster

	newConn func(channel string) upstream

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is one channel's connection plus its reference count. ready is
// closed when construction finishes, successfully or not; concurrent
// acquirers wait on it instead of constructing a second connection.
type entry struct {
	refs  int
	ready chan struct{}
	err   error
	conn  upstream
	stop  context.CancelFunc
}

type Options struct {
	Broker    kickws.Options
	Chain     *discovery.Chain
	Badges    *badges.Resolver
	Cosmetics *cosmetics.Resolver
	Emotes    *emotes.Catalog
	Sink      Broadcaster
}

func New(opts Options) *Manager {
	m := &Manager{
		chain:     opts.Chain,
		badges:    opts.Badges,
		cosmetics: opts.Cosmetics,
		emotes:    opts.Emotes,
		sink:      opts.Sink,
		entries:   map[string]*entry{},
	}
	m.newConn = func(channel string) upstream {
		return kickws.NewConnection(channel, opts.Broker)
	}
	return m
}

func foldChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// Acquire registers one more subscriber for a channel, constructing the
// upstream connection if none is live. Construction runs at most once per
// channel at a time; losers of the race wait for the winner's outcome.
func (m *Manager) Acquire(ctx context.Context, channel string) error {
	key := foldChannel(channel)
	if key == "" {
		return errEmptyChannel
	}

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.refs++
		m.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			m.Release(key)
			return ctx.Err()
		}
		if e.err != nil {
			// Construction failed while we waited; the winner already
			// removed the entry, drop our claim on it.
			m.mu.Lock()
			e.refs--
			m.mu.Unlock()
			return e.err
		}
		return nil
	}

	e := &entry{refs: 1, ready: make(chan struct{})}
	m.entries[key] = e
	m.mu.Unlock()

	return m.construct(ctx, key, e)
}

func (m *Manager) construct(ctx context.Context, key string, e *entry) error {
	conn := m.newConn(key)
	if err := conn.Connect(ctx); err != nil {
		conn.Close()
		m.mu.Lock()
		e.err = err
		delete(m.entries, key)
		m.mu.Unlock()
		close(e.ready)
		log.Printf("manager: connect %s failed: %v", key, err)
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	e.conn = conn
	e.stop = cancel
	m.mu.Unlock()
	close(e.ready)

	go m.pump(pumpCtx, key, conn)
	go m.discover(pumpCtx, key, conn)
	log.Printf("manager: channel %s connected", key)
	return nil
}

// discover resolves identifiers server-side, racing any hint the gateway
// may push; whichever lands first triggers the subscribe transition.
func (m *Manager) discover(ctx context.Context, key string, conn upstream) {
	if m.chain == nil {
		return
	}
	ids := m.chain.Resolve(ctx, key)
	if ctx.Err() != nil {
		return
	}
	if !ids.Chatroom.Known() {
		return
	}
	if err := conn.SubscribeWith(ctx, ids); err != nil && ctx.Err() == nil {
		log.Printf("manager: subscribe %s: %v", key, err)
	}
}

// Hint feeds client-supplied identifiers in and, when the channel has a
// pending connection, triggers its subscribe transition.
func (m *Manager) Hint(ctx context.Context, channel string, ids discovery.Identifiers) {
	key := foldChannel(channel)
	merged := ids
	if m.chain != nil {
		merged = m.chain.Hint(ctx, key, ids)
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok || e.conn == nil {
		return
	}
	if !merged.Chatroom.Known() {
		return
	}
	if err := e.conn.SubscribeWith(ctx, merged); err != nil {
		log.Printf("manager: subscribe %s on hint: %v", key, err)
	}
}

// Release drops one subscriber. At zero the connection is torn down and
// the channel forgotten; a later Acquire builds a fresh one.
func (m *Manager) Release(channel string) {
	key := foldChannel(channel)

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	m.mu.Unlock()

	m.teardown(key, e)
}

func (m *Manager) teardown(key string, e *entry) {
	if e.stop != nil {
		e.stop()
	}
	if e.conn != nil {
		e.conn.Close()
	}
	log.Printf("manager: channel %s released", key)
}

// reclaim force-removes a channel whose connection went inactive, however
// many subscribers are still attached. Their next join rebuilds it.
func (m *Manager) reclaim(key string) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	if ok {
		m.teardown(key, e)
	}
}

// Refs reports the subscriber count for a channel.
func (m *Manager) Refs(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[foldChannel(channel)]
	if !ok {
		return 0
	}
	return e.refs
}

// Shutdown tears down every live connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.entries
	m.entries = map[string]*entry{}
	m.mu.Unlock()

	for key, e := range entries {
		m.teardown(key, e)
	}
}
