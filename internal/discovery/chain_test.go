package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
)

type stubSource struct {
	name  string
	ids   Identifiers
	found bool
	err   error
	calls atomic.Int64
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(ctx context.Context, channel string) (Identifiers, bool, error) {
	s.calls.Add(1)
	return s.ids, s.found, s.err
}

func TestCacheMergeConfirmedBeatsGuess(t *testing.T) {
	c := NewCache()
	c.Merge("foo", Identifiers{Chatroom: Identifier{Value: "fallback_foo", Guessed: true}})
	got := c.Merge("foo", Identifiers{Chatroom: Identifier{Value: "123456"}})
	if got.Chatroom.Value != "123456" || got.Chatroom.Guessed {
		t.Fatalf("Merge() = %+v, want confirmed 123456", got.Chatroom)
	}

	got = c.Merge("foo", Identifiers{Chatroom: Identifier{Value: "fallback_foo", Guessed: true}})
	if got.Chatroom.Value != "123456" {
		t.Fatalf("Merge() = %+v, guess overwrote confirmed id", got.Chatroom)
	}
}

func TestCacheMergeKeepsPartialResults(t *testing.T) {
	c := NewCache()
	c.Merge("Foo", Identifiers{Chatroom: Identifier{Value: "123456"}})
	got := c.Merge("foo", Identifiers{Channel: Identifier{Value: "789"}})
	if got.Chatroom.Value != "123456" || got.Channel.Value != "789" {
		t.Fatalf("Merge() = %+v, want both halves kept", got)
	}
}

func TestChainFirstSourceWins(t *testing.T) {
	first := &stubSource{name: "first", ids: Identifiers{Chatroom: Identifier{Value: "111111"}}, found: true}
	second := &stubSource{name: "second", ids: Identifiers{Chatroom: Identifier{Value: "222222"}}, found: true}

	chain := NewChain(NewCache(), nil, first, second)
	got := chain.Resolve(context.Background(), "foo")

	if got.Chatroom.Value != "111111" {
		t.Fatalf("Resolve() = %+v, want first source's id", got)
	}
	if second.calls.Load() != 0 {
		t.Fatalf("second source consulted %d times", second.calls.Load())
	}
}

func TestChainFallsThroughToNextSource(t *testing.T) {
	miss := &stubSource{name: "miss"}
	hit := &stubSource{name: "hit", ids: Identifiers{Chatroom: Identifier{Value: "333333"}}, found: true}

	chain := NewChain(NewCache(), nil, miss, hit)
	got := chain.Resolve(context.Background(), "foo")

	if got.Chatroom.Value != "333333" {
		t.Fatalf("Resolve() = %+v", got)
	}
}

func TestChainFallbackIsTaggedGuess(t *testing.T) {
	chain := NewChain(NewCache(), nil, &stubSource{name: "miss"})
	got := chain.Resolve(context.Background(), "FooBar")

	if got.Chatroom.Value != "fallback_foobar" || !got.Chatroom.Guessed {
		t.Fatalf("Resolve() = %+v, want tagged fallback", got.Chatroom)
	}
}

func TestChainCachesConfirmedResult(t *testing.T) {
	src := &stubSource{name: "src", ids: Identifiers{Chatroom: Identifier{Value: "444444"}}, found: true}
	chain := NewChain(NewCache(), nil, src)

	chain.Resolve(context.Background(), "foo")
	chain.Resolve(context.Background(), "FOO")

	if src.calls.Load() != 1 {
		t.Fatalf("source consulted %d times, want 1", src.calls.Load())
	}
}

func TestChainHintShortCircuitsSources(t *testing.T) {
	src := &stubSource{name: "src", ids: Identifiers{Chatroom: Identifier{Value: "555555"}}, found: true}
	chain := NewChain(NewCache(), nil, src)

	chain.Hint(context.Background(), "foo", Identifiers{
		Chatroom: Identifier{Value: "999999"},
		Channel:  Identifier{Value: "111"},
	})
	got := chain.Resolve(context.Background(), "foo")

	if got.Chatroom.Value != "999999" || got.Channel.Value != "111" {
		t.Fatalf("Resolve() = %+v, want hinted ids", got)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("source consulted despite hint")
	}
}

func TestChannelEndpointSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/foobar" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id": 456, "slug": "foobar", "chatroom": {"id": 123456}}`))
	}))
	defer server.Close()

	old := kickAPIBase
	kickAPIBase = server.URL
	defer func() { kickAPIBase = old }()

	src := &ChannelEndpointSource{HTTP: server.Client()}
	ids, found, err := src.Lookup(context.Background(), "FooBar")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v, %v", ids, found, err)
	}
	if ids.Chatroom.Value != "123456" || ids.Channel.Value != "456" {
		t.Fatalf("Lookup() ids = %+v", ids)
	}
}

func TestChannelEndpointSourceBlockedFallsThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	old := kickAPIBase
	kickAPIBase = server.URL
	defer func() { kickAPIBase = old }()

	src := &ChannelEndpointSource{HTTP: server.Client()}
	_, found, err := src.Lookup(context.Background(), "foobar")
	if err != nil {
		t.Fatalf("Lookup() error = %v, want fall-through", err)
	}
	if found {
		t.Fatalf("Lookup() found = true on 403")
	}
}

func TestPageScrapeSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script>window.__STATE__ = {"chatroom": {"id": 246813}};</script></html>`))
	}))
	defer server.Close()

	old := kickPageBase
	kickPageBase = server.URL
	defer func() { kickPageBase = old }()

	src := &PageScrapeSource{HTTP: server.Client()}
	ids, found, err := src.Lookup(context.Background(), "foobar")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v, %v", ids, found, err)
	}
	if ids.Chatroom.Value != "246813" {
		t.Fatalf("Lookup() ids = %+v", ids)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "ids.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, ok, err := store.Load(ctx, "foo"); err != nil || ok {
		t.Fatalf("Load() before save = %v, %v", ok, err)
	}

	want := Identifiers{
		Chatroom: Identifier{Value: "123456"},
		Channel:  Identifier{Value: "456"},
	}
	if err := store.Save(ctx, "Foo", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := store.Load(ctx, "foo")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if got.Chatroom.Value != "123456" || got.Channel.Value != "456" {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestSQLiteStoreNeverPersistsGuesses(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "ids.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	guess := Identifiers{Chatroom: Identifier{Value: "fallback_foo", Guessed: true}}
	if err := store.Save(ctx, "foo", guess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok, _ := store.Load(ctx, "foo"); ok {
		t.Fatalf("guessed identifier was persisted")
	}
}
