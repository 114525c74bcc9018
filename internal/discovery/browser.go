package discovery

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Browser drives a real headless Chrome session against the channel page.
// Requests made from inside the page carry the site's own cookies and TLS
// fingerprint, which gets past the anti-bot wall that blocks plain HTTP.
// The instance is shared and lazily launched; Close releases it.
type Browser struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func NewBrowser() *Browser { return &Browser{} }

func (b *Browser) ensure() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	log.Printf("discovery: headless browser launched")
	b.launcher = l
	b.browser = browser
	return browser, nil
}

// ChatroomID resolves a channel's chatroom id by loading the channel page
// and calling the chatroom API from inside it, falling back to scraping
// the rendered markup.
func (b *Browser) ChatroomID(ctx context.Context, channel string) (string, error) {
	browser, err := b.ensure()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	slug := cacheKey(channel)
	if err := page.Navigate("https://kick.com/" + url.PathEscape(slug)); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	// Let the page's own API traffic settle.
	if err := page.WaitIdle(10 * time.Second); err != nil {
		log.Printf("discovery: browser wait idle for %s: %v", slug, err)
	}

	const fetchChatroom = `async (channel) => {
		try {
			const resp = await fetch("https://kick.com/api/v2/channels/" + channel + "/chatroom");
			if (resp.ok) {
				const data = await resp.json();
				if (data && data.id) { return String(data.id); }
			}
		} catch (e) {}
		return "";
	}`
	if obj, err := page.Eval(fetchChatroom, slug); err == nil {
		if id := strings.TrimSpace(obj.Value.Str()); id != "" {
			return id, nil
		}
	} else {
		log.Printf("discovery: in-page chatroom fetch for %s: %v", slug, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	if id, ok := ExtractChatroomID(html); ok {
		return id, nil
	}
	return "", nil
}

// Close shuts the shared browser down. Safe to call without a prior launch.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			log.Printf("discovery: close browser: %v", err)
		}
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
}

// PageResolver is what BrowserSource needs from Browser, split out so tests
// can substitute a fake.
type PageResolver interface {
	ChatroomID(ctx context.Context, channel string) (string, error)
}

// BrowserSource adapts the headless browser into the discovery chain.
type BrowserSource struct {
	Resolver PageResolver
}

func (s *BrowserSource) Name() string { return "browser" }

func (s *BrowserSource) Lookup(ctx context.Context, channel string) (Identifiers, bool, error) {
	id, err := s.Resolver.ChatroomID(ctx, channel)
	if err != nil {
		return Identifiers{}, false, err
	}
	if id == "" {
		return Identifiers{}, false, nil
	}
	return Identifiers{Chatroom: Identifier{Value: id}}, true, nil
}
