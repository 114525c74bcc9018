package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/you/kick-relay/internal/core"
)

var (
	sevenTVAPIBase = "https://7tv.io/v3"
	kickAPIBase    = "https://kick.com/api/v2"
)

// Catalog loads and caches 7TV emote sets and rewrites message content.
// The global set loads once per process; channel sets load once per channel
// and stay cached until explicitly cleared.
type Catalog struct {
	HTTP *http.Client

	mu           sync.Mutex
	global       []core.CatalogEmote
	globalLoaded bool
	channel      map[string][]core.CatalogEmote
	chanLoaded   map[string]bool
	kickUserID   map[string]string
	namePattern  map[string]*regexp.Regexp
}

func NewCatalog(httpClient *http.Client) *Catalog {
	return &Catalog{
		HTTP:        httpClient,
		channel:     map[string][]core.CatalogEmote{},
		chanLoaded:  map[string]bool{},
		kickUserID:  map[string]string{},
		namePattern: map[string]*regexp.Regexp{},
	}
}

// LoadChannel returns the combined global+channel emote list for a channel,
// fetching whatever is not yet cached. A channel without a 7TV set is a
// valid, cached outcome.
func (c *Catalog) LoadChannel(ctx context.Context, channelName string) []core.CatalogEmote {
	key := strings.ToLower(strings.TrimSpace(channelName))

	c.loadGlobal(ctx)
	channelEmotes := c.loadChannelSet(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.CatalogEmote, 0, len(c.global)+len(channelEmotes))
	out = append(out, c.global...)
	out = append(out, channelEmotes...)
	return out
}

func (c *Catalog) loadGlobal(ctx context.Context) {
	c.mu.Lock()
	if c.globalLoaded {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	emotes, err := c.fetchEmoteSet(ctx, sevenTVAPIBase+"/emote-sets/global", "global")
	if err != nil {
		log.Printf("emotes: load global set: %v", err)
		// Not marked loaded; the next demand retries.
		return
	}

	c.mu.Lock()
	c.global = emotes
	c.globalLoaded = true
	c.mu.Unlock()
	log.Printf("emotes: loaded %d global emotes", len(emotes))
}

func (c *Catalog) loadChannelSet(ctx context.Context, key string) []core.CatalogEmote {
	c.mu.Lock()
	if c.chanLoaded[key] {
		set := c.channel[key]
		c.mu.Unlock()
		return set
	}
	c.mu.Unlock()

	set := c.fetchChannelSet(ctx, key)

	c.mu.Lock()
	c.channel[key] = set
	c.chanLoaded[key] = true
	c.mu.Unlock()
	return set
}

func (c *Catalog) fetchChannelSet(ctx context.Context, channel string) []core.CatalogEmote {
	userID, err := c.lookupKickUserID(ctx, channel)
	if err != nil {
		log.Printf("emotes: kick user id for %s: %v", channel, err)
		return nil
	}
	if userID == "" {
		return nil
	}

	emotes, err := c.fetchEmoteSet(ctx, sevenTVAPIBase+"/users/kick/"+url.PathEscape(userID), "channel")
	if err != nil {
		log.Printf("emotes: channel set for %s: %v", channel, err)
		return nil
	}
	log.Printf("emotes: loaded %d channel emotes for %s", len(emotes), channel)
	return emotes
}

type emoteSetPayload struct {
	Emotes   []emoteEntry `json:"emotes"`
	EmoteSet *struct {
		Emotes []emoteEntry `json:"emotes"`
	} `json:"emote_set"`
}

type emoteEntry struct {
	Name string `json:"name"`
	Data struct {
		Animated bool `json:"animated"`
		Host     struct {
			URL string `json:"url"`
		} `json:"host"`
	} `json:"data"`
}

func (c *Catalog) fetchEmoteSet(ctx context.Context, endpoint, scope string) ([]core.CatalogEmote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Channel not linked to 7TV; an empty set is the answer.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed emoteSetPayload
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	entries := parsed.Emotes
	if parsed.EmoteSet != nil {
		entries = parsed.EmoteSet.Emotes
	}

	out := make([]core.CatalogEmote, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Data.Host.URL == "" {
			continue
		}
		out = append(out, core.CatalogEmote{
			Name:     e.Name,
			URL:      buildEmoteURL(e.Data.Host.URL, e.Data.Animated),
			Type:     scope,
			Animated: e.Data.Animated,
		})
	}
	return out, nil
}

func (c *Catalog) lookupKickUserID(ctx context.Context, channel string) (string, error) {
	c.mu.Lock()
	if id, ok := c.kickUserID[channel]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	endpoint := strings.TrimSuffix(kickAPIBase, "/") + "/channels/" + url.PathEscape(channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		UserID json.Number `json:"user_id"`
		User   struct {
			ID json.Number `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	id := parsed.UserID.String()
	if id == "" || id == "0" {
		id = parsed.User.ID.String()
	}
	if id == "0" {
		id = ""
	}

	c.mu.Lock()
	c.kickUserID[channel] = id
	c.mu.Unlock()
	return id, nil
}

func buildEmoteURL(hostURL string, animated bool) string {
	base := hostURL
	if strings.HasPrefix(base, "//") {
		base = "https:" + base
	}
	if animated {
		return base + "/1x.gif"
	}
	return base + "/1x.webp"
}

func (c *Catalog) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// ClearChannel drops one channel's cached set; ClearAll resets everything
// including the global set.
func (c *Catalog) ClearChannel(channel string) {
	key := strings.ToLower(strings.TrimSpace(channel))
	c.mu.Lock()
	delete(c.channel, key)
	delete(c.chanLoaded, key)
	delete(c.kickUserID, key)
	c.mu.Unlock()
}

func (c *Catalog) ClearAll() {
	c.mu.Lock()
	c.global = nil
	c.globalLoaded = false
	c.channel = map[string][]core.CatalogEmote{}
	c.chanLoaded = map[string]bool{}
	c.kickUserID = map[string]string{}
	c.mu.Unlock()
}
