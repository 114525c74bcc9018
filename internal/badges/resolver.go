package badges

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/you/kick-relay/internal/core"
)

var kickAPIBase = "https://kick.com/api/v2"

// Resolver maps subscriber-month counts to a channel's custom badge images.
// Channel badge sets are loaded once per channel (or pushed from clients)
// and month lookups are cached, including misses.
type Resolver struct {
	HTTP *http.Client

	mu         sync.Mutex
	channelSet map[string][]core.SubscriberBadge // sorted by months ascending
	loaded     map[string]bool                   // channel attempted, even if empty
	monthCache map[string]monthResult            // "<channel>/<months>"
}

type monthResult struct {
	url string
	ok  bool
}

func NewResolver(httpClient *http.Client) *Resolver {
	return &Resolver{
		HTTP:       httpClient,
		channelSet: map[string][]core.SubscriberBadge{},
		loaded:     map[string]bool{},
		monthCache: map[string]monthResult{},
	}
}

// Resolve converts the raw badges on a sender identity into displayable
// badges. Subscriber badges with a month count consult the channel's custom
// set; everything else maps to the builtin table. No network calls happen
// here beyond the one-time channel set load.
func (r *Resolver) Resolve(ctx context.Context, channel string, raw []core.RawBadge) []core.Badge {
	out := make([]core.Badge, 0, len(raw))
	for _, b := range raw {
		badge := core.Badge{
			Type:  b.Type,
			Image: builtinBadgeImage(b.Type),
			Alt:   b.Text,
			Count: b.Count,
		}
		if badge.Alt == "" {
			badge.Alt = b.Type
		}
		if b.Type == "subscriber" && b.Count > 0 {
			if custom, ok := r.customBadgeURL(ctx, channel, b.Count); ok {
				badge.Image = custom
				badge.IsCustom = true
			}
		}
		out = append(out, badge)
	}
	return out
}

func (r *Resolver) customBadgeURL(ctx context.Context, channel string, months int) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(channel)) + "/" + strconv.Itoa(months)

	r.mu.Lock()
	if res, ok := r.monthCache[key]; ok {
		r.mu.Unlock()
		return res.url, res.ok
	}
	r.mu.Unlock()

	set := r.badgeSet(ctx, channel)

	// Highest threshold not exceeding the subscriber's month count wins.
	resolved := monthResult{}
	for _, sb := range set {
		if sb.Months <= months && sb.URL != "" {
			resolved = monthResult{url: sb.URL, ok: true}
		}
	}

	r.mu.Lock()
	r.monthCache[key] = resolved
	r.mu.Unlock()
	return resolved.url, resolved.ok
}

// CacheFromClient stores a badge set pushed by a downstream client, which
// may have fetched it past anti-bot protection the server cannot clear.
func (r *Resolver) CacheFromClient(channel string, set []core.SubscriberBadge) {
	key := strings.ToLower(strings.TrimSpace(channel))
	if key == "" {
		return
	}
	sorted := append([]core.SubscriberBadge(nil), set...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Months < sorted[j].Months })

	r.mu.Lock()
	r.channelSet[key] = sorted
	r.loaded[key] = true
	// Month lookups may have cached misses before the set arrived.
	for k := range r.monthCache {
		if strings.HasPrefix(k, key+"/") {
			delete(r.monthCache, k)
		}
	}
	r.mu.Unlock()
	log.Printf("badges: cached %d subscriber badges for channel=%s", len(sorted), key)
}

func (r *Resolver) badgeSet(ctx context.Context, channel string) []core.SubscriberBadge {
	key := strings.ToLower(strings.TrimSpace(channel))

	r.mu.Lock()
	if r.loaded[key] {
		set := r.channelSet[key]
		r.mu.Unlock()
		return set
	}
	r.mu.Unlock()

	set, err := r.fetchChannelBadges(ctx, key)
	if err != nil {
		log.Printf("badges: load channel %s: %v", key, err)
		// Negative outcome is cached too; a later client push can replace it.
		set = nil
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Months < set[j].Months })

	r.mu.Lock()
	r.channelSet[key] = set
	r.loaded[key] = true
	r.mu.Unlock()
	return set
}

type channelBadgesResponse struct {
	SubscriberBadges []struct {
		ID         json.Number `json:"id"`
		Months     int         `json:"months"`
		BadgeImage struct {
			Src string `json:"src"`
		} `json:"badge_image"`
	} `json:"subscriber_badges"`
}

func (r *Resolver) fetchChannelBadges(ctx context.Context, channel string) ([]core.SubscriberBadge, error) {
	endpoint := strings.TrimSuffix(kickAPIBase, "/") + "/channels/" + url.PathEscape(channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Referer", "https://kick.com/"+channel)

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed channelBadgesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	set := make([]core.SubscriberBadge, 0, len(parsed.SubscriberBadges))
	for _, sb := range parsed.SubscriberBadges {
		if sb.BadgeImage.Src == "" {
			continue
		}
		set = append(set, core.SubscriberBadge{
			ID:     sb.ID.String(),
			Months: sb.Months,
			URL:    sb.BadgeImage.Src,
		})
	}
	return set, nil
}

func (r *Resolver) httpClient() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

// ClearChannel drops a channel's cached badge set and month lookups.
func (r *Resolver) ClearChannel(channel string) {
	key := strings.ToLower(strings.TrimSpace(channel))
	r.mu.Lock()
	delete(r.channelSet, key)
	delete(r.loaded, key)
	for k := range r.monthCache {
		if strings.HasPrefix(k, key+"/") {
			delete(r.monthCache, k)
		}
	}
	r.mu.Unlock()
}
