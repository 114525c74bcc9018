package cosmetics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/you/kick-relay/internal/core"
)

var (
	sevenTVAPIBase = "https://7tv.io/v3"
	sevenTVGQLURL  = "https://7tv.io/v3/gql"
	kickAPIBase    = "https://kick.com/api/v2"
)

const paintsQuery = `
query GetPaints {
  cosmetics {
    paints {
      id
      name
      color
      function
      stops {
        at
        color
      }
    }
  }
}
`

// Resolver looks up 7TV paint and role cosmetics for chat users. Every
// outcome is cached per username, including "this user has none", so a
// user costs at most one lookup chain per process lifetime.
type Resolver struct {
	HTTP    *http.Client
	Enabled bool
	Budget  time.Duration

	// Endpoint overrides; empty means the public defaults.
	KickBase    string
	SevenTVBase string
	GQLEndpoint string

	mu     sync.Mutex
	cache  map[string]*core.Cosmetics // nil value means confirmed absent
	paints map[string]*core.Paint
	// The paint table is one global GraphQL document; fetch it once.
	paintsLoaded bool
}

func NewResolver(httpClient *http.Client, enabled bool, budget time.Duration) *Resolver {
	if budget <= 0 {
		budget = 2500 * time.Millisecond
	}
	return &Resolver{
		HTTP:    httpClient,
		Enabled: enabled,
		Budget:  budget,
		cache:   map[string]*core.Cosmetics{},
		paints:  map[string]*core.Paint{},
	}
}

// Lookup returns a user's cosmetics, or nil when the user has none or the
// lookup cannot finish inside the budget. The budget bounds the whole
// chain so message delivery is never held up by a slow cosmetics fetch.
func (r *Resolver) Lookup(ctx context.Context, username string) *core.Cosmetics {
	if !r.Enabled {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(username))
	if key == "" {
		return nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.Budget)
	defer cancel()

	cosmetics, err := r.fetch(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			// Budget exhausted; do not cache, a later message retries.
			log.Printf("cosmetics: lookup for %s exceeded budget", key)
			return nil
		}
		log.Printf("cosmetics: lookup for %s: %v", key, err)
		return nil
	}

	r.mu.Lock()
	r.cache[key] = cosmetics
	r.mu.Unlock()
	return cosmetics
}

func (r *Resolver) fetch(ctx context.Context, username string) (*core.Cosmetics, error) {
	kickUserID, err := r.kickUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	if kickUserID == "" {
		// Kick refused or does not know the user; confirmed absent.
		return nil, nil
	}

	endpoint := r.sevenTVBase() + "/users/kick/" + url.PathEscape(kickUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No 7TV account linked; cache the absence.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed struct {
		User struct {
			ID    string `json:"id"`
			Style struct {
				Color   int64  `json:"color"`
				PaintID string `json:"paint_id"`
				BadgeID string `json:"badge_id"`
			} `json:"style"`
		} `json:"user"`
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c := &core.Cosmetics{
		UserID:   parsed.User.ID,
		Username: username,
		PaintID:  parsed.User.Style.PaintID,
		BadgeID:  parsed.User.Style.BadgeID,
		Roles:    parsed.Roles,
	}
	if parsed.User.Style.Color != 0 {
		c.Color = colorNumberToHex(parsed.User.Style.Color)
	}
	if c.PaintID != "" {
		if paint, err := r.paint(ctx, c.PaintID); err != nil {
			log.Printf("cosmetics: paint %s for %s: %v", c.PaintID, username, err)
		} else {
			c.Paint = paint
		}
	}
	return c, nil
}

func (r *Resolver) kickUserID(ctx context.Context, username string) (string, error) {
	endpoint := strings.TrimSuffix(r.kickBase(), "/") + "/channels/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Referer", "https://kick.com/")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	// 403 means anti-bot blocked us and 404 means no such channel; both
	// are a clean "no id", not an error worth retrying per message.
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kick status %d", resp.StatusCode)
	}

	var parsed struct {
		UserID json.Number `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode kick response: %w", err)
	}
	id := parsed.UserID.String()
	if id == "0" {
		id = ""
	}
	return id, nil
}

// paint resolves a paint id against the global paint table, loading the
// table on first use via the 7TV GraphQL endpoint.
func (r *Resolver) paint(ctx context.Context, paintID string) (*core.Paint, error) {
	r.mu.Lock()
	if r.paintsLoaded {
		p := r.paints[paintID]
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	body, err := json.Marshal(map[string]string{"query": paintsQuery})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.gqlEndpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gql status %d", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			Cosmetics struct {
				Paints []core.Paint `json:"paints"`
			} `json:"cosmetics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode gql response: %w", err)
	}

	r.mu.Lock()
	for i := range parsed.Data.Cosmetics.Paints {
		p := parsed.Data.Cosmetics.Paints[i]
		r.paints[p.ID] = &p
	}
	r.paintsLoaded = true
	p := r.paints[paintID]
	r.mu.Unlock()

	log.Printf("cosmetics: loaded %d paints", len(parsed.Data.Cosmetics.Paints))
	return p, nil
}

// colorNumberToHex converts a 7TV 32-bit color to a #rrggbb string by
// dropping the high alpha byte.
func colorNumberToHex(color int64) string {
	return fmt.Sprintf("#%06x", uint32(color)&0xFFFFFF)
}

func (r *Resolver) kickBase() string {
	if r.KickBase != "" {
		return r.KickBase
	}
	return kickAPIBase
}

func (r *Resolver) sevenTVBase() string {
	if r.SevenTVBase != "" {
		return r.SevenTVBase
	}
	return sevenTVAPIBase
}

func (r *Resolver) gqlEndpoint() string {
	if r.GQLEndpoint != "" {
		return r.GQLEndpoint
	}
	return sevenTVGQLURL
}

func (r *Resolver) httpClient() *http.Client {
	if r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

// ClearCache drops all cached cosmetics, including cached absences.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = map[string]*core.Cosmetics{}
	r.mu.Unlock()
}
