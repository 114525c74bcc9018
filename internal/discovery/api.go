package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	kickAPIBase  = "https://kick.com/api/v2"
	kickPageBase = "https://kick.com"
)

// Source is one way of discovering a channel's identifiers. A source that
// cannot answer returns found=false with no error so the chain can fall
// through; errors are reserved for transport failures worth logging.
type Source interface {
	Name() string
	Lookup(ctx context.Context, channel string) (Identifiers, bool, error)
}

// ChannelEndpointSource asks the public channel API, which carries both
// ids plus badge data when it is not behind anti-bot protection.
type ChannelEndpointSource struct {
	HTTP *http.Client
}

func (s *ChannelEndpointSource) Name() string { return "channel-api" }

func (s *ChannelEndpointSource) Lookup(ctx context.Context, channel string) (Identifiers, bool, error) {
	endpoint := strings.TrimSuffix(kickAPIBase, "/") + "/channels/" + url.PathEscape(cacheKey(channel))
	body, status, err := fetch(ctx, s.HTTP, endpoint, channel)
	if err != nil {
		return Identifiers{}, false, err
	}
	// 403 is anti-bot, 404 is no such channel; neither is retryable here.
	if status != http.StatusOK {
		return Identifiers{}, false, nil
	}

	var parsed struct {
		ID       json.Number `json:"id"`
		Chatroom struct {
			ID json.Number `json:"id"`
		} `json:"chatroom"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Identifiers{}, false, fmt.Errorf("decode channel response: %w", err)
	}

	ids := Identifiers{
		Chatroom: Identifier{Value: nonZero(parsed.Chatroom.ID.String())},
		Channel:  Identifier{Value: nonZero(parsed.ID.String())},
	}
	return ids, ids.Chatroom.Known(), nil
}

// ChatroomEndpointSource asks the dedicated chatroom API, which is lighter
// but only yields the chatroom side of the pair.
type ChatroomEndpointSource struct {
	HTTP *http.Client
}

func (s *ChatroomEndpointSource) Name() string { return "chatroom-api" }

func (s *ChatroomEndpointSource) Lookup(ctx context.Context, channel string) (Identifiers, bool, error) {
	endpoint := strings.TrimSuffix(kickAPIBase, "/") + "/channels/" + url.PathEscape(cacheKey(channel)) + "/chatroom"
	body, status, err := fetch(ctx, s.HTTP, endpoint, channel)
	if err != nil {
		return Identifiers{}, false, err
	}
	if status != http.StatusOK {
		return Identifiers{}, false, nil
	}

	var parsed struct {
		ID        json.Number `json:"id"`
		ChannelID json.Number `json:"channel_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Identifiers{}, false, fmt.Errorf("decode chatroom response: %w", err)
	}

	ids := Identifiers{
		Chatroom: Identifier{Value: nonZero(parsed.ID.String())},
		Channel:  Identifier{Value: nonZero(parsed.ChannelID.String())},
	}
	return ids, ids.Chatroom.Known(), nil
}

// PageScrapeSource fetches the channel's HTML page and pattern-matches the
// chatroom id out of embedded state. Last resort before the browser.
type PageScrapeSource struct {
	HTTP *http.Client
}

func (s *PageScrapeSource) Name() string { return "page-scrape" }

func (s *PageScrapeSource) Lookup(ctx context.Context, channel string) (Identifiers, bool, error) {
	endpoint := strings.TrimSuffix(kickPageBase, "/") + "/" + url.PathEscape(cacheKey(channel))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identifiers{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := httpClientOr(s.HTTP).Do(req)
	if err != nil {
		return Identifiers{}, false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identifiers{}, false, nil
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Identifiers{}, false, fmt.Errorf("read page: %w", err)
	}

	id, ok := ExtractChatroomID(string(html))
	if !ok {
		return Identifiers{}, false, nil
	}
	return Identifiers{Chatroom: Identifier{Value: id}}, true, nil
}

func fetch(ctx context.Context, client *http.Client, endpoint, channel string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Referer", strings.TrimSuffix(kickPageBase, "/")+"/"+cacheKey(channel))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := httpClientOr(client).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func httpClientOr(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}

func nonZero(id string) string {
	if id == "0" {
		return ""
	}
	return id
}
