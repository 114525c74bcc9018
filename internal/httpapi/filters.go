package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/kick-relay/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Filters captures the parsed query parameters for message lookups.
type Filters struct {
	Channels  []string
	Usernames []string
	Since     *time.Time
	Limit     int
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{Limit: defaultLimit}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if rawSince := values.Get("since"); rawSince != "" {
		parsed, err := parseSince(rawSince)
		if err != nil {
			return Filters{}, err
		}
		f.Since = &parsed
	}

	f.Channels = collectLowered(values, "channel")
	f.Usernames = collectLowered(values, "username")

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

func collectLowered(values url.Values, key string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if _, exists := seen[part]; !exists {
				out = append(out, part)
				seen[part] = struct{}{}
			}
		}
	}
	return out
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC(), nil
	}
	return time.Time{}, errors.New("invalid since parameter")
}

// Matches reports whether the provided message satisfies the filters.
func (f Filters) Matches(msg core.ChatMessage) bool {
	if len(f.Channels) > 0 {
		channel := strings.ToLower(msg.Channel)
		match := false
		for _, c := range f.Channels {
			if channel == c {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(f.Usernames) > 0 {
		username := strings.ToLower(msg.Username)
		match := false
		for _, u := range f.Usernames {
			if strings.Contains(username, u) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.Since != nil {
		if msg.Timestamp.Before(f.Since.UTC()) {
			return false
		}
	}

	return true
}

// CloneForStream returns a copy of the filters adjusted for streaming transports.
func (f Filters) CloneForStream() Filters {
	f.Limit = 0
	return f
}
