package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Listen    ListenConfig
	Pusher    PusherConfig
	HTTP      HTTPConfig
	SevenTV   SevenTVConfig
	Discovery DiscoveryConfig
	History   HistoryConfig
}

type ListenConfig struct {
	Addr string
}

type PusherConfig struct {
	AppKey  string
	Cluster string
	Host    string
}

type HTTPConfig struct {
	ProxyURL  string
	ProxyFile string
	TimeoutMS int
	PaceRPS   float64
}

type SevenTVConfig struct {
	Enabled         bool
	CosmeticsBudget time.Duration
}

type DiscoveryConfig struct {
	CachePath      string
	BrowserEnabled bool
	IdleTimeoutSec int
}

type HistoryConfig struct {
	Size int
}

const (
	defaultAddr        = ":3001"
	defaultAppKey      = "32cbd69e4b950bf97679"
	defaultCluster     = "us2"
	defaultHost        = "pusher.com"
	defaultTimeoutMS   = 15000
	defaultPaceRPS     = 2.0
	defaultBudgetMS    = 2500
	defaultIdleSec     = 90
	defaultHistorySize = 200
)

func Load() Config {
	cfg := Config{}

	cfg.Listen.Addr = strings.TrimSpace(os.Getenv("RELAY_ADDR"))
	if cfg.Listen.Addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.Listen.Addr = ":" + port
		} else {
			cfg.Listen.Addr = defaultAddr
		}
	}

	cfg.Pusher.AppKey = readString("RELAY_PUSHER_APP_KEY", defaultAppKey)
	cfg.Pusher.Cluster = readString("RELAY_PUSHER_CLUSTER", defaultCluster)
	cfg.Pusher.Host = readString("RELAY_PUSHER_HOST", defaultHost)

	cfg.HTTP.ProxyURL = strings.TrimSpace(os.Getenv("RELAY_PROXY_URL"))
	if cfg.HTTP.ProxyURL == "" {
		cfg.HTTP.ProxyURL = strings.TrimSpace(os.Getenv("PROXY_URL"))
	}
	cfg.HTTP.ProxyFile = strings.TrimSpace(os.Getenv("RELAY_PROXY_FILE"))
	cfg.HTTP.TimeoutMS = readInt("RELAY_HTTP_TIMEOUT_MS", defaultTimeoutMS)
	cfg.HTTP.PaceRPS = readFloat("RELAY_HTTP_PACE_RPS", defaultPaceRPS)

	cfg.SevenTV.Enabled = readBoolDefaultTrue("RELAY_SEVENTV_ENABLED", true)
	if !envExists("RELAY_SEVENTV_ENABLED") {
		cfg.SevenTV.Enabled = readBoolDefaultTrue("SEVENTV_ENABLED", cfg.SevenTV.Enabled)
	}
	cfg.SevenTV.CosmeticsBudget = time.Duration(readInt("RELAY_COSMETICS_BUDGET_MS", defaultBudgetMS)) * time.Millisecond

	cfg.Discovery.CachePath = strings.TrimSpace(os.Getenv("RELAY_IDENT_CACHE_PATH"))
	cfg.Discovery.BrowserEnabled = readBool("RELAY_BROWSER_ENABLED", false)
	cfg.Discovery.IdleTimeoutSec = readInt("RELAY_IDLE_TIMEOUT", defaultIdleSec)

	cfg.History.Size = readInt("RELAY_HISTORY_SIZE", defaultHistorySize)

	return cfg
}

func (c Config) HTTPTimeout() time.Duration {
	if c.HTTP.TimeoutMS <= 0 {
		return time.Duration(defaultTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.HTTP.TimeoutMS) * time.Millisecond
}

func (c Config) IdleTimeout() time.Duration {
	if c.Discovery.IdleTimeoutSec <= 0 {
		return time.Duration(defaultIdleSec) * time.Second
	}
	return time.Duration(c.Discovery.IdleTimeoutSec) * time.Second
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"listen": map[string]any{
			"addr": c.Listen.Addr,
		},
		"pusher": map[string]any{
			"app_key": c.Pusher.AppKey,
			"cluster": c.Pusher.Cluster,
			"host":    c.Pusher.Host,
		},
		"http": map[string]any{
			"proxy_url":  redactString(c.HTTP.ProxyURL),
			"proxy_file": c.HTTP.ProxyFile,
			"timeout_ms": c.HTTP.TimeoutMS,
			"pace_rps":   c.HTTP.PaceRPS,
		},
		"seventv": map[string]any{
			"enabled":             c.SevenTV.Enabled,
			"cosmetics_budget_ms": int(c.SevenTV.CosmeticsBudget / time.Millisecond),
		},
		"discovery": map[string]any{
			"cache_path":       c.Discovery.CachePath,
			"browser_enabled":  c.Discovery.BrowserEnabled,
			"idle_timeout_sec": c.Discovery.IdleTimeoutSec,
		},
		"history": map[string]any{
			"size": c.History.Size,
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func readString(name, def string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	return raw
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readFloat(name string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func readBoolDefaultTrue(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envExists(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
