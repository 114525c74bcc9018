package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/you/kick-relay/internal/badges"
	"github.com/you/kick-relay/internal/config"
	"github.com/you/kick-relay/internal/cosmetics"
	"github.com/you/kick-relay/internal/discovery"
	"github.com/you/kick-relay/internal/emotes"
	"github.com/you/kick-relay/internal/gateway"
	"github.com/you/kick-relay/internal/httpapi"
	"github.com/you/kick-relay/internal/kickhttp"
	"github.com/you/kick-relay/internal/kickws"
	"github.com/you/kick-relay/internal/manager"
)

// Overridden at build time via -ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildTime    = ""
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag bool
		addr        string
		corsOrigins string
		rateRPS     int
		rateBurst   int
		identCache  string
		browser     bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (e.g., :3001)")
	flag.StringVar(&corsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&rateRPS, "http-rate-rps", 20, "Maximum HTTP requests per second per client")
	flag.IntVar(&rateBurst, "http-rate-burst", 40, "Burst size for HTTP rate limiter")
	flag.StringVar(&identCache, "ident-cache", "", "Path to the SQLite identifier cache")
	flag.BoolVar(&browser, "browser", false, "Enable the headless browser discovery fallback")
	flag.Parse()

	if versionFlag {
		fmt.Printf("relay version: %s (commit %s, built %s)\n", buildVersion, buildCommit, buildTime)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["addr"] {
		cfg.Listen.Addr = strings.TrimSpace(addr)
	}
	if overrides["ident-cache"] {
		cfg.Discovery.CachePath = strings.TrimSpace(identCache)
	}
	if overrides["browser"] {
		cfg.Discovery.BrowserEnabled = browser
	}

	log.Printf("%s", cfg.RedactedJSON())

	httpClient, err := kickhttp.New(kickhttp.Options{
		ProxyURL: cfg.HTTP.ProxyURL,
		Timeout:  cfg.HTTPTimeout(),
		PaceRPS:  cfg.HTTP.PaceRPS,
	})
	if err != nil {
		log.Fatalf("relay: http client: %v", err)
	}
	if cfg.HTTP.ProxyFile != "" {
		if err := httpClient.WatchProxyFile(cfg.HTTP.ProxyFile); err != nil {
			log.Printf("relay: proxy file watch: %v", err)
		}
	}

	badgeResolver := badges.NewResolver(httpClient.HTTPClient())
	emoteCatalog := emotes.NewCatalog(httpClient.HTTPClient())
	cosmeticsResolver := cosmetics.NewResolver(
		httpClient.HTTPClient(),
		cfg.SevenTV.Enabled,
		cfg.SevenTV.CosmeticsBudget,
	)

	var store discovery.Store
	if cfg.Discovery.CachePath != "" {
		sqlStore, err := discovery.OpenSQLiteStore(cfg.Discovery.CachePath)
		if err != nil {
			log.Fatalf("relay: open identifier cache: %v", err)
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				log.Printf("relay: closing identifier cache: %v", err)
			}
		}()
		store = sqlStore
	}

	sources := []discovery.Source{
		&discovery.ChannelEndpointSource{HTTP: httpClient.HTTPClient()},
		&discovery.ChatroomEndpointSource{HTTP: httpClient.HTTPClient()},
		&discovery.PageScrapeSource{HTTP: httpClient.HTTPClient()},
	}
	var headless *discovery.Browser
	if cfg.Discovery.BrowserEnabled {
		headless = discovery.NewBrowser()
		sources = append(sources, &discovery.BrowserSource{Resolver: headless})
		log.Printf("relay: headless browser discovery enabled")
	}
	chain := discovery.NewChain(discovery.NewCache(), store, sources...)

	hub := gateway.NewHub(nil, badgeResolver, nil)
	mgr := manager.New(manager.Options{
		Broker: kickws.Options{
			AppKey:      cfg.Pusher.AppKey,
			Cluster:     cfg.Pusher.Cluster,
			Host:        cfg.Pusher.Host,
			HTTPClient:  httpClient.HTTPClient(),
			IdleTimeout: cfg.IdleTimeout(),
		},
		Chain:     chain,
		Badges:    badgeResolver,
		Cosmetics: cosmeticsResolver,
		Emotes:    emoteCatalog,
		Sink:      hub,
	})
	hub.Manager = mgr

	build := httpapi.BuildInfo{Version: buildVersion, Revision: buildCommit}
	if buildTime != "" {
		if t, err := time.Parse(time.RFC3339, buildTime); err == nil {
			build.BuiltAt = t
		}
	}

	api := httpapi.New(
		httpapi.NewHistory(cfg.History.Size),
		http.HandlerFunc(hub.ServeWS),
		httpapi.Options{
			Addr:           cfg.Listen.Addr,
			RateLimitRPS:   rateRPS,
			RateLimitBurst: rateBurst,
			AllowedOrigins: splitOrigins(corsOrigins),
			WSClientCount:  gateway.ClientCount,
			Build:          build,
		},
	)
	hub.History = api

	go func() {
		if err := api.Start(); err != nil {
			log.Fatalf("relay: http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("relay: received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("relay: http shutdown: %v", err)
	}
	mgr.Shutdown()
	if headless != nil {
		headless.Close()
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if o := strings.TrimSpace(origin); o != "" {
			out = append(out, o)
		}
	}
	return out
}
