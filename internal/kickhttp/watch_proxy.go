package kickhttp

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchProxyFile reloads the outbound proxy URL whenever the given file
// changes. The file holds one URL (or nothing, to disable the proxy).
func (c *Client) WatchProxyFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("proxy watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if err := c.reloadProxyFrom(path); err != nil {
					slog.Error("proxy reload failed", "path", path, "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("proxy watch error", "err", err)
			}
		}
	}()
	return nil
}

func (c *Client) reloadProxyFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	proxyURL := strings.TrimSpace(string(raw))
	if err := c.SetProxy(proxyURL); err != nil {
		return err
	}
	if proxyURL == "" {
		slog.Info("proxy disabled via proxy file", "path", path)
	} else {
		slog.Info("proxy reloaded from file", "path", path)
	}
	return nil
}
