package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/you/kick-relay/internal/core"
	"github.com/you/kick-relay/internal/kickws"
	"github.com/you/kick-relay/internal/relaytrace"
)

var errEmptyChannel = errors.New("manager: empty channel name")

// pump consumes one connection's event stream until teardown, running
// each chat event through the enrichment pipeline and handing the result
// to the broadcaster.
func (m *Manager) pump(ctx context.Context, key string, conn upstream) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.Events():
			m.handleEvent(ctx, key, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, key string, ev kickws.Event) {
	switch ev.Type {
	case kickws.EventChannelConnected:
		m.sink.ChannelConnected(key, ev.Info)
		go m.loadEmotes(ctx, key)

	case kickws.EventSubscribed:
		log.Printf("manager: channel %s live", key)

	case kickws.EventMessage:
		trace := relaytrace.NewTraceFromBrokerMessage(key, ev.Message.Sender.Username, snippet(ev.Message.Content))
		msg := m.transform(ctx, key, ev.Message)
		trace.IncCounter(relaytrace.StageNormalizedOK)
		if ctx.Err() != nil {
			// Torn down while enriching; the message must not escape.
			trace.IncCounter(relaytrace.StageDropped("teardown"))
			trace.LogTrace(nil, "message dropped during teardown")
			return
		}
		m.sink.ChatMessage(key, msg)
		trace.IncCounter(relaytrace.StageBroadcast)

	case kickws.EventError:
		reason := "upstream connection lost"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		m.sink.ConnectionError(key, reason)

	case kickws.EventInactive:
		m.sink.ConnectionError(key, "channel inactive, connection reclaimed")
		m.reclaim(key)
	}
}

func (m *Manager) loadEmotes(ctx context.Context, key string) {
	if m.emotes == nil {
		return
	}
	catalog := m.emotes.LoadChannel(ctx, key)
	if ctx.Err() != nil || len(catalog) == 0 {
		return
	}
	m.sink.EmotesLoaded(key, catalog)
}

// transform builds the normalized message: resolved badges, best-effort
// cosmetics, emote-rewritten content. Enrichment failures degrade the
// message, they never block it.
func (m *Manager) transform(ctx context.Context, channel string, raw *kickws.RawMessage) core.ChatMessage {
	msg := core.ChatMessage{
		ID:        fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), rand.Intn(10000)),
		Channel:   channel,
		Username:  raw.Sender.Username,
		Content:   raw.Content,
		Timestamp: parseTimestamp(raw.CreatedAt),
		User: core.ChatUser{
			ID:       raw.Sender.ID.String(),
			Username: raw.Sender.Username,
			Identity: raw.Sender.Identity,
		},
	}

	if m.badges != nil {
		msg.Badges = m.badges.Resolve(ctx, channel, raw.Sender.Identity.Badges)
	} else {
		msg.Badges = []core.Badge{}
	}

	if m.cosmetics != nil {
		msg.User.Cosmetics = m.cosmetics.Lookup(ctx, raw.Sender.Username)
	}

	if m.emotes != nil {
		msg.Content = m.emotes.Rewrite(channel, raw.Content)
	}

	msg.Emotes = make([]core.Emote, 0, len(raw.Emotes))
	for _, e := range raw.Emotes {
		msg.Emotes = append(msg.Emotes, core.Emote{
			ID:       e.ID.String(),
			Name:     e.Name,
			Source:   e.Source,
			Type:     "kick",
			Position: e.Position,
		})
	}
	return msg
}

func snippet(content string) string {
	if len(content) > 48 {
		return content[:48]
	}
	return content
}

func parseTimestamp(createdAt string) time.Time {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
