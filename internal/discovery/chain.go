package discovery

import (
	"context"
	"log"
)

// Store is the persistence behind the in-memory cache. SQLiteStore is the
// production implementation.
type Store interface {
	Load(ctx context.Context, channel string) (Identifiers, bool, error)
	Save(ctx context.Context, channel string, ids Identifiers) error
}

// Chain resolves channel identifiers: cache, then the persistent store,
// then each source in order, and finally a guessed placeholder so that a
// subscription attempt can proceed optimistically.
type Chain struct {
	Cache   *Cache
	Store   Store
	Sources []Source
}

func NewChain(cache *Cache, store Store, sources ...Source) *Chain {
	if cache == nil {
		cache = NewCache()
	}
	return &Chain{Cache: cache, Store: store, Sources: sources}
}

// Hint folds client-provided identifiers in ahead of any lookup. Hints are
// confirmed values: the client read them off the real channel API.
func (c *Chain) Hint(ctx context.Context, channel string, ids Identifiers) Identifiers {
	merged := c.Cache.Merge(channel, ids)
	if c.Store != nil {
		if err := c.Store.Save(ctx, channel, merged); err != nil {
			log.Printf("discovery: persist hint for %s: %v", channel, err)
		}
	}
	return merged
}

// Resolve returns the best identifiers it can get for a channel. The result
// always has a chatroom value; when every source fails it is a tagged guess
// that downstream code may subscribe with but must not persist.
func (c *Chain) Resolve(ctx context.Context, channel string) Identifiers {
	if ids, ok := c.Cache.Get(channel); ok && ids.Chatroom.Known() && !ids.Chatroom.Guessed {
		return ids
	}

	if c.Store != nil {
		ids, ok, err := c.Store.Load(ctx, channel)
		if err != nil {
			log.Printf("discovery: load %s from store: %v", channel, err)
		} else if ok && ids.Chatroom.Known() {
			return c.Cache.Merge(channel, ids)
		}
	}

	for _, src := range c.Sources {
		ids, found, err := src.Lookup(ctx, channel)
		if err != nil {
			log.Printf("discovery: source %s for %s: %v", src.Name(), channel, err)
			continue
		}
		if !found {
			continue
		}
		log.Printf("discovery: source %s resolved %s chatroom=%s channel_id=%s",
			src.Name(), channel, ids.Chatroom.Value, ids.Channel.Value)
		merged := c.Cache.Merge(channel, ids)
		if c.Store != nil {
			if err := c.Store.Save(ctx, channel, merged); err != nil {
				log.Printf("discovery: persist %s: %v", channel, err)
			}
		}
		return merged
	}

	log.Printf("discovery: all sources failed for %s, using placeholder", channel)
	return c.Cache.Merge(channel, Identifiers{
		Chatroom: Identifier{Value: "fallback_" + cacheKey(channel), Guessed: true},
	})
}
