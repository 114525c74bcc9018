package discovery

import (
	"strings"
	"sync"
)

// Identifier is a discovered numeric id, tagged when it is a guess rather
// than a confirmed value. Guessed ids are good enough to attempt a
// subscription with but must never displace a confirmed id.
type Identifier struct {
	Value   string
	Guessed bool
}

func (i Identifier) Known() bool { return i.Value != "" }

// Identifiers is the pair of upstream ids a channel subscription needs.
type Identifiers struct {
	Chatroom Identifier
	Channel  Identifier
}

// Complete reports whether both ids are confirmed.
func (ids Identifiers) Complete() bool {
	return ids.Chatroom.Known() && !ids.Chatroom.Guessed &&
		ids.Channel.Known() && !ids.Channel.Guessed
}

// Cache holds per-channel identifiers in memory. Partial results are kept
// as they arrive: a client hint may carry only the chatroom id, a later
// API result fills in the channel id.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Identifiers
}

func NewCache() *Cache {
	return &Cache{entries: map[string]Identifiers{}}
}

func cacheKey(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

func (c *Cache) Get(channel string) (Identifiers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.entries[cacheKey(channel)]
	return ids, ok
}

// Merge folds new identifiers into the cached entry. A confirmed value
// always wins over a guess; a guess never overwrites anything known.
func (c *Cache) Merge(channel string, update Identifiers) Identifiers {
	key := cacheKey(channel)
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.entries[key]
	cur.Chatroom = mergeIdentifier(cur.Chatroom, update.Chatroom)
	cur.Channel = mergeIdentifier(cur.Channel, update.Channel)
	c.entries[key] = cur
	return cur
}

func mergeIdentifier(cur, next Identifier) Identifier {
	if !next.Known() {
		return cur
	}
	if cur.Known() && !cur.Guessed && next.Guessed {
		return cur
	}
	return next
}

func (c *Cache) Forget(channel string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(channel))
	c.mu.Unlock()
}
