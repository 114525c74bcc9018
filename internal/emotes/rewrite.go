package emotes

import (
	"fmt"
	"regexp"
	"strings"
)

var inlineEmotePattern = regexp.MustCompile(`\[emote:(\d+):(\w+)\]`)

// Rewrite replaces emote references in message content with inline image
// markup. Two passes: Kick's own [emote:id:name] placeholders first, then
// bare 7TV emote names from the channel's catalog. The first pass never
// needs the catalog; Kick embeds everything in the placeholder.
func (c *Catalog) Rewrite(channelName, content string) string {
	out := rewriteInline(content)
	return c.rewriteNames(channelName, out)
}

func rewriteInline(content string) string {
	return inlineEmotePattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := inlineEmotePattern.FindStringSubmatch(match)
		id, name := sub[1], sub[2]
		src := fmt.Sprintf("https://files.kick.com/emotes/%s/fullsize", id)
		return emoteImg(src, name)
	})
}

func (c *Catalog) rewriteNames(channelName, content string) string {
	key := strings.ToLower(strings.TrimSpace(channelName))

	c.mu.Lock()
	// Channel emotes first so a channel name shadows a global one.
	combined := make([]struct {
		name string
		url  string
	}, 0, len(c.channel[key])+len(c.global))
	seen := map[string]bool{}
	for _, e := range c.channel[key] {
		if !seen[e.Name] {
			seen[e.Name] = true
			combined = append(combined, struct{ name, url string }{e.Name, e.URL})
		}
	}
	for _, e := range c.global {
		if !seen[e.Name] {
			seen[e.Name] = true
			combined = append(combined, struct{ name, url string }{e.Name, e.URL})
		}
	}
	c.mu.Unlock()

	for _, e := range combined {
		if !strings.Contains(content, e.name) {
			continue
		}
		re := c.patternFor(e.name)
		content = re.ReplaceAllString(content, emoteImg(e.url, e.name))
	}
	return content
}

func (c *Catalog) patternFor(name string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.namePattern[name]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	c.namePattern[name] = re
	return re
}

func emoteImg(src, alt string) string {
	return fmt.Sprintf(
		`<img src="%s" alt="%s" title="%s" style="height: 1.5em; vertical-align: middle;" />`,
		src, alt, alt,
	)
}
