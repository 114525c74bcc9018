package core

import "time"

// ChatMessage is the normalized, transport-agnostic form of one upstream
// chat event, ready for broadcast to overlay clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Badges    []Badge   `json:"badges"`
	Emotes    []Emote   `json:"emotes"`
	User      ChatUser  `json:"user"`
}

type ChatUser struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Identity  Identity   `json:"identity"`
	Cosmetics *Cosmetics `json:"cosmetics,omitempty"`
}

type Identity struct {
	Color  string     `json:"color,omitempty"`
	Badges []RawBadge `json:"badges"`
}

// RawBadge is the badge shape carried on upstream sender identities.
type RawBadge struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Count int    `json:"count,omitempty"`
}

// Badge is a resolved badge: Image is a URL, inline SVG markup, or an
// emoji fallback depending on what resolution produced.
type Badge struct {
	Type     string `json:"type"`
	Image    string `json:"image"`
	Alt      string `json:"alt"`
	IsCustom bool   `json:"isCustom"`
	Count    int    `json:"count,omitempty"`
}

type Emote struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	Type     string `json:"type"` // "kick" | "7tv-global" | "7tv-channel"
	Animated bool   `json:"animated,omitempty"`
	Position int    `json:"position,omitempty"`
}

// CatalogEmote is one entry in the 7TV emote catalog pushed to clients.
type CatalogEmote struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     string `json:"type"` // "global" | "channel"
	Animated bool   `json:"animated"`
}

// SubscriberBadge is a channel's custom badge for a month threshold.
type SubscriberBadge struct {
	ID     string `json:"id"`
	Months int    `json:"months"`
	URL    string `json:"url"`
}

// Chatroom carries the two internal numeric identifiers a channel needs
// for upstream subscription.
type Chatroom struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// ChannelInfo mirrors the upstream channel-info payload the clients and
// the badge endpoint exchange.
type ChannelInfo struct {
	ID               string            `json:"id"`
	Slug             string            `json:"slug"`
	Username         string            `json:"username"`
	Chatroom         Chatroom          `json:"chatroom"`
	SubscriberBadges []SubscriberBadge `json:"subscriber_badges"`
}

// Cosmetics carries 7TV paint/role metadata for a chat user.
type Cosmetics struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Color    string   `json:"color,omitempty"`
	PaintID  string   `json:"paintId,omitempty"`
	BadgeID  string   `json:"badgeId,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Paint    *Paint   `json:"paint,omitempty"`
}

type Paint struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Function string      `json:"function"`
	Color    int64       `json:"color"`
	Stops    []PaintStop `json:"stops,omitempty"`
}

type PaintStop struct {
	At    float64 `json:"at"`
	Color int64   `json:"color"`
}
