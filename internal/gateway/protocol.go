package gateway

import (
	"encoding/json"

	"github.com/you/kick-relay/internal/core"
)

// clientEnvelope is the frame shape overlay clients send: an event name
// plus an event-specific payload.
type clientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// serverEnvelope is the mirror shape for server pushes.
type serverEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const (
	eventJoinChannel      = "joinChannel"
	eventLeaveChannel     = "leaveChannel"
	eventBadgeData        = "badgeData"
	eventChatMessage      = "chatMessage"
	eventChannelConnected = "channelConnected"
	eventConnectionError  = "connectionError"
	eventEmotesLoaded     = "emotesLoaded"
)

// badgeDataPayload is what clients push after fetching the channel API
// themselves: the badge set plus the channel metadata that carries the
// identifiers the server may not be able to fetch past anti-bot walls.
type badgeDataPayload struct {
	ChannelName      string             `json:"channelName"`
	SubscriberBadges []clientBadgeEntry `json:"subscriber_badges"`
	ChannelInfo      struct {
		Chatroom struct {
			ID json.Number `json:"id"`
		} `json:"chatroom"`
	} `json:"channelInfo"`
}

type clientBadgeEntry struct {
	ID         json.Number `json:"id"`
	ChannelID  json.Number `json:"channel_id"`
	Months     int         `json:"months"`
	BadgeImage struct {
		Src string `json:"src"`
	} `json:"badge_image"`
}

func (p badgeDataPayload) badgeSet() []core.SubscriberBadge {
	set := make([]core.SubscriberBadge, 0, len(p.SubscriberBadges))
	for _, b := range p.SubscriberBadges {
		if b.BadgeImage.Src == "" {
			continue
		}
		set = append(set, core.SubscriberBadge{
			ID:     b.ID.String(),
			Months: b.Months,
			URL:    b.BadgeImage.Src,
		})
	}
	return set
}

func marshalEvent(event string, data any) ([]byte, error) {
	return json.Marshal(serverEnvelope{Event: event, Data: data})
}
