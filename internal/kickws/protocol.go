package kickws

import (
	"encoding/json"

	"github.com/you/kick-relay/internal/core"
)

// envelope is the outer frame every pusher message arrives in. The data
// field is a JSON string, not an object, and needs a second decode.
type envelope struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    string `json:"data,omitempty"`
}

type subscribeFrame struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

const (
	eventConnectionEstablished = "pusher:connection_established"
	eventSubscriptionSucceeded = "pusher:subscription_succeeded"
	eventSubscriptionError     = "pusher:subscription_error"
	eventSubscribe             = "pusher:subscribe"
)

// chatEventNames are the event names observed carrying chat messages.
// Matching is case-exact; the canonical one is the PHP event class name.
var chatEventNames = map[string]bool{
	`App\Events\ChatMessageEvent`: true,
	"ChatMessageEvent":            true,
	"chat_message":                true,
	"message":                     true,
	"chatroom_message":            true,
	`App\Events\ChatMessage`:      true,
	`App\Events\MessageEvent`:     true,
}

// RawMessage is one decoded upstream chat event, before enrichment.
type RawMessage struct {
	Sender    RawSender  `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"created_at"`
	Emotes    []RawEmote `json:"emotes"`
}

type RawSender struct {
	ID       json.Number   `json:"id"`
	Username string        `json:"username"`
	Identity core.Identity `json:"identity"`
}

type RawEmote struct {
	ID       json.Number `json:"id"`
	Name     string      `json:"name"`
	Source   string      `json:"source"`
	Position int         `json:"position"`
}

func decodeChatMessage(data string) (*RawMessage, error) {
	var msg RawMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
