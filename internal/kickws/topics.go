package kickws

// Topics derives the pusher topic names for a channel's identifier pair.
// The message-carrying topic is not documented upstream, so all patterns
// seen in real traffic are subscribed; an ack on any one of them is enough.
func Topics(chatroomID, channelID string) []string {
	var topics []string
	if chatroomID != "" {
		topics = append(topics,
			"chatroom_"+chatroomID,
			"chatrooms."+chatroomID+".v2",
			"chatrooms."+chatroomID,
		)
	}
	if channelID != "" {
		topics = append(topics,
			"channel_"+channelID,
			"channel."+channelID,
			"predictions-channel-"+channelID,
		)
	}
	return topics
}
