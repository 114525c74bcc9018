package kickws

import "sync/atomic"

// wsMetrics tracks basic counters for upstream frame handling.
type wsMetricsState struct {
	framesSeen   atomic.Int64
	chatMessages atomic.Int64
	decodeErrors atomic.Int64
}

var wsMetrics wsMetricsState

func (m *wsMetricsState) incFramesSeen() int64 {
	if m == nil {
		return 0
	}
	return m.framesSeen.Add(1)
}

func (m *wsMetricsState) incChatMessages() int64 {
	if m == nil {
		return 0
	}
	return m.chatMessages.Add(1)
}

func (m *wsMetricsState) incDecodeErrors() int64 {
	if m == nil {
		return 0
	}
	return m.decodeErrors.Add(1)
}
