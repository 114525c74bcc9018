package gateway

import "sync/atomic"

// gatewayMetricsState tracks client and delivery counters for the hub.
type gatewayMetricsState struct {
	clients atomic.Int64
	dropped atomic.Int64
}

var gatewayMetrics gatewayMetricsState

func (m *gatewayMetricsState) incClients() int64 {
	if m == nil {
		return 0
	}
	return m.clients.Add(1)
}

func (m *gatewayMetricsState) decClients() int64 {
	if m == nil {
		return 0
	}
	return m.clients.Add(-1)
}

func (m *gatewayMetricsState) incDropped() int64 {
	if m == nil {
		return 0
	}
	return m.dropped.Add(1)
}

// ClientCount reports the number of connected overlay sessions.
func ClientCount() int64 { return gatewayMetrics.clients.Load() }
