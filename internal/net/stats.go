package net

import "sync/atomic"

// Stats counts transport traffic. Updated from the I/O goroutines.
type Stats struct {
	connections atomic.Int64
	messagesIn  atomic.Int64
	messagesOut atomic.Int64
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64
	dropped     atomic.Int64 // unreliable frames dropped on a full queue
}

// StatsSnapshot is a read-only copy of Stats.
type StatsSnapshot struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
	BytesIn     int64 `json:"bytes_in"`
	BytesOut    int64 `json:"bytes_out"`
	Dropped     int64 `json:"unreliable_dropped"`
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Connections: s.connections.Load(),
		MessagesIn:  s.messagesIn.Load(),
		MessagesOut: s.messagesOut.Load(),
		BytesIn:     s.bytesIn.Load(),
		BytesOut:    s.bytesOut.Load(),
		Dropped:     s.dropped.Load(),
	}
}
