package net

import "errors"

var (
	ErrNotStarted        = errors.New("peer not started")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrQueueFull         = errors.New("output queue full")
)

// Kind classifies an item drained from the peer.
type Kind int

const (
	KindData Kind = iota
	KindStatusChanged
	KindDiscoveryRequest
	KindDiscoveryResponse
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindStatusChanged:
		return "StatusChanged"
	case KindDiscoveryRequest:
		return "DiscoveryRequest"
	case KindDiscoveryResponse:
		return "DiscoveryResponse"
	}
	return "Unknown"
}

// Status is the connection state carried by a KindStatusChanged item.
type Status int

const (
	StatusConnected Status = iota + 1
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected"
	}
	return "Unknown"
}

// Incoming is one event surfaced by NextIncoming.
//
// Data items carry the raw message bytes in Payload. Status items carry
// the new Status and, for disconnects, the remote or local reason.
// Discovery items carry the remote address in Addr; for responses Addr is
// the address to Connect to.
type Incoming struct {
	Kind    Kind
	ConnID  int64
	Status  Status
	Reason  string
	Payload []byte
	Addr    string
}
