package session

import (
	"github.com/sergey-sobolev/stompest/stomp/frame"
	"github.com/sergey-sobolev/stompest/stomp/spec"
)

// EventKind tags the variant of Event.
type EventKind int

const (
	// EventConnected reports a completed handshake: negotiated version,
	// server identity and heart-beat intervals are in ConnectedInfo.
	EventConnected EventKind = iota
	// EventMessageReceived reports a MESSAGE frame resolved to a known
	// subscription. SubscriptionID and Token identify the subscription.
	EventMessageReceived
	// EventOrphanMessage reports a MESSAGE frame that could not be
	// resolved to any known subscription.
	EventOrphanMessage
	// EventReceiptReceived reports a RECEIPT frame matching a pending
	// receipt; Token is the caller token supplied when the receipted
	// frame was sent.
	EventReceiptReceived
	// EventReceiptCancelled reports a pending receipt abandoned by
	// Disconnected(); Token is the caller token that will never now
	// see EventReceiptReceived.
	EventReceiptCancelled
	// EventOrphanReceipt reports a RECEIPT frame with no matching
	// pending entry.
	EventOrphanReceipt
	// EventErrorReceived reports an ERROR frame from the broker. Not
	// fatal by itself; the caller decides whether to close.
	EventErrorReceived
)

// ConnectedInfo carries the outcome of a successful handshake.
type ConnectedInfo struct {
	Version          spec.Version
	Server           string
	SessionID        string
	OutboundInterval int
	InboundInterval  int
}

// Event is a single item Receive or Disconnected produces for the caller
// to act on.
type Event struct {
	Kind           EventKind
	Connected      ConnectedInfo
	Frame          *frame.Frame
	SubscriptionID string
	ReceiptID      string
	Token          any
}
