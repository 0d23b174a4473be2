package parser

import "github.com/sergey-sobolev/stompest/stomp/frame"

// EventKind tags the variant of Event.
type EventKind int

const (
	// EventFrame carries a completed Frame.
	EventFrame EventKind = iota
	// EventHeartBeat marks a bare line terminator observed between
	// frames. Only emitted for versions 1.1 and above.
	EventHeartBeat
)

// Event is a single item the Parser emits from Feed: either a completed
// Frame or a heart-beat marker.
type Event struct {
	Kind  EventKind
	Frame *frame.Frame
}
