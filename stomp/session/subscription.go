package session

import "github.com/sergey-sobolev/stompest/stomp/frame"

// Subscription is the bookkeeping entry the session keeps for an active
// or retained-for-replay SUBSCRIBE, per spec.md §3.
type Subscription struct {
	ID          string
	Destination string
	Headers     frame.Headers
	AckMode     string
	Token       any
}
