// Package session implements the STOMP endpoint state machine: connect
// handshake, version and heart-beat negotiation, subscription
// bookkeeping with replay, transaction bookkeeping, receipt
// correlation, and server-frame dispatch, per spec.md §4.3.
//
// Session is a pure state object: every method is a synchronous
// function over its receiver, never blocking and never spawning
// concurrency primitives. A Session (and the Parser feeding it) belongs
// to exactly one logical connection; concurrent external mutation is
// the caller's responsibility.
package session

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/sergey-sobolev/stompest/errors"
	"github.com/sergey-sobolev/stompest/logging"
	"github.com/sergey-sobolev/stompest/stomp/commands"
	"github.com/sergey-sobolev/stompest/stomp/frame"
	"github.com/sergey-sobolev/stompest/stomp/spec"
)

// Options configures a new Session.
type Options struct {
	// Logger receives structured diagnostics about phase transitions.
	// Message dispatch is not logged. Defaults to a no-op logger when
	// unset.
	Logger logging.Logger
}

// ConnectRequest parametrizes Connect.
type ConnectRequest struct {
	Login     string
	Passcode  string
	Host      string
	Accept    []spec.Version
	HeartBeat *commands.HeartBeat
	Headers   frame.Headers
	// UseStomp selects the STOMP frame over CONNECT. If unset, the
	// session defaults to STOMP when 1.2 is in Accept, per spec.md
	// §4.3's "default STOMP if 1.2 is in accept list".
	UseStomp *bool
}

// Session is the STOMP endpoint state machine. The zero value is not
// usable; construct with New.
type Session struct {
	opts Options
	log  logging.Logger
	id   string

	phase Phase

	acceptVersions  []spec.Version
	clientHeartBeat commands.HeartBeat

	version   spec.Version
	server    string
	sessionID string

	outboundInterval int
	inboundInterval  int

	subs      map[string]*Subscription
	subOrder  []string
	nextSubID int

	transactions map[string]bool
	nextTxnID    int

	receipts           map[string]any
	disconnectReceipt  string
	haveDisconnectRcpt bool
}

// New constructs a Session in the DISCONNECTED phase with empty tables.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logging.NewNoopLogger()
	}
	id := uuid.NewString()
	log = log.WithFields(logging.String("stomp_session", id))

	return &Session{
		opts:         opts,
		log:          log,
		id:           id,
		phase:        PhaseDisconnected,
		subs:         make(map[string]*Subscription),
		transactions: make(map[string]bool),
		receipts:     make(map[string]any),
	}
}

// ID returns the session's logging correlation id. It has no protocol
// meaning.
func (s *Session) ID() string { return s.id }

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Version returns the negotiated protocol version. It is the empty
// string until the handshake completes.
func (s *Session) Version() spec.Version { return s.version }

// Server returns the server identity string reported on CONNECTED.
func (s *Session) Server() string { return s.server }

// SessionID returns the broker session id reported on CONNECTED.
func (s *Session) SessionID() string { return s.sessionID }

// OutboundInterval returns the negotiated outbound heart-beat interval
// in milliseconds, or 0 if unnegotiated or disabled.
func (s *Session) OutboundInterval() int { return s.outboundInterval }

// InboundInterval returns the negotiated inbound heart-beat interval in
// milliseconds, or 0 if unnegotiated or disabled.
func (s *Session) InboundInterval() int { return s.inboundInterval }

func (s *Session) stateError(op string) error {
	return errors.Newf(errors.ErrCodeProtocolState, "%s is not permitted in phase %s", op, s.phase)
}

// Connect builds the CONNECT/STOMP frame and moves the session from
// DISCONNECTED to CONNECTING.
func (s *Session) Connect(req ConnectRequest) (*frame.Frame, error) {
	if s.phase != PhaseDisconnected {
		return nil, s.stateError("connect")
	}

	accept := req.Accept
	if len(accept) == 0 {
		accept = []spec.Version{spec.DefaultVersion}
	}

	highest, ok := spec.HighestVersion(accept)
	useStomp := ok && highest.Compare(spec.V12) == 0
	if req.UseStomp != nil {
		useStomp = *req.UseStomp
	}

	opts := commands.ConnectOptions{
		Login:    req.Login,
		Passcode: req.Passcode,
		Host:     req.Host,
		Accept:   accept,
		HeartBeat: req.HeartBeat,
		Headers:  req.Headers,
	}

	var f *frame.Frame
	var err error
	if useStomp {
		f, err = commands.Stomp(opts)
	} else {
		f, err = commands.Connect(opts)
	}
	if err != nil {
		return nil, err
	}

	s.acceptVersions = accept
	if req.HeartBeat != nil {
		s.clientHeartBeat = *req.HeartBeat
	} else {
		s.clientHeartBeat = commands.HeartBeat{}
	}
	s.phase = PhaseConnecting
	s.log.Info(context.Background(), "connect requested", logging.Any("accept", accept))
	return f, nil
}

// Receive feeds a parsed server frame to the session, returning the
// events it produces. A frame that violates the session's current phase
// or the protocol's negotiation rules is reported as an error and does
// not mutate state.
func (s *Session) Receive(f *frame.Frame) ([]Event, error) {
	switch f.Command() {
	case spec.CmdConnected:
		return s.receiveConnected(f)
	case spec.CmdMessage:
		return s.receiveMessage(f)
	case spec.CmdReceipt:
		return s.receiveReceipt(f)
	case spec.CmdError:
		return []Event{{Kind: EventErrorReceived, Frame: f}}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedCommand, "%s is not a server command", f.Command())
	}
}

func (s *Session) receiveConnected(f *frame.Frame) ([]Event, error) {
	if s.phase != PhaseConnecting {
		return nil, s.stateError("receive CONNECTED")
	}

	connected, err := commands.ParseConnected(f)
	if err != nil {
		return nil, err
	}
	negotiated, err := spec.NegotiateVersion(s.acceptVersions, string(connected.Version))
	if err != nil {
		return nil, err
	}

	s.version = negotiated
	s.server = connected.Server
	s.sessionID = connected.Session

	cx, cy := s.clientHeartBeat.Cx, s.clientHeartBeat.Cy
	sx, sy := connected.HeartBeat.Cx, connected.HeartBeat.Cy
	s.outboundInterval = negotiateInterval(cx, sy)
	s.inboundInterval = negotiateInterval(cy, sx)

	s.phase = PhaseConnected
	s.log.Info(context.Background(), "handshake complete",
		logging.String("version", string(s.version)),
		logging.Int("outbound_interval", s.outboundInterval),
		logging.Int("inbound_interval", s.inboundInterval))

	return []Event{{
		Kind: EventConnected,
		Connected: ConnectedInfo{
			Version:          s.version,
			Server:           s.server,
			SessionID:        s.sessionID,
			OutboundInterval: s.outboundInterval,
			InboundInterval:  s.inboundInterval,
		},
	}}, nil
}

// negotiateInterval implements `max(a, b) if both non-zero else 0`.
func negotiateInterval(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		return a
	}
	return b
}

func (s *Session) receiveMessage(f *frame.Frame) ([]Event, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("receive MESSAGE")
	}

	route, err := commands.ParseMessage(s.version, f)
	if err != nil {
		return nil, err
	}

	var sub *Subscription
	if route.HasSubscription {
		sub = s.subs[route.Subscription]
	} else {
		for _, id := range s.subOrder {
			if candidate := s.subs[id]; candidate.Destination == route.Destination {
				sub = candidate
				break
			}
		}
	}

	if sub == nil {
		return []Event{{Kind: EventOrphanMessage, Frame: f}}, nil
	}
	return []Event{{Kind: EventMessageReceived, Frame: f, SubscriptionID: sub.ID, Token: sub.Token}}, nil
}

func (s *Session) receiveReceipt(f *frame.Frame) ([]Event, error) {
	id, err := commands.ParseReceipt(f)
	if err != nil {
		return nil, err
	}

	token, ok := s.receipts[id]
	if !ok {
		return []Event{{Kind: EventOrphanReceipt, ReceiptID: id}}, nil
	}
	delete(s.receipts, id)

	if s.phase == PhaseDisconnecting && s.haveDisconnectRcpt && id == s.disconnectReceipt {
		s.phase = PhaseDisconnected
		s.haveDisconnectRcpt = false
		s.log.Info(context.Background(), "disconnect acknowledged")
	}

	return []Event{{Kind: EventReceiptReceived, ReceiptID: id, Token: token}}, nil
}

func (s *Session) registerReceipt(receipt string, token any) {
	if receipt == "" {
		return
	}
	s.receipts[receipt] = token
}

// Send builds a SEND frame. Destination and body are as supplied;
// headers may carry additional application headers. If receipt is
// non-empty a pending-receipt entry is registered under token.
func (s *Session) Send(destination string, body []byte, headers frame.Headers, receipt string, token any) (*frame.Frame, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("send")
	}
	f, err := commands.Send(destination, body, headers, receipt)
	if err != nil {
		return nil, err
	}
	s.registerReceipt(receipt, token)
	return f, nil
}

// Subscribe registers a new subscription and builds its SUBSCRIBE
// frame. If headers omits an id header, one is generated (a monotonic
// counter in string form, per spec.md §9).
func (s *Session) Subscribe(destination string, headers frame.Headers, receipt string, token any) (*frame.Frame, string, error) {
	if s.phase != PhaseConnected {
		return nil, "", s.stateError("subscribe")
	}

	h := headers.Clone()
	id, ok := h.Get(spec.HeaderID)
	if !ok || id == "" {
		id = s.generateSubID()
		h.Set(spec.HeaderID, id)
	}

	ackMode, err := ackModeFromHeaders(h)
	if err != nil {
		return nil, "", err
	}

	f, err := commands.Subscribe(destination, h, receipt)
	if err != nil {
		return nil, "", err
	}

	s.subs[id] = &Subscription{ID: id, Destination: destination, Headers: h, AckMode: ackMode, Token: token}
	s.subOrder = append(s.subOrder, id)
	s.registerReceipt(receipt, token)

	return f, id, nil
}

func (s *Session) generateSubID() string {
	id := strconv.Itoa(s.nextSubID)
	s.nextSubID++
	return id
}

// Subscription returns the bookkeeping entry for id, including its
// negotiated ack mode, and whether such a subscription is currently
// retained.
func (s *Session) Subscription(id string) (Subscription, bool) {
	sub, ok := s.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// ackModeFromHeaders extracts the subscription's ack mode from its
// headers, defaulting to AckAuto when the ack header is absent (the
// broker's own default, per spec.md §3) and rejecting any value outside
// the three modes the protocol defines.
func ackModeFromHeaders(h frame.Headers) (string, error) {
	mode, ok := h.Get(spec.HeaderAck)
	if !ok || mode == "" {
		return spec.AckAuto, nil
	}
	switch mode {
	case spec.AckAuto, spec.AckClient, spec.AckClientIndividual:
		return mode, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidHeader, "unknown ack mode %q", mode)
	}
}

// Unsubscribe removes the subscription matched by idOrToken and builds
// its UNSUBSCRIBE frame. idOrToken is first tried as a subscription id;
// if no subscription carries that id, the bookkeeping table is scanned
// for a subscription whose Token equals idOrToken, per spec.md §4.3's
// dual id/token lookup contract. A match on neither fails with
// ErrCodeUnknownSubscription.
func (s *Session) Unsubscribe(idOrToken any, receipt string, token any) (*frame.Frame, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("unsubscribe")
	}
	sub, ok := s.findSubscription(idOrToken)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownSubscription, "unknown subscription %v", idOrToken)
	}

	h := frame.NewHeaders(frame.Header{Name: spec.HeaderID, Value: sub.ID})
	f, err := commands.Unsubscribe(s.version, h, receipt)
	if err != nil {
		return nil, err
	}

	delete(s.subs, sub.ID)
	s.subOrder = removeString(s.subOrder, sub.ID)
	s.registerReceipt(receipt, token)

	return f, nil
}

// findSubscription resolves idOrToken against the subscription table,
// first as a literal id and, failing that, by scanning for a
// subscription whose Token equals it.
func (s *Session) findSubscription(idOrToken any) (*Subscription, bool) {
	if idOrToken == nil {
		return nil, false
	}
	if id, isString := idOrToken.(string); isString {
		if sub, ok := s.subs[id]; ok {
			return sub, true
		}
	}
	for _, id := range s.subOrder {
		if sub := s.subs[id]; sub.Token != nil && sub.Token == idOrToken {
			return sub, true
		}
	}
	return nil, false
}

func removeString(list []string, value string) []string {
	for i, v := range list {
		if v == value {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Begin starts a transaction, generating an id if transactionID is
// empty, and builds its BEGIN frame.
func (s *Session) Begin(transactionID string, receipt string, token any) (*frame.Frame, string, error) {
	if s.phase != PhaseConnected {
		return nil, "", s.stateError("begin")
	}
	if transactionID == "" {
		transactionID = s.generateTxnID()
	}
	f, err := commands.Begin(transactionID, receipt)
	if err != nil {
		return nil, "", err
	}
	s.transactions[transactionID] = true
	s.registerReceipt(receipt, token)
	return f, transactionID, nil
}

func (s *Session) generateTxnID() string {
	id := strconv.Itoa(s.nextTxnID)
	s.nextTxnID++
	return id
}

// Commit ends transactionID successfully and builds its COMMIT frame.
// Committing an unknown transaction fails with ErrCodeUnknownTransaction.
func (s *Session) Commit(transactionID string, receipt string, token any) (*frame.Frame, error) {
	return s.endTransaction(commands.Commit, transactionID, receipt, token)
}

// Abort ends transactionID by rolling it back and builds its ABORT
// frame. Aborting an unknown transaction fails with
// ErrCodeUnknownTransaction.
func (s *Session) Abort(transactionID string, receipt string, token any) (*frame.Frame, error) {
	return s.endTransaction(commands.Abort, transactionID, receipt, token)
}

func (s *Session) endTransaction(build func(string, string) (*frame.Frame, error), transactionID, receipt string, token any) (*frame.Frame, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("end transaction")
	}
	if !s.transactions[transactionID] {
		return nil, errors.Newf(errors.ErrCodeUnknownTransaction, "unknown transaction %q", transactionID)
	}
	f, err := build(transactionID, receipt)
	if err != nil {
		return nil, err
	}
	delete(s.transactions, transactionID)
	s.registerReceipt(receipt, token)
	return f, nil
}

// Ack builds an ACK frame for a received MESSAGE. transactionID may be
// empty; if non-empty it must name an active transaction.
func (s *Session) Ack(route commands.MessageRoute, transactionID, receipt string, token any) (*frame.Frame, error) {
	return s.ackOrNack(commands.Ack, route, transactionID, receipt, token)
}

// Nack builds a NACK frame for a received MESSAGE. Illegal in version
// 1.0 (fails with ErrCodeUnsupportedCommand, per spec.md §4.3).
func (s *Session) Nack(route commands.MessageRoute, transactionID, receipt string, token any) (*frame.Frame, error) {
	return s.ackOrNack(commands.Nack, route, transactionID, receipt, token)
}

func (s *Session) ackOrNack(build func(spec.Version, commands.AckRequest) (*frame.Frame, error), route commands.MessageRoute, transactionID, receipt string, token any) (*frame.Frame, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("ack/nack")
	}
	if transactionID != "" && !s.transactions[transactionID] {
		return nil, errors.Newf(errors.ErrCodeUnknownTransaction, "unknown transaction %q", transactionID)
	}
	f, err := build(s.version, commands.AckRequest{
		MessageID:     route.MessageID,
		Subscription:  route.Subscription,
		Ack:           route.Ack,
		TransactionID: transactionID,
		Receipt:       receipt,
	})
	if err != nil {
		return nil, err
	}
	s.registerReceipt(receipt, token)
	return f, nil
}

// Disconnect builds the DISCONNECT frame and moves the session from
// CONNECTED to DISCONNECTING.
func (s *Session) Disconnect(receipt string, token any) (*frame.Frame, error) {
	if s.phase != PhaseConnected {
		return nil, s.stateError("disconnect")
	}
	f, err := commands.Disconnect(receipt)
	if err != nil {
		return nil, err
	}
	s.registerReceipt(receipt, token)
	if receipt != "" {
		s.disconnectReceipt = receipt
		s.haveDisconnectRcpt = true
	}
	s.phase = PhaseDisconnecting
	return f, nil
}

// Disconnected reports that the transport closed, from any phase. It
// abandons every pending receipt (each resolves as EventReceiptCancelled)
// and clears transaction state; the subscription table is retained for
// Replay. A no-op if already DISCONNECTED.
func (s *Session) Disconnected() []Event {
	if s.phase == PhaseDisconnected {
		return nil
	}

	var events []Event
	for id, token := range s.receipts {
		events = append(events, Event{Kind: EventReceiptCancelled, ReceiptID: id, Token: token})
	}
	s.receipts = make(map[string]any)
	s.transactions = make(map[string]bool)
	s.haveDisconnectRcpt = false
	s.phase = PhaseDisconnected
	s.log.Info(context.Background(), "transport reported disconnect")
	return events
}

// Replay returns SUBSCRIBE frames for every currently retained
// subscription, in original insertion order, with the same ids and
// headers as when each was first subscribed.
func (s *Session) Replay() []*frame.Frame {
	frames := make([]*frame.Frame, 0, len(s.subOrder))
	for _, id := range s.subOrder {
		sub := s.subs[id]
		f, err := commands.Subscribe(sub.Destination, sub.Headers, "")
		if err != nil {
			continue
		}
		frames = append(frames, f)
	}
	return frames
}
