// Package commands implements stateless, per-version constructors and
// validators for every client- and broker-originated STOMP frame. None of
// these functions hold state; github.com/sergey-sobolev/stompest/stomp/session
// is the stateful layer built on top of them.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sergey-sobolev/stompest/errors"
	"github.com/sergey-sobolev/stompest/stomp/frame"
	"github.com/sergey-sobolev/stompest/stomp/spec"
)

// HeartBeat is a client or server heart-beat parameter pair, in
// milliseconds. Zero means "cannot/does not want", per spec.md §6.
type HeartBeat struct {
	Cx int
	Cy int
}

func (hb HeartBeat) header() string {
	return fmt.Sprintf("%d,%d", hb.Cx, hb.Cy)
}

// ParseHeartBeat parses a heart-beat header value of the form "cx,cy".
func ParseHeartBeat(value string) (HeartBeat, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return HeartBeat{}, errors.Newf(errors.ErrCodeInvalidHeader,
			"invalid heart-beat header (two comma-separated non-negative integers required): %q", value)
	}
	cx, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	cy, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || cx < 0 || cy < 0 {
		return HeartBeat{}, errors.Newf(errors.ErrCodeInvalidHeader,
			"invalid heart-beat header (two comma-separated non-negative integers required): %q", value)
	}
	return HeartBeat{Cx: cx, Cy: cy}, nil
}

// ConnectOptions parametrizes Connect and Stomp.
type ConnectOptions struct {
	Login     string
	Passcode  string
	Host      string
	Accept    []spec.Version
	HeartBeat *HeartBeat
	Headers   frame.Headers
}

func connectHeaders(opts ConnectOptions) frame.Headers {
	h := opts.Headers.Clone()
	if opts.Login != "" {
		h.Set(spec.HeaderLogin, opts.Login)
	}
	if opts.Passcode != "" {
		h.Set(spec.HeaderPasscode, opts.Passcode)
	}
	if len(opts.Accept) > 0 {
		versions := make([]string, len(opts.Accept))
		for i, v := range opts.Accept {
			versions[i] = string(v)
		}
		h.Set(spec.HeaderAcceptVersion, strings.Join(versions, ","))
	}
	if opts.Host != "" {
		h.Set(spec.HeaderHost, opts.Host)
	}
	if opts.HeartBeat != nil {
		h.Set(spec.HeaderHeartBeat, opts.HeartBeat.header())
	}
	return h
}

// Connect builds a CONNECT frame (legal in every version).
func Connect(opts ConnectOptions) (*frame.Frame, error) {
	return frame.New(spec.CmdConnect, connectHeaders(opts), nil), nil
}

// Stomp builds a STOMP frame, the 1.1+ synonym for CONNECT. It is not
// supported if the only version the caller will accept is 1.0.
func Stomp(opts ConnectOptions) (*frame.Frame, error) {
	if len(opts.Accept) == 1 && opts.Accept[0] == spec.V10 {
		return nil, errors.Newf(errors.ErrCodeUnsupportedCommand,
			"STOMP command is not supported in version %s", spec.V10)
	}
	return frame.New(spec.CmdStomp, connectHeaders(opts), nil), nil
}

// Connected describes the fields of a CONNECTED frame relevant to
// handshake negotiation.
type Connected struct {
	Version   spec.Version
	Server    string
	Session   string
	HeartBeat HeartBeat
}

// ParseConnected extracts the fields of a CONNECTED frame. It does not
// intersect the server's version against an accept list; that is the
// session's job (spec.md §4.3), since it requires session-level context.
func ParseConnected(f *frame.Frame) (Connected, error) {
	if f.Command() != spec.CmdConnected {
		return Connected{}, errors.Newf(errors.ErrCodeInvalidHeader,
			"expected CONNECTED frame, got %s", f.Command())
	}

	version := spec.V10
	if raw, ok := f.Header(spec.HeaderVersion); ok {
		version = spec.Version(raw)
		if !version.Valid() {
			return Connected{}, errors.Newf(errors.ErrCodeProtocolNegotiation,
				"server reported unsupported version %q", raw)
		}
	}

	server, _ := f.Header(spec.HeaderServer)
	session, _ := f.Header(spec.HeaderSession)

	hb := HeartBeat{}
	if raw, ok := f.Header(spec.HeaderHeartBeat); ok && version != spec.V10 {
		parsed, err := ParseHeartBeat(raw)
		if err != nil {
			return Connected{}, err
		}
		hb = parsed
	}

	return Connected{Version: version, Server: server, Session: session, HeartBeat: hb}, nil
}

// Send builds a SEND frame.
func Send(destination string, body []byte, headers frame.Headers, receipt string) (*frame.Frame, error) {
	if destination == "" {
		return nil, errors.New(errors.ErrCodeInvalidHeader, "SEND requires a destination")
	}
	h := headers.Clone()
	h.Set(spec.HeaderDestination, destination)
	addReceipt(&h, receipt)
	return frame.New(spec.CmdSend, h, body), nil
}

// Subscribe builds a SUBSCRIBE frame. The caller (normally the session)
// is responsible for ensuring headers carries an id header when the
// negotiated version requires one.
func Subscribe(destination string, headers frame.Headers, receipt string) (*frame.Frame, error) {
	if destination == "" {
		return nil, errors.New(errors.ErrCodeInvalidHeader, "SUBSCRIBE requires a destination")
	}
	h := headers.Clone()
	h.Set(spec.HeaderDestination, destination)
	addReceipt(&h, receipt)
	return frame.New(spec.CmdSubscribe, h, nil), nil
}

// Unsubscribe builds an UNSUBSCRIBE frame from the headers identifying
// the subscription (an id header under 1.1+, or a destination header
// under 1.0).
func Unsubscribe(version spec.Version, headers frame.Headers, receipt string) (*frame.Frame, error) {
	h := headers.Clone()
	_, hasID := h.Get(spec.HeaderID)
	_, hasDestination := h.Get(spec.HeaderDestination)
	if version == spec.V10 {
		if !hasID && !hasDestination {
			return nil, errors.New(errors.ErrCodeInvalidHeader, "UNSUBSCRIBE requires an id or destination header in version 1.0")
		}
	} else if !hasID {
		return nil, errors.Newf(errors.ErrCodeInvalidHeader, "UNSUBSCRIBE requires an id header in version %s", version)
	}
	addReceipt(&h, receipt)
	return frame.New(spec.CmdUnsubscribe, h, nil), nil
}

// Begin builds a BEGIN frame.
func Begin(transactionID string, receipt string) (*frame.Frame, error) {
	return transactionFrame(spec.CmdBegin, transactionID, receipt)
}

// Commit builds a COMMIT frame.
func Commit(transactionID string, receipt string) (*frame.Frame, error) {
	return transactionFrame(spec.CmdCommit, transactionID, receipt)
}

// Abort builds an ABORT frame.
func Abort(transactionID string, receipt string) (*frame.Frame, error) {
	return transactionFrame(spec.CmdAbort, transactionID, receipt)
}

func transactionFrame(command, transactionID, receipt string) (*frame.Frame, error) {
	if transactionID == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidHeader, "%s requires a transaction id", command)
	}
	h := frame.NewHeaders(frame.Header{Name: spec.HeaderTransaction, Value: transactionID})
	addReceipt(&h, receipt)
	return frame.New(command, h, nil), nil
}

// AckRequest carries the fields needed to build an ACK or NACK frame,
// extracted by the session from the MESSAGE frame being acknowledged.
type AckRequest struct {
	MessageID     string
	Subscription  string
	Ack           string // the server-assigned "ack" header, used by 1.2
	TransactionID string
	Receipt       string
}

// Ack builds an ACK frame per the header rules of spec.md §4.3: 1.0 uses
// message-id; 1.1 requires both message-id and subscription; 1.2 uses id
// (the ack header copied from the MESSAGE frame).
func Ack(version spec.Version, req AckRequest) (*frame.Frame, error) {
	h, err := ackHeaders(version, req)
	if err != nil {
		return nil, err
	}
	return frame.New(spec.CmdAck, h, nil), nil
}

// Nack builds a NACK frame. NACK does not exist in version 1.0.
func Nack(version spec.Version, req AckRequest) (*frame.Frame, error) {
	if version == spec.V10 {
		return nil, errors.New(errors.ErrCodeUnsupportedCommand, "NACK is not supported in version 1.0")
	}
	h, err := ackHeaders(version, req)
	if err != nil {
		return nil, err
	}
	return frame.New(spec.CmdNack, h, nil), nil
}

func ackHeaders(version spec.Version, req AckRequest) (frame.Headers, error) {
	h := frame.Headers{}
	switch version {
	case spec.V10:
		if req.MessageID == "" {
			return h, errors.New(errors.ErrCodeInvalidHeader, "ACK requires message-id in version 1.0")
		}
		h.Set(spec.HeaderMessageID, req.MessageID)
	case spec.V11:
		if req.MessageID == "" || req.Subscription == "" {
			return h, errors.New(errors.ErrCodeInvalidHeader, "ACK requires message-id and subscription in version 1.1")
		}
		h.Set(spec.HeaderMessageID, req.MessageID)
		h.Set(spec.HeaderSubscription, req.Subscription)
	case spec.V12:
		if req.Ack == "" {
			return h, errors.New(errors.ErrCodeInvalidHeader, "ACK requires an id (the MESSAGE frame's ack header) in version 1.2")
		}
		h.Set(spec.HeaderID, req.Ack)
	default:
		return h, errors.Newf(errors.ErrCodeInvalidHeader, "unsupported version %s", version)
	}
	if req.TransactionID != "" {
		h.Set(spec.HeaderTransaction, req.TransactionID)
	}
	addReceipt(&h, req.Receipt)
	return h, nil
}

// Disconnect builds a DISCONNECT frame.
func Disconnect(receipt string) (*frame.Frame, error) {
	h := frame.Headers{}
	addReceipt(&h, receipt)
	return frame.New(spec.CmdDisconnect, h, nil), nil
}

// MessageRoute is the routing information extracted from a MESSAGE frame.
type MessageRoute struct {
	Destination    string
	Subscription   string
	HasSubscription bool
	MessageID      string
	Ack            string
}

// ParseMessage extracts the routing fields of a MESSAGE frame. Under 1.1+
// the subscription header is mandatory; under 1.0 it is absent and the
// caller falls back to matching on destination (spec.md §4.3).
func ParseMessage(version spec.Version, f *frame.Frame) (MessageRoute, error) {
	if f.Command() != spec.CmdMessage {
		return MessageRoute{}, errors.Newf(errors.ErrCodeInvalidHeader, "expected MESSAGE frame, got %s", f.Command())
	}
	destination, ok := f.Header(spec.HeaderDestination)
	if !ok {
		return MessageRoute{}, errors.New(errors.ErrCodeInvalidHeader, "MESSAGE frame missing destination header")
	}
	messageID, _ := f.Header(spec.HeaderMessageID)
	ack, _ := f.Header(spec.HeaderAck)

	route := MessageRoute{Destination: destination, MessageID: messageID, Ack: ack}
	if sub, ok := f.Header(spec.HeaderSubscription); ok {
		route.Subscription = sub
		route.HasSubscription = true
	} else if version != spec.V10 {
		return MessageRoute{}, errors.Newf(errors.ErrCodeInvalidHeader, "MESSAGE frame missing subscription header in version %s", version)
	}
	return route, nil
}

// ParseReceipt extracts the receipt id from a RECEIPT frame.
func ParseReceipt(f *frame.Frame) (string, error) {
	if f.Command() != spec.CmdReceipt {
		return "", errors.Newf(errors.ErrCodeInvalidHeader, "expected RECEIPT frame, got %s", f.Command())
	}
	id, ok := f.Header(spec.HeaderReceiptID)
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidHeader, "RECEIPT frame missing receipt-id header")
	}
	return id, nil
}

func addReceipt(h *frame.Headers, receipt string) {
	if receipt != "" {
		h.Set(spec.HeaderReceipt, receipt)
	}
}
