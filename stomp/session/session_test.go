package session

import (
	"testing"

	"github.com/sergey-sobolev/stompest/errors"
	"github.com/sergey-sobolev/stompest/stomp/commands"
	"github.com/sergey-sobolev/stompest/stomp/frame"
	"github.com/sergey-sobolev/stompest/stomp/spec"
)

func connectedFrame(version spec.Version, heartBeat string) *frame.Frame {
	h := frame.NewHeaders(
		frame.Header{Name: spec.HeaderVersion, Value: string(version)},
		frame.Header{Name: spec.HeaderSession, Value: "sess-1"},
		frame.Header{Name: spec.HeaderServer, Value: "broker/1.0"},
	)
	if heartBeat != "" {
		h.Set(spec.HeaderHeartBeat, heartBeat)
	}
	return frame.New(spec.CmdConnected, h, nil)
}

func mustConnectAndHandshake(t *testing.T, s *Session, accept []spec.Version, clientHB *commands.HeartBeat, serverVersion spec.Version, serverHB string) {
	t.Helper()
	if _, err := s.Connect(ConnectRequest{Accept: accept, HeartBeat: clientHB}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := s.Receive(connectedFrame(serverVersion, serverHB)); err != nil {
		t.Fatalf("Receive(CONNECTED): %v", err)
	}
}

func TestScenario1_HandshakeNegotiatesHighestCommonVersion(t *testing.T) {
	s := New(Options{})
	clientHB := &commands.HeartBeat{Cx: 5, Cy: 15}
	mustConnectAndHandshake(t, s, []spec.Version{spec.V10, spec.V11, spec.V12}, clientHB, spec.V12, "10,20")

	if s.Phase() != PhaseConnected {
		t.Fatalf("expected CONNECTED phase, got %s", s.Phase())
	}
	if s.Version() != spec.V12 {
		t.Fatalf("expected version 1.2, got %s", s.Version())
	}
	if s.InboundInterval() != 15 { // max(cy=15, sx=10)
		t.Fatalf("unexpected inbound interval: %d", s.InboundInterval())
	}
	if s.OutboundInterval() != 20 { // max(cx=5, sy=20)
		t.Fatalf("unexpected outbound interval: %d", s.OutboundInterval())
	}
}

func TestConnect_DefaultsToStompWhenV12Accepted(t *testing.T) {
	s := New(Options{})
	f, err := s.Connect(ConnectRequest{Accept: []spec.Version{spec.V11, spec.V12}})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if f.Command() != spec.CmdStomp {
		t.Fatalf("expected STOMP frame, got %s", f.Command())
	}
}

func TestConnect_UsesConnectWhenOnlyLegacyVersionsAccepted(t *testing.T) {
	s := New(Options{})
	f, err := s.Connect(ConnectRequest{Accept: []spec.Version{spec.V10, spec.V11}})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if f.Command() != spec.CmdConnect {
		t.Fatalf("expected CONNECT frame, got %s", f.Command())
	}
}

func TestReceiveConnected_OutsideAcceptFailsNegotiation(t *testing.T) {
	s := New(Options{})
	if _, err := s.Connect(ConnectRequest{Accept: []spec.Version{spec.V10}}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_, err := s.Receive(connectedFrame(spec.V12, ""))
	if !errors.HasCode(err, errors.ErrCodeProtocolNegotiation) {
		t.Fatalf("expected ErrCodeProtocolNegotiation, got %v", err)
	}
	if s.Phase() != PhaseConnecting {
		t.Fatalf("expected phase to remain CONNECTING after failed negotiation, got %s", s.Phase())
	}
}

func TestOperationsRejectedOutsidePermittedPhase(t *testing.T) {
	s := New(Options{})
	_, _, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", nil)
	if !errors.HasCode(err, errors.ErrCodeProtocolState) {
		t.Fatalf("expected ErrCodeProtocolState, got %v", err)
	}
	if s.Phase() != PhaseDisconnected {
		t.Fatalf("expected phase unchanged, got %s", s.Phase())
	}
}

func TestScenario2_SubscribeGeneratesIDAndReplaysIdentically(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	f, id, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if id != "0" {
		t.Fatalf("expected generated id %q, got %q", "0", id)
	}
	if v, _ := f.Header(spec.HeaderID); v != "0" {
		t.Fatalf("unexpected id header: %q", v)
	}
	if v, _ := f.Header(spec.HeaderDestination); v != "/queue/a" {
		t.Fatalf("unexpected destination header: %q", v)
	}

	s.Disconnected()

	replayed := s.Replay()
	if len(replayed) != 1 {
		t.Fatalf("expected one replayed frame, got %d", len(replayed))
	}
	if !replayed[0].Equal(f) {
		t.Fatalf("replayed frame differs from original: got %+v, want %+v", replayed[0], f)
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	_, id, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := s.Unsubscribe(id, "", nil); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if len(s.Replay()) != 0 {
		t.Fatalf("expected no retained subscriptions after unsubscribe")
	}
}

func TestUnsubscribe_UnknownIDFails(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	_, err := s.Unsubscribe("nonexistent", "", nil)
	if !errors.HasCode(err, errors.ErrCodeUnknownSubscription) {
		t.Fatalf("expected ErrCodeUnknownSubscription, got %v", err)
	}
}

func TestUnsubscribe_ResolvesByToken(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	_, id, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", "my-token")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := s.Unsubscribe("my-token", "", nil); err != nil {
		t.Fatalf("Unsubscribe by token: %v", err)
	}
	if _, ok := s.Subscription(id); ok {
		t.Fatalf("subscription %q still retained after unsubscribing by token", id)
	}
}

func TestMessageDispatch_ResolvesBySubscriptionHeader(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	_, id, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", "token-a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	msg := frame.New(spec.CmdMessage, frame.NewHeaders(
		frame.Header{Name: spec.HeaderDestination, Value: "/queue/a"},
		frame.Header{Name: spec.HeaderSubscription, Value: id},
		frame.Header{Name: spec.HeaderMessageID, Value: "m-1"},
		frame.Header{Name: spec.HeaderAck, Value: "ack-1"},
	), []byte("hi"))

	events, err := s.Receive(msg)
	if err != nil {
		t.Fatalf("Receive(MESSAGE): %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventMessageReceived {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Token != "token-a" {
		t.Fatalf("unexpected token: %v", events[0].Token)
	}
}

func TestMessageDispatch_OrphanWhenUnresolvable(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	msg := frame.New(spec.CmdMessage, frame.NewHeaders(
		frame.Header{Name: spec.HeaderDestination, Value: "/queue/unknown"},
		frame.Header{Name: spec.HeaderSubscription, Value: "missing"},
		frame.Header{Name: spec.HeaderMessageID, Value: "m-1"},
	), nil)

	events, err := s.Receive(msg)
	if err != nil {
		t.Fatalf("Receive(MESSAGE): %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventOrphanMessage {
		t.Fatalf("expected orphan message event, got %+v", events)
	}
}

func TestScenario3_ReceiptRoundTrip(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	if _, err := s.Send("/queue/a", []byte("x"), frame.NewHeaders(), "r1", "my-token"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	receipt := frame.New(spec.CmdReceipt, frame.NewHeaders(
		frame.Header{Name: spec.HeaderReceiptID, Value: "r1"},
	), nil)
	events, err := s.Receive(receipt)
	if err != nil {
		t.Fatalf("Receive(RECEIPT): %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventReceiptReceived || events[0].Token != "my-token" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestScenario4_NackUnsupportedOnV10(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V10}, nil, spec.V10, "")

	route := commands.MessageRoute{MessageID: "m-1"}
	_, err := s.Nack(route, "", "", nil)
	if !errors.HasCode(err, errors.ErrCodeUnsupportedCommand) {
		t.Fatalf("expected ErrCodeUnsupportedCommand, got %v", err)
	}
	if s.Phase() != PhaseConnected {
		t.Fatalf("expected phase unchanged, got %s", s.Phase())
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	f, txID, err := s.Begin("", "", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if v, _ := f.Header(spec.HeaderTransaction); v != txID {
		t.Fatalf("unexpected transaction header: %q", v)
	}

	if _, err := s.Commit(txID, "", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := s.Commit(txID, "", nil); !errors.HasCode(err, errors.ErrCodeUnknownTransaction) {
		t.Fatalf("expected ErrCodeUnknownTransaction on double-commit, got %v", err)
	}
}

func TestDisconnected_CancelsPendingReceipts(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	if _, err := s.Send("/queue/a", nil, frame.NewHeaders(), "r1", "tok-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	events := s.Disconnected()
	if len(events) != 1 || events[0].Kind != EventReceiptCancelled || events[0].Token != "tok-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if s.Phase() != PhaseDisconnected {
		t.Fatalf("expected DISCONNECTED phase, got %s", s.Phase())
	}
}

func TestDisconnected_IsNoOpWhenAlreadyDisconnected(t *testing.T) {
	s := New(Options{})
	if events := s.Disconnected(); events != nil {
		t.Fatalf("expected nil events, got %+v", events)
	}
}

func TestSubscribe_DefaultsAckModeToAuto(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	_, id, err := s.Subscribe("/queue/a", frame.NewHeaders(), "", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub, ok := s.Subscription(id)
	if !ok {
		t.Fatalf("expected subscription %q to be retained", id)
	}
	if sub.AckMode != spec.AckAuto {
		t.Fatalf("expected default ack mode %q, got %q", spec.AckAuto, sub.AckMode)
	}
}

func TestSubscribe_RecordsExplicitAckMode(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	h := frame.NewHeaders(frame.Header{Name: spec.HeaderAck, Value: spec.AckClientIndividual})
	_, id, err := s.Subscribe("/queue/a", h, "", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub, ok := s.Subscription(id)
	if !ok {
		t.Fatalf("expected subscription %q to be retained", id)
	}
	if sub.AckMode != spec.AckClientIndividual {
		t.Fatalf("expected ack mode %q, got %q", spec.AckClientIndividual, sub.AckMode)
	}
}

func TestSubscribe_RejectsUnknownAckMode(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	h := frame.NewHeaders(frame.Header{Name: spec.HeaderAck, Value: "bogus"})
	_, _, err := s.Subscribe("/queue/a", h, "", nil)
	if !errors.HasCode(err, errors.ErrCodeInvalidHeader) {
		t.Fatalf("expected ErrCodeInvalidHeader, got %v", err)
	}
}

func TestDisconnect_AckedByMatchingReceipt(t *testing.T) {
	s := New(Options{})
	mustConnectAndHandshake(t, s, []spec.Version{spec.V12}, nil, spec.V12, "")

	if _, err := s.Disconnect("bye", nil); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if s.Phase() != PhaseDisconnecting {
		t.Fatalf("expected DISCONNECTING phase, got %s", s.Phase())
	}

	receipt := frame.New(spec.CmdReceipt, frame.NewHeaders(
		frame.Header{Name: spec.HeaderReceiptID, Value: "bye"},
	), nil)
	if _, err := s.Receive(receipt); err != nil {
		t.Fatalf("Receive(RECEIPT): %v", err)
	}
	if s.Phase() != PhaseDisconnected {
		t.Fatalf("expected DISCONNECTED phase after matching receipt, got %s", s.Phase())
	}
}
