package frame

import (
	"testing"

	"github.com/sergey-sobolev/stompest/stomp/spec"
)

func TestRender_InsertsContentLength(t *testing.T) {
	headers := NewHeaders(Header{Name: "destination", Value: "/queue/a"})
	f := New(spec.CmdSend, headers, []byte("hello"))

	out, err := f.Bytes(spec.V12)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	want := "SEND\ndestination:/queue/a\ncontent-length:5\n\nhello\x00"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRender_EmptyBodyNoContentLength(t *testing.T) {
	f := New(spec.CmdDisconnect, NewHeaders(), nil)

	out, err := f.Bytes(spec.V12)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	want := "DISCONNECT\n\n\x00"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRender_RespectsExistingContentLength(t *testing.T) {
	headers := NewHeaders(Header{Name: "content-length", Value: "0"})
	f := New(spec.CmdSend, headers, []byte("ignored-by-header"))

	out, err := f.Bytes(spec.V12)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	want := "SEND\ncontent-length:0\n\nignored-by-header\x00"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestEscapeHeaderComponent(t *testing.T) {
	tests := []struct {
		version spec.Version
		in      string
		want    string
	}{
		{spec.V10, "a:b\nc\\d", "a:b\nc\\d"},
		{spec.V11, "a:b\nc\\d", `a\cb\nc\\d`},
		{spec.V12, "a:b\nc\\d\re", `a\cb\nc\\d\re`},
	}
	for _, tt := range tests {
		got := EscapeHeaderComponent(tt.version, tt.in)
		if got != tt.want {
			t.Errorf("EscapeHeaderComponent(%s, %q) = %q, want %q", tt.version, tt.in, got, tt.want)
		}
	}
}

func TestHeadersFirstWins(t *testing.T) {
	h := NewHeaders(
		Header{Name: "foo", Value: "first"},
		Header{Name: "foo", Value: "second"},
	)
	v, ok := h.Get("foo")
	if !ok || v != "first" {
		t.Fatalf("expected first-wins value %q, got %q ok=%v", "first", v, ok)
	}
	if h.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", h.Len())
	}
}

func TestFrameEqual(t *testing.T) {
	a := New(spec.CmdSend, NewHeaders(Header{Name: "destination", Value: "/q"}), []byte("x"))
	b := New(spec.CmdSend, NewHeaders(Header{Name: "destination", Value: "/q"}), []byte("x"))
	c := New(spec.CmdSend, NewHeaders(Header{Name: "destination", Value: "/other"}), []byte("x"))

	if !a.Equal(b) {
		t.Fatalf("expected equal frames to compare equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected frames with different headers to compare unequal")
	}
}
