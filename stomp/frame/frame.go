// Package frame implements the immutable STOMP frame value and its wire
// codec: rendering a Frame to bytes and escaping header components per
// the active protocol version.
//
// Frame itself never performs I/O; it is rendered into a caller-supplied
// io.Writer or returned as a new []byte. The streaming decode side lives
// in github.com/sergey-sobolev/stompest/stomp/parser; both sides use the
// escape tables of github.com/sergey-sobolev/stompest/stomp/spec, so
// decoding stays byte-for-byte inverse with Render.
package frame

import (
	"bytes"
	"io"
	"strconv"

	"github.com/sergey-sobolev/stompest/stomp/spec"
)

// Frame is an immutable (command, headers, body) triple.
type Frame struct {
	command string
	headers Headers
	body    []byte
}

// New constructs a Frame. headers is cloned so later mutation of the
// caller's Headers value cannot affect the Frame.
func New(command string, headers Headers, body []byte) *Frame {
	return &Frame{
		command: command,
		headers: headers.Clone(),
		body:    body,
	}
}

func (f *Frame) Command() string   { return f.command }
func (f *Frame) Headers() Headers  { return f.headers }
func (f *Frame) Body() []byte      { return f.body }

// Header returns the effective value of name and whether it is present.
func (f *Frame) Header(name string) (string, bool) {
	return f.headers.Get(name)
}

// Equal compares command, header sequence (order-sensitive) and body
// bytes, per spec.md §4.1.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.command == other.command &&
		f.headers.Equal(other.headers) &&
		bytes.Equal(f.body, other.body)
}

// Bytes renders f to its wire form under version.
func (f *Frame) Bytes(version spec.Version) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Render(&buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes f's wire form to w: command, LF, escaped headers, a blank
// line, the body, and the NUL terminator. If the body is non-empty and no
// content-length header is already present, a content-length header is
// inserted equal to the body length in bytes, per spec.md §4.1.
func (f *Frame) Render(w io.Writer, version spec.Version) error {
	if _, err := w.Write([]byte(f.command)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return err
	}

	_, hasContentLength := f.headers.Get(spec.HeaderContentLength)
	needsContentLength := len(f.body) > 0 && !hasContentLength

	for _, h := range f.headers.All() {
		if err := writeHeader(w, version, h.Name, h.Value); err != nil {
			return err
		}
	}
	if needsContentLength {
		if err := writeHeader(w, version, spec.HeaderContentLength, strconv.Itoa(len(f.body))); err != nil {
			return err
		}
	}

	if _, err := w.Write([]byte{'\n'}); err != nil {
		return err
	}
	if len(f.body) > 0 {
		if _, err := w.Write(f.body); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{0x00})
	return err
}

func writeHeader(w io.Writer, version spec.Version, name, value string) error {
	escapedName := EscapeHeaderComponent(version, name)
	escapedValue := value
	if name != spec.HeaderContentLength {
		escapedValue = EscapeHeaderComponent(version, value)
	}
	if _, err := w.Write([]byte(escapedName)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{':'}); err != nil {
		return err
	}
	if _, err := w.Write([]byte(escapedValue)); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// EscapeHeaderComponent escapes s (a header name or value) for inclusion
// on the wire under version, per the table in spec.md §6. Version 1.0
// performs no escaping at all.
func EscapeHeaderComponent(version spec.Version, s string) string {
	if !spec.EscapesSupported(version) {
		return s
	}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape, ok := spec.EncodeEscape(version, c); ok {
			buf.WriteByte('\\')
			buf.WriteByte(escape)
			continue
		}
		buf.WriteByte(c)
	}
	return buf.String()
}
