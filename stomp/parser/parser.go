// Package parser implements the streaming STOMP frame decoder: a
// byte-fed incremental state machine that turns arbitrary chunk
// boundaries into a frame/heart-beat event stream, per spec.md §4.2.
//
// The state machine is explicit and recoverable only by Reset, matching
// the "poisoned state after any error" redesign of a stateful parser
// with implicit exception-driven transitions.
package parser

import (
	"bytes"

	"github.com/sergey-sobolev/stompest/errors"
	"github.com/sergey-sobolev/stompest/stomp/frame"
	"github.com/sergey-sobolev/stompest/stomp/spec"
)

type state int

const (
	statePreCommand state = iota
	stateCommand
	stateHeaders
	stateBodyLengthDelimited
	stateBodyNulDelimited
	statePoisoned
)

// Parser is a streaming, single-frame-at-a-time STOMP decoder. It is not
// safe for concurrent use; a Parser belongs to exactly one logical
// connection, same as the Session built on top of it.
type Parser struct {
	version spec.Version
	limits  Limits
	strict  bool

	state     state
	pendingCR bool

	line bytes.Buffer

	command     string
	headers     frame.Headers
	headerCount int

	contentLength int // -1 means NUL-delimited
	body          bytes.Buffer

	frameSize int

	events []Event
}

// NewParser constructs a Parser configured to decode the given version.
// Zero-value Limits in opts are replaced with DefaultLimits.
func NewParser(version spec.Version, opts Options) *Parser {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	p := &Parser{
		version: version,
		limits:  opts.Limits,
		strict:  opts.StrictCR,
	}
	p.resetFrame()
	return p
}

// Version reports the version the parser currently decodes under.
func (p *Parser) Version() spec.Version {
	return p.version
}

// SetVersion updates the version the parser decodes under. A caller
// driving a Session calls this once version negotiation completes. It
// takes effect immediately: the remaining bytes of a frame already in
// progress are also decoded under the new version.
func (p *Parser) SetVersion(v spec.Version) {
	p.version = v
}

// Reset discards any partially parsed frame and clears the poisoned
// state, starting fresh at PRE_COMMAND.
func (p *Parser) Reset() {
	p.state = statePreCommand
	p.pendingCR = false
	p.resetFrame()
}

func (p *Parser) resetFrame() {
	p.state = statePreCommand
	p.pendingCR = false
	p.line.Reset()
	p.command = ""
	p.headers = frame.Headers{}
	p.headerCount = 0
	p.contentLength = -1
	p.body.Reset()
	p.frameSize = 0
}

// Feed decodes chunk and returns the events it produced, in byte order.
// Once an error is returned the parser is poisoned: every subsequent
// Feed call returns a parse error until Reset is called.
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	if p.state == statePoisoned {
		return nil, errors.New(errors.ErrCodeParse, "parser is poisoned; call Reset before feeding more data")
	}
	p.events = p.events[:0]
	for _, b := range chunk {
		if err := p.step(b); err != nil {
			p.state = statePoisoned
			return p.events, err
		}
	}
	return p.events, nil
}

func (p *Parser) emit(e Event) {
	p.events = append(p.events, e)
}

func (p *Parser) step(b byte) error {
	switch p.state {
	case statePreCommand:
		return p.stepPreCommand(b)
	case stateCommand:
		return p.stepCommand(b)
	case stateHeaders:
		return p.stepHeaders(b)
	case stateBodyLengthDelimited:
		return p.stepBodyLengthDelimited(b)
	case stateBodyNulDelimited:
		return p.stepBodyNulDelimited(b)
	default:
		return errors.New(errors.ErrCodeParse, "parser is poisoned; call Reset before feeding more data")
	}
}

func (p *Parser) stepPreCommand(b byte) error {
	if p.pendingCR {
		p.pendingCR = false
		if b == '\n' {
			if p.version != spec.V10 {
				p.emit(Event{Kind: EventHeartBeat})
			}
			return nil
		}
		if p.strict {
			return errors.New(errors.ErrCodeParse, "stray CR not followed by LF")
		}
		p.state = stateCommand
		if err := p.appendLine('\r'); err != nil {
			return err
		}
		return p.stepCommand(b)
	}
	switch b {
	case '\r':
		p.pendingCR = true
		return nil
	case '\n':
		if p.version != spec.V10 {
			p.emit(Event{Kind: EventHeartBeat})
		}
		return nil
	default:
		p.state = stateCommand
		return p.stepCommand(b)
	}
}

func (p *Parser) stepCommand(b byte) error {
	if p.pendingCR {
		p.pendingCR = false
		if b == '\n' {
			return p.finishCommandLine()
		}
		if p.strict {
			return errors.New(errors.ErrCodeParse, "stray CR not followed by LF")
		}
		if err := p.appendLine('\r'); err != nil {
			return err
		}
		return p.stepCommand(b)
	}
	switch b {
	case '\r':
		p.pendingCR = true
		return nil
	case '\n':
		return p.finishCommandLine()
	default:
		return p.appendLine(b)
	}
}

func (p *Parser) finishCommandLine() error {
	command := p.line.String()
	p.line.Reset()
	if p.version == spec.V10 && !isASCII(command) {
		return errors.New(errors.ErrCodeParse, "non-ASCII command under version 1.0")
	}
	if !spec.IsKnownCommand(p.version, command) {
		return errors.Newf(errors.ErrCodeParse, "unknown command %q", command)
	}
	p.command = command
	p.headers = frame.Headers{}
	p.headerCount = 0
	p.state = stateHeaders
	return nil
}

func (p *Parser) stepHeaders(b byte) error {
	if p.pendingCR {
		p.pendingCR = false
		if b == '\n' {
			return p.finishHeaderLine()
		}
		if p.strict {
			return errors.New(errors.ErrCodeParse, "stray CR not followed by LF")
		}
		if err := p.appendLine('\r'); err != nil {
			return err
		}
		return p.stepHeaders(b)
	}
	switch b {
	case '\r':
		p.pendingCR = true
		return nil
	case '\n':
		return p.finishHeaderLine()
	default:
		return p.appendLine(b)
	}
}

func (p *Parser) finishHeaderLine() error {
	raw := p.line.Bytes()
	line := make([]byte, len(raw))
	copy(line, raw)
	p.line.Reset()

	if len(line) == 0 {
		return p.finishHeaders()
	}

	if p.version == spec.V10 && !isASCII(string(line)) {
		return errors.New(errors.ErrCodeParse, "non-ASCII header under version 1.0")
	}

	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return errors.Newf(errors.ErrCodeParse, "header line has no separator: %q", line)
	}
	name, err := p.unescape(line[:idx])
	if err != nil {
		return err
	}
	value, err := p.unescape(line[idx+1:])
	if err != nil {
		return err
	}

	p.headerCount++
	if p.headerCount > p.limits.MaxHeaderCount {
		return errors.New(errors.ErrCodeParse, "too many headers")
	}
	p.headers.Add(name, value)
	return nil
}

func (p *Parser) finishHeaders() error {
	if raw, ok := p.headers.Get(spec.HeaderContentLength); ok {
		n, err := parseNonNegativeInt(raw)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidHeader, "invalid content-length header")
		}
		p.contentLength = n
		p.state = stateBodyLengthDelimited
	} else {
		p.contentLength = -1
		p.state = stateBodyNulDelimited
	}
	p.body.Reset()
	return nil
}

func (p *Parser) stepBodyLengthDelimited(b byte) error {
	if p.body.Len() < p.contentLength {
		if err := p.appendFrameByte(&p.body, b); err != nil {
			return err
		}
		return nil
	}
	if b != 0x00 {
		return errors.New(errors.ErrCodeParse, "missing NUL terminator after content-length-delimited body")
	}
	return p.finishBody()
}

func (p *Parser) stepBodyNulDelimited(b byte) error {
	if b == 0x00 {
		return p.finishBody()
	}
	return p.appendFrameByte(&p.body, b)
}

func (p *Parser) finishBody() error {
	body := make([]byte, p.body.Len())
	copy(body, p.body.Bytes())

	if len(body) > 0 && !spec.BodyAllowed(p.version, p.command) {
		return errors.Newf(errors.ErrCodeParse, "command %s does not allow a body", p.command)
	}

	f := frame.New(p.command, p.headers, body)
	p.emit(Event{Kind: EventFrame, Frame: f})
	p.resetFrame()
	return nil
}

func (p *Parser) appendLine(b byte) error {
	if p.line.Len() >= p.limits.MaxHeaderLineLength {
		return errors.New(errors.ErrCodeParse, "line exceeds maximum length")
	}
	return p.appendFrameByte(&p.line, b)
}

func (p *Parser) appendFrameByte(buf *bytes.Buffer, b byte) error {
	p.frameSize++
	if p.frameSize > p.limits.MaxFrameSize {
		return errors.New(errors.ErrCodeParse, "frame exceeds maximum size")
	}
	buf.WriteByte(b)
	return nil
}

// unescape decodes a raw (still-escaped) header name or value component.
func (p *Parser) unescape(raw []byte) (string, error) {
	if !spec.EscapesSupported(p.version) {
		return string(raw), nil
	}
	var out bytes.Buffer
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '\\':
			i++
			if i >= len(raw) {
				return "", errors.New(errors.ErrCodeParse, "trailing backslash in header component")
			}
			decoded, ok := spec.DecodeEscape(p.version, raw[i])
			if !ok {
				return "", errors.Newf(errors.ErrCodeParse, "no escape sequence defined for %q", raw[i])
			}
			out.WriteByte(decoded)
		case ':':
			return "", errors.New(errors.ErrCodeParse, "unescaped ':' in header component")
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return 0, errors.New(errors.ErrCodeInvalidHeader, "empty content-length")
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, errors.Newf(errors.ErrCodeInvalidHeader, "content-length is not a non-negative integer: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
