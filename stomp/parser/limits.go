package parser

// Limits bounds the resources a single frame may consume while being
// parsed. Exceeding any of them poisons the parser.
type Limits struct {
	// MaxFrameSize bounds the total bytes (command + headers + body,
	// excluding the terminating NUL) of a single frame.
	MaxFrameSize int
	// MaxHeaderCount bounds the number of header lines a frame may
	// carry, repeated names included.
	MaxHeaderCount int
	// MaxHeaderLineLength bounds the length of a single command or
	// header line, before unescaping.
	MaxHeaderLineLength int
}

// DefaultLimits returns generous bounds suitable for a well-behaved
// broker connection.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameSize:        10 * 1024 * 1024,
		MaxHeaderCount:      1000,
		MaxHeaderLineLength: 8 * 1024,
	}
}

// Options configures a Parser.
type Options struct {
	Limits Limits
	// StrictCR, when true (the default), rejects a CR byte that is not
	// immediately followed by LF. When false, such a stray CR is kept
	// as a literal byte instead of being rejected. spec.md §9 leaves
	// this open; strict-by-spec is the default.
	StrictCR bool
}

// DefaultOptions returns Options with DefaultLimits and StrictCR enabled.
func DefaultOptions() Options {
	return Options{Limits: DefaultLimits(), StrictCR: true}
}
