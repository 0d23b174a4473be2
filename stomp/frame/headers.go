package frame

// Header is a single name/value pair as it appears on the wire.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered, first-wins collection of headers: the order
// headers were added is preserved on the wire, and Add discards any
// later header with an already-present name, so a lookup returns the
// first occurrence, matching the wire semantics of spec.md §3 ("the
// FIRST occurrence of a repeated name is the effective value"). Set is
// the exception: it overwrites the existing value in place.
type Headers struct {
	entries []Header
	index   map[string]int
}

// NewHeaders builds a Headers collection from an ordered list of pairs,
// applying first-wins semantics to any duplicate names.
func NewHeaders(pairs ...Header) Headers {
	h := Headers{}
	for _, p := range pairs {
		h.Add(p.Name, p.Value)
	}
	return h
}

// Add appends a header, unless a header with this name was already
// added, in which case it is silently discarded (first wins).
func (h *Headers) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	if _, exists := h.index[name]; exists {
		return
	}
	h.index[name] = len(h.entries)
	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Set adds name if absent, or overwrites its existing value in place
// (keeping its original position) if present.
func (h *Headers) Set(name, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	if i, exists := h.index[name]; exists {
		h.entries[i].Value = value
		return
	}
	h.index[name] = len(h.entries)
	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Get returns the effective value for name and whether it is present.
func (h Headers) Get(name string) (string, bool) {
	if h.index == nil {
		return "", false
	}
	i, ok := h.index[name]
	if !ok {
		return "", false
	}
	return h.entries[i].Value, true
}

// Len returns the number of distinct header names.
func (h Headers) Len() int {
	return len(h.entries)
}

// All returns the headers in wire order. The returned slice must not be
// mutated by the caller.
func (h Headers) All() []Header {
	return h.entries
}

// Clone returns an independent copy of h.
func (h Headers) Clone() Headers {
	out := Headers{entries: make([]Header, len(h.entries)), index: make(map[string]int, len(h.index))}
	copy(out.entries, h.entries)
	for k, v := range h.index {
		out.index[k] = v
	}
	return out
}

// Equal reports whether h and other have the same headers in the same
// order — equality is order-sensitive per spec.md §4.1.
func (h Headers) Equal(other Headers) bool {
	if len(h.entries) != len(other.entries) {
		return false
	}
	for i := range h.entries {
		if h.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}
