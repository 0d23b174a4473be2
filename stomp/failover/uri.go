// Package failover parses the failover transport URI grammar of
// spec.md §4.4 and produces the deterministic (endpoint, delay)
// sequence a caller should use to cycle through brokers on disconnect.
package failover

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sergey-sobolev/stompest/errors"
)

// Endpoint is a single broker address inside a failover URI.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// String renders the endpoint back to its scheme://host:port form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

var validSchemes = map[string]bool{"tcp": true, "ssl": true}

// URI is a parsed failover URI: the ordered endpoint list and the
// options governing how the sequence cycles through them.
type URI struct {
	Endpoints     []Endpoint
	Options       Options
	everConnected bool
}

// Connected marks that the caller has completed at least one successful
// connect through this URI. Every Iterator of this URI checks it on each
// Next call to decide whether
// StartupMaxReconnectAttempts still applies (it governs only the first
// connect cycle, before any success).
func (u *URI) Connected() {
	u.everConnected = true
}

// ParseURI parses a failover URI of the form
// "failover:(uri1,uri2,...)?k=v&..." or the shorthand
// "failover:uri1,uri2,...".
func ParseURI(raw string) (*URI, error) {
	const prefix = "failover:"
	if !strings.HasPrefix(raw, prefix) {
		return nil, errors.Newf(errors.ErrCodeInvalidHeader, "failover URI must start with %q: %q", prefix, raw)
	}
	rest := raw[len(prefix):]

	body, query, _ := strings.Cut(rest, "?")
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "(") {
		if !strings.HasSuffix(body, ")") {
			return nil, errors.Newf(errors.ErrCodeInvalidHeader, "unterminated endpoint list in %q", raw)
		}
		body = body[1 : len(body)-1]
	}

	var endpoints []Endpoint
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ep, err := parseEndpoint(part)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	if len(endpoints) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidHeader, "failover URI has no endpoints: %q", raw)
	}

	opts := DefaultOptions()
	if query != "" {
		if err := applyOptions(&opts, query); err != nil {
			return nil, err
		}
	}

	return &URI{Endpoints: endpoints, Options: opts}, nil
}

func parseEndpoint(s string) (Endpoint, error) {
	scheme, hostport, found := strings.Cut(s, "://")
	if !found {
		return Endpoint{}, errors.Newf(errors.ErrCodeInvalidHeader, "endpoint missing scheme: %q", s)
	}
	if !validSchemes[scheme] {
		return Endpoint{}, errors.Newf(errors.ErrCodeInvalidHeader, "unsupported endpoint scheme %q", scheme)
	}
	host, portStr, found := cutLast(hostport, ':')
	if !found {
		return Endpoint{}, errors.Newf(errors.ErrCodeInvalidHeader, "endpoint missing port: %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return Endpoint{}, errors.Newf(errors.ErrCodeInvalidHeader, "endpoint has an invalid port: %q", s)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port}, nil
}

func cutLast(s string, sep byte) (before, after string, found bool) {
	idx := strings.LastIndexByte(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

func applyOptions(opts *Options, query string) error {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return errors.Newf(errors.ErrCodeInvalidHeader, "malformed failover option: %q", pair)
		}
		if err := applyOption(opts, key, value); err != nil {
			return err
		}
	}
	return nil
}

func applyOption(opts *Options, key, value string) error {
	switch key {
	case "initialReconnectDelay":
		return setMillis(&opts.InitialReconnectDelay, value)
	case "maxReconnectDelay":
		return setMillis(&opts.MaxReconnectDelay, value)
	case "useExponentialBackOff":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Newf(errors.ErrCodeInvalidHeader, "invalid useExponentialBackOff value: %q", value)
		}
		opts.UseExponentialBackOff = b
	case "backOffMultiplier":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Newf(errors.ErrCodeInvalidHeader, "invalid backOffMultiplier value: %q", value)
		}
		opts.BackOffMultiplier = f
	case "maxReconnectAttempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.Newf(errors.ErrCodeInvalidHeader, "invalid maxReconnectAttempts value: %q", value)
		}
		opts.MaxReconnectAttempts = n
	case "startupMaxReconnectAttempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.Newf(errors.ErrCodeInvalidHeader, "invalid startupMaxReconnectAttempts value: %q", value)
		}
		opts.StartupMaxReconnectAttempts = n
	case "randomize":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Newf(errors.ErrCodeInvalidHeader, "invalid randomize value: %q", value)
		}
		opts.Randomize = b
	default:
		// Unrecognized options are ignored, matching the leniency of
		// most URI query-string parsers in this ecosystem.
	}
	return nil
}

func setMillis(d *time.Duration, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return errors.Newf(errors.ErrCodeInvalidHeader, "invalid millisecond value: %q", value)
	}
	*d = time.Duration(n) * time.Millisecond
	return nil
}
