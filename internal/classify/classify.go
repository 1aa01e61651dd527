// Package classify maps raw edge output lines to log records and status
// signals. Classification is pure: no I/O, no shared state, never fails.
package classify

import (
	"net/netip"
	"regexp"
	"strings"

	"n2nmaid"
)

// Stream identifies which pipe a line came from.
type Stream uint8

const (
	Stdout Stream = iota + 1
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

type SignalKind uint8

const (
	// SignalConnected reports the edge registered with its supernode.
	SignalConnected SignalKind = iota + 1
	// SignalError reports a fatal condition identified by Reason.
	SignalError
	// SignalIdentity carries interface identity and changes no state.
	SignalIdentity
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalError:
		return "error"
	case SignalIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

type Signal struct {
	Kind     SignalKind
	Reason   string
	Identity n2nmaid.NetworkInfo
}

// Result is the outcome of classifying one line. Record has no time or
// session; the caller stamps them.
type Result struct {
	Record n2nmaid.LogRecord
	Signal *Signal
	// Unrecognized marks lines without a signal that still read like a
	// failure. A rising count means the markers drifted from the binary.
	Unrecognized bool
}

var (
	ipv4Pattern     = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)
	severityPattern = regexp.MustCompile(`\b(WARNING|WARN|INFO)\s*[:\]]`)
	ifacePattern    = regexp.MustCompile(`(?i)\b(?:interface|device)\s+['"]?([A-Za-z0-9_.\-]+)['"]?\s+(?:created|opened|is up)\b`)
)

const tapDeviceMarker = "created local tap device"

// Classify maps one line from stream to a record and an optional signal.
func Classify(stream Stream, line string) Result {
	text := strings.TrimRight(strings.ToValidUTF8(line, "�"), "\r\n")
	lower := strings.ToLower(text)

	res := Result{Record: n2nmaid.LogRecord{Level: originLevel(stream), Text: text}}

	if reason, ok := failureReason(lower); ok {
		res.Record.Level = n2nmaid.LevelErr
		res.Signal = &Signal{Kind: SignalError, Reason: reason}
		return res
	}

	if ident, ok := successIdentity(text, lower); ok {
		res.Record.Level = n2nmaid.LevelInfo
		res.Signal = &Signal{Kind: SignalConnected, Identity: ident}
		return res
	}

	if lvl, ok := severityLevel(text); ok {
		res.Record.Level = lvl
	}

	if strings.Contains(lower, tapDeviceMarker) {
		if ident, ok := parseTapDevice(text); ok {
			res.Signal = &Signal{Kind: SignalIdentity, Identity: ident}
			return res
		}
	}
	if m := ifacePattern.FindStringSubmatch(text); m != nil {
		res.Signal = &Signal{Kind: SignalIdentity, Identity: n2nmaid.NetworkInfo{Interface: m[1]}}
		return res
	}

	res.Unrecognized = looksLikeFailure(lower)
	return res
}

func originLevel(stream Stream) n2nmaid.Level {
	if stream == Stderr {
		return n2nmaid.LevelErr
	}
	return n2nmaid.LevelOut
}

func severityLevel(text string) (n2nmaid.Level, bool) {
	m := severityPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	if m[1] == "INFO" {
		return n2nmaid.LevelInfo, true
	}
	return n2nmaid.LevelWarn, true
}

// successIdentity matches the registration markers. The first IPv4 literal
// following the marker is reported as the assigned address.
func successIdentity(text, lower string) (n2nmaid.NetworkInfo, bool) {
	if strings.Contains(lower, "not registered") || strings.Contains(lower, "unregistered") {
		return n2nmaid.NetworkInfo{}, false
	}
	idx := -1
	for _, marker := range []string{"registered with", "edge <<<"} {
		if i := strings.Index(lower, marker); i >= 0 {
			idx = i + len(marker)
			break
		}
	}
	if idx < 0 {
		return n2nmaid.NetworkInfo{}, false
	}

	var ident n2nmaid.NetworkInfo
	if m := ipv4Pattern.FindStringSubmatch(text[idx:]); m != nil {
		if addr, err := netip.ParseAddr(m[1]); err == nil && addr.Is4() {
			ident.IP = addr.String()
		}
	}
	return ident, true
}

// parseTapDevice reads "created local tap device IP: a, Mask: m, MAC: x".
func parseTapDevice(text string) (n2nmaid.NetworkInfo, bool) {
	ip, ok := extractField(text, "IP:")
	if !ok {
		return n2nmaid.NetworkInfo{}, false
	}
	mask, _ := extractField(text, "Mask:")
	mac, _ := extractField(text, "MAC:")
	return n2nmaid.NetworkInfo{IP: ip, Mask: mask, MAC: mac}, true
}

func extractField(text, field string) (string, bool) {
	i := strings.Index(text, field)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(text[i+len(field):])
	if j := strings.IndexByte(rest, ','); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func looksLikeFailure(lower string) bool {
	return strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "cannot")
}
