package classify

import (
	"strings"

	"n2nmaid"
)

// failureClass is one entry of the closed failure set. match receives the
// lowercased line. Order matters: the first match wins.
type failureClass struct {
	reason string
	match  func(l string) bool
}

var failureClasses = []failureClass{
	{n2nmaid.ReasonTapBusy, func(l string) bool {
		return strings.Contains(l, "tunsetiff") && strings.Contains(l, "resource busy")
	}},
	{n2nmaid.ReasonTapCreateDenied, func(l string) bool {
		return containsAny(l,
			"tuntap open() error",
			"failed to open tap",
			"unable to open tap",
			"failed to create tap",
			"tunsetiff",
		)
	}},
	{n2nmaid.ReasonAddressInUse, func(l string) bool {
		return strings.Contains(l, "already in use")
	}},
	{n2nmaid.ReasonPermissionDenied, func(l string) bool {
		return containsAny(l, "operation not permitted", "permission denied", "eperm")
	}},
	{n2nmaid.ReasonSupernodeUnreached, func(l string) bool {
		return containsAny(l,
			"no route to host",
			"network is unreachable",
			"host is unreachable",
			"connection timed out",
			"unable to resolve",
			"failed to resolve",
			"supernode not responding",
		)
	}},
	{n2nmaid.ReasonAuthFailed, func(l string) bool {
		return strings.Contains(l, "authentication error") ||
			strings.Contains(l, "unauthorized") ||
			(strings.Contains(l, "auth") && strings.Contains(l, "error"))
	}},
}

func failureReason(lower string) (string, bool) {
	for _, fc := range failureClasses {
		if fc.match(lower) {
			return fc.reason, true
		}
	}
	return "", false
}

// Reasons lists every reason code the classifier can emit, in match order.
func Reasons() []string {
	out := make([]string, len(failureClasses))
	for i, fc := range failureClasses {
		out[i] = fc.reason
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
