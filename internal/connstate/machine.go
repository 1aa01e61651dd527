// Package connstate holds the connection state machine for one supervised
// edge process. It is not goroutine-safe; the owner serializes access.
package connstate

import (
	"errors"
	"fmt"

	"n2nmaid"
)

// ErrIllegalTransition is returned by Apply for an event that has no edge
// from the current status. The machine is left unchanged.
var ErrIllegalTransition = errors.New("illegal connection state transition")

type Event uint8

const (
	EventStart Event = iota + 1
	EventConnected
	EventFail
	EventStop
	EventExited
	EventForceStop
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventConnected:
		return "connected"
	case EventFail:
		return "fail"
	case EventStop:
		return "stop"
	case EventExited:
		return "exited"
	case EventForceStop:
		return "force_stop"
	default:
		return "unknown"
	}
}

// Next returns the status reached from `from` on ev. ok is false when the
// pair is not in the transition table.
func Next(from n2nmaid.Status, ev Event) (to n2nmaid.Status, ok bool) {
	switch from {
	case n2nmaid.StatusDisconnected:
		if ev == EventStart {
			return n2nmaid.StatusConnecting, true
		}
	case n2nmaid.StatusError:
		switch ev {
		case EventStart:
			return n2nmaid.StatusConnecting, true
		case EventForceStop:
			// Clears the error after the lingering process was killed.
			return n2nmaid.StatusDisconnected, true
		}
	case n2nmaid.StatusConnecting:
		switch ev {
		case EventConnected:
			return n2nmaid.StatusConnected, true
		case EventFail, EventExited:
			return n2nmaid.StatusError, true
		case EventStop:
			return n2nmaid.StatusDisconnecting, true
		}
	case n2nmaid.StatusConnected:
		switch ev {
		case EventFail, EventExited:
			return n2nmaid.StatusError, true
		case EventStop:
			return n2nmaid.StatusDisconnecting, true
		}
	case n2nmaid.StatusDisconnecting:
		if ev == EventExited || ev == EventForceStop {
			return n2nmaid.StatusDisconnected, true
		}
	}
	return from, false
}

// Transition records one applied edge.
type Transition struct {
	From   n2nmaid.Status
	To     n2nmaid.Status
	Event  Event
	Reason string
}

func (t Transition) String() string {
	if t.Reason != "" {
		return fmt.Sprintf("%s -> %s on %s (%s)", t.From, t.To, t.Event, t.Reason)
	}
	return fmt.Sprintf("%s -> %s on %s", t.From, t.To, t.Event)
}

// Machine tracks the current status, the error reason and the network
// identity attached to the connected status.
type Machine struct {
	status n2nmaid.Status
	reason string
	info   *n2nmaid.NetworkInfo

	// OnTransition, if set, observes every applied transition.
	OnTransition func(Transition)
}

// New returns a machine in the disconnected status.
func New() *Machine {
	return &Machine{status: n2nmaid.StatusDisconnected}
}

func (m *Machine) Status() n2nmaid.Status { return m.status }

// Reason is the reason code of the error status, empty otherwise.
func (m *Machine) Reason() string { return m.reason }

// NetworkInfo returns a copy of the attached identity, nil unless connected.
func (m *Machine) NetworkInfo() *n2nmaid.NetworkInfo {
	if m.info == nil {
		return nil
	}
	info := *m.info
	return &info
}

// Apply moves the machine along the edge for ev. reason is only used by
// EventFail; EventExited without a stop request always reports
// n2nmaid.ReasonEdgeExited.
func (m *Machine) Apply(ev Event, reason string) (Transition, error) {
	to, ok := Next(m.status, ev)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, m.status, ev)
	}

	tr := Transition{From: m.status, To: to, Event: ev}
	switch {
	case to == n2nmaid.StatusError && ev == EventExited:
		tr.Reason = n2nmaid.ReasonEdgeExited
	case to == n2nmaid.StatusError:
		tr.Reason = reason
	}

	m.status = to
	m.reason = tr.Reason
	if to != n2nmaid.StatusConnected {
		m.info = nil
	}
	if m.OnTransition != nil {
		m.OnTransition(tr)
	}
	return tr, nil
}

// AttachNetworkInfo sets the identity of the connected status. It reports
// false, leaving the machine unchanged, when not connected.
func (m *Machine) AttachNetworkInfo(info n2nmaid.NetworkInfo) bool {
	if m.status != n2nmaid.StatusConnected {
		return false
	}
	m.info = &info
	return true
}
