/*
Package capture decides when screenshots are taken and takes them.

Triggers from three sources (a periodic timer, the activity monitor and
manual commands) are merged by the Coordinator onto one execution path,
filtered by a cooldown window, and handed to the Recorder, which holds the
screen as a mutually exclusive resource. The Controller keeps the
activity monitor running exactly when recording and event triggers are
both enabled.
*/
package capture

import "fmt"

// Kind is the source of a trigger. Higher kinds win ties.
type Kind int

const (
	Periodic Kind = iota
	Event
	Manual
)

func (k Kind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case Event:
		return "event"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Trigger is a request to attempt a capture.
type Trigger struct {
	Kind Kind

	// Reason describes what was detected. Set for Event triggers only.
	Reason string
}

// PeriodicTrigger is sent by the interval timer.
func PeriodicTrigger() Trigger { return Trigger{Kind: Periodic} }

// EventTrigger is sent by an activity source with what it detected.
func EventTrigger(reason string) Trigger { return Trigger{Kind: Event, Reason: reason} }

// ManualTrigger is an explicit "capture now" command.
func ManualTrigger() Trigger { return Trigger{Kind: Manual} }

func (t Trigger) String() string {
	if t.Kind == Event && t.Reason != "" {
		return "event: " + t.Reason
	}
	return t.Kind.String()
}
