package telemetry

/*
Telemetry - small pub/sub contract used by every other component to
broadcast what happened without knowing who, if anyone, is listening.

Event names are colon-qualified: "url:visited", "domain:throttled",
"step:error", "sequence:complete". Emission is synchronous: Emit walks
every subscriber on the calling goroutine and returns once they have
all run.
*/

// Event is what a subscriber receives: the event name plus a
// loosely-typed payload of attributes. Components pass primitive
// values only (strings, numbers, durations-as-ms), never objects with
// behavior, consistent with internal/metadata's attribute discipline.
type Event struct {
	Name    string
	Payload map[string]any
}

// Listener is a subscriber callback. It must not panic; Telemetry
// recovers from listener panics so one bad subscriber cannot take down
// the emission loop, but a listener returning an error is still
// expected to log it itself (Telemetry has no logger of its own).
type Listener func(Event)

// Unsubscribe removes a previously registered listener.
type Unsubscribe func()
