// Package telemetry reports preprocessing job lifecycle events. Sinks are purely
// observational: they never fail a job and callers do not check their results.
package telemetry

// Sink receives job lifecycle events.
type Sink interface {
	OnStart(jobID, name string)
	OnPhase(jobID, phase string)
	OnEvent(jobID, kind, message, detail string)
	OnComplete(jobID string)
	OnFail(jobID, reason string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnStart(string, string)                 {}
func (Nop) OnPhase(string, string)                 {}
func (Nop) OnEvent(string, string, string, string) {}
func (Nop) OnComplete(string)                      {}
func (Nop) OnFail(string, string)                  {}

// Multi fans events out to several sinks in order.
type Multi []Sink

// Combine returns a sink forwarding to every non-nil sink in sinks.
func Combine(sinks ...Sink) Sink {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m Multi) OnStart(jobID, name string) {
	for _, s := range m {
		s.OnStart(jobID, name)
	}
}

func (m Multi) OnPhase(jobID, phase string) {
	for _, s := range m {
		s.OnPhase(jobID, phase)
	}
}

func (m Multi) OnEvent(jobID, kind, message, detail string) {
	for _, s := range m {
		s.OnEvent(jobID, kind, message, detail)
	}
}

func (m Multi) OnComplete(jobID string) {
	for _, s := range m {
		s.OnComplete(jobID)
	}
}

func (m Multi) OnFail(jobID, reason string) {
	for _, s := range m {
		s.OnFail(jobID, reason)
	}
}
