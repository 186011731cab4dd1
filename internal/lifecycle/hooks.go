package lifecycle

import "context"

// Phase orders shutdown hooks. Hooks of one phase run concurrently; phases run in ascending order.
type Phase int

const (
	// PhaseDrain stops accepting work: readiness flips and the HTTP server shuts down.
	PhaseDrain Phase = iota
	// PhaseStop halts background workers such as cleaners and collectors.
	PhaseStop
	// PhaseClose releases connections and flushes reporters.
	PhaseClose
)

func (p Phase) String() string {
	switch p {
	case PhaseDrain:
		return "drain"
	case PhaseStop:
		return "stop"
	case PhaseClose:
		return "close"
	default:
		return "unknown"
	}
}

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
