package session

// Status is the connection state reported to observers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Phase is where a session is in its lifecycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseLive          Phase = "live"
	PhaseDisposed      Phase = "disposed"
)
