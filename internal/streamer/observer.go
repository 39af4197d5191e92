package streamer

// TerminationReason says why a supervisor tore its pipeline down.
type TerminationReason string

const (
	ReasonEOS            TerminationReason = "eos"
	ReasonError          TerminationReason = "error"
	ReasonStopped        TerminationReason = "stopped"
	ReasonBusUnavailable TerminationReason = "bus_unavailable"
)

// Observer is notified of pipeline lifecycle transitions. Resolutions are
// reported by label ("360"). Implementations must be safe for concurrent use.
type Observer interface {
	PipelineStarted(streamID, resolution string)
	PipelineTerminated(streamID, resolution, reason string)
}

type nopObserver struct{}

func (nopObserver) PipelineStarted(string, string)            {}
func (nopObserver) PipelineTerminated(string, string, string) {}
