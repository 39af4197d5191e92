package streamer

import (
	"context"
	"fmt"
	"log/slog"

	"live-streamer/internal/media"
)

// Supervisor owns the run-to-completion lifecycle of started pipelines:
//
//	Playing --(EOS | error | stop)--> Terminating --teardown--> Null
//
// Teardown sets the pipeline to media.StateNull and removes its handle from
// the registry. Pipeline errors are contained; they are logged, never returned.
type Supervisor struct {
	registry *Registry
	observer Observer
	log      *slog.Logger
}

// NewSupervisor returns a Supervisor reporting terminations to registry and obs.
// obs and log may be nil.
func NewSupervisor(registry *Registry, obs Observer, log *slog.Logger) *Supervisor {
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{registry: registry, observer: obs, log: log}
}

// Run blocks on h's bus until a terminal message arrives or ctx is cancelled,
// then tears the pipeline down. It returns nil for end-of-stream, pipeline
// errors and stop requests; only a missing or failed bus is reported.
func (s *Supervisor) Run(ctx context.Context, h *PipelineHandle) error {
	log := s.log.With(
		slog.String("stream_id", h.StreamID()),
		slog.String("resolution", h.resolution.String()),
		slog.String("handle_id", h.id),
	)

	bus, ok := h.pipeline.Bus()
	if !ok {
		log.Error("pipeline exposes no message bus")
		s.terminate(h, ReasonBusUnavailable, log)
		return fmt.Errorf("%w: stream %s at %s", ErrBusUnavailable, h.StreamID(), h.resolution)
	}

	for {
		msg, err := bus.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("stream stop requested")
				s.terminate(h, ReasonStopped, log)
				return nil
			}
			log.Error("pipeline bus failed", slog.String("error", err.Error()))
			s.terminate(h, ReasonBusUnavailable, log)
			return fmt.Errorf("%w: stream %s at %s: %w", ErrBusUnavailable, h.StreamID(), h.resolution, err)
		}

		switch msg.Type {
		case media.MessageEOS:
			log.Info("stream ended")
			s.terminate(h, ReasonEOS, log)
			return nil
		case media.MessageError:
			errText := "unknown error"
			if msg.Err != nil {
				errText = msg.Err.Error()
			}
			log.Error("error occurred during stream",
				slog.String("error", errText),
				slog.String("source", msg.Source),
				slog.String("debug", msg.Debug))
			s.terminate(h, ReasonError, log)
			return nil
		}
	}
}

func (s *Supervisor) terminate(h *PipelineHandle, reason TerminationReason, log *slog.Logger) {
	h.setState(PipelineTerminating)
	if err := h.pipeline.SetState(media.StateNull); err != nil {
		log.Error("failed to end stream pipeline", slog.String("error", err.Error()))
	} else {
		log.Debug("stream pipeline disposed")
	}
	h.setState(PipelineNull)

	s.registry.RemoveHandle(h.StreamID(), h.id)
	log.Debug("stream registry size",
		slog.Int("entries", s.registry.Size()),
		slog.Int("handles", s.registry.HandleCount()))

	s.observer.PipelineTerminated(h.StreamID(), h.resolution.Label(), string(reason))
}

