package streamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-streamer/internal/media"
)

// Orchestrator launches multi-resolution streams and tracks them in a
// Registry until every pipeline has terminated.
type Orchestrator struct {
	builder    GraphBuilder
	registry   *Registry
	supervisor *Supervisor
	observer   Observer
	log        *slog.Logger

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithObserver registers an observer for pipeline lifecycle events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// New returns an Orchestrator that builds graphs with builder and records
// running streams in registry.
func New(builder GraphBuilder, registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder:  builder,
		registry: registry,
		observer: nopObserver{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.supervisor = NewSupervisor(registry, o.observer, o.log.With(slog.String("component", "supervisor")))
	return o
}

// Registry returns the registry the orchestrator records streams in.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Start builds and starts one pipeline per requested resolution, registers the
// stream and spawns a supervisor per pipeline. It returns once every pipeline
// is playing; the returned JoinHandles complete as the pipelines terminate.
//
// Start is all-or-nothing: if any resolution fails to build or start, every
// pipeline already started is stopped, nothing is registered and a *StartError
// is returned. Pipelines outlive ctx; use Stop or Shutdown to end them.
func (o *Orchestrator) Start(ctx context.Context, desc StreamDescriptor) ([]*JoinHandle, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shared := desc.clone()
	log := o.log.With(slog.String("stream_id", shared.StreamID))

	if _, exists := o.registry.Lookup(shared.StreamID); exists {
		log.Warn("stream id already registered, starting another entry")
	}

	type started struct {
		handle *PipelineHandle
		ctx    context.Context
	}
	runCtx := context.WithoutCancel(ctx)
	var running []started

	abort := func(r Resolution, err error) ([]*JoinHandle, error) {
		for _, s := range running {
			s.handle.cancel()
			if serr := s.handle.pipeline.SetState(media.StateNull); serr != nil {
				log.Error("failed to dispose pipeline after aborted start",
					slog.String("resolution", s.handle.resolution.String()),
					slog.String("error", serr.Error()))
			}
			s.handle.setState(PipelineNull)
		}
		log.Error("stream start aborted",
			slog.String("resolution", r.String()),
			slog.String("error", err.Error()))
		return nil, &StartError{StreamID: shared.StreamID, Resolution: r, Err: err}
	}

	for _, r := range shared.Resolutions {
		p, err := o.builder.Build(shared, r)
		if err != nil {
			return abort(r, err)
		}
		h, hctx := newPipelineHandle(runCtx, shared, r, p)
		if err := p.SetState(media.StatePlaying); err != nil {
			h.cancel()
			if serr := p.SetState(media.StateNull); serr != nil {
				log.Error("failed to dispose pipeline", slog.String("resolution", r.String()), slog.String("error", serr.Error()))
			}
			return abort(r, fmt.Errorf("set %s pipeline playing: %w", r, err))
		}
		h.setState(PipelinePlaying)
		running = append(running, started{handle: h, ctx: hctx})
		log.Info("stream pipeline started",
			slog.String("resolution", r.String()),
			slog.String("handle_id", h.id))
	}

	handles := make([]*PipelineHandle, len(running))
	for i, s := range running {
		handles[i] = s.handle
	}
	o.registry.Push(shared, handles)
	log.Debug("stream registered", slog.Int("entries", o.registry.Size()))

	joins := make([]*JoinHandle, len(running))
	for i, s := range running {
		j := newJoinHandle(s.handle)
		joins[i] = j
		o.observer.PipelineStarted(shared.StreamID, s.handle.resolution.Label())
		o.wg.Add(1)
		go func(h *PipelineHandle, hctx context.Context) {
			defer o.wg.Done()
			j.finish(o.supervisor.Run(hctx, h))
		}(s.handle, s.ctx)
	}
	return joins, nil
}

// Stop requests termination of every pipeline of streamID, across every entry
// registered under that id. It does not wait; use the JoinHandles returned by
// Start for that.
func (o *Orchestrator) Stop(streamID string) error {
	found := false
	pipelines := 0
	for _, e := range o.registry.Entries() {
		if e.Descriptor.StreamID != streamID {
			continue
		}
		found = true
		for _, h := range e.Handles {
			h.Stop()
			pipelines++
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	o.log.Info("stream stop requested",
		slog.String("stream_id", streamID),
		slog.Int("pipelines", pipelines))
	return nil
}

// PipelineStatus describes one pipeline of a registered stream.
type PipelineStatus struct {
	HandleID   string        `json:"handle_id"`
	Resolution Resolution    `json:"resolution"`
	State      PipelineState `json:"-"`
	StateName  string        `json:"state"`
}

// StreamStatus describes a registered stream and its live pipelines.
type StreamStatus struct {
	StreamID   string           `json:"stream_id"`
	SourcePath string           `json:"source_path"`
	Pipelines  []PipelineStatus `json:"pipelines"`
}

// Describe reports the live pipelines of the first entry registered as streamID.
func (o *Orchestrator) Describe(streamID string) (StreamStatus, error) {
	entry, ok := o.registry.Lookup(streamID)
	if !ok {
		return StreamStatus{}, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	st := StreamStatus{
		StreamID:   entry.Descriptor.StreamID,
		SourcePath: entry.Descriptor.SourcePath,
		Pipelines:  make([]PipelineStatus, 0, len(entry.Handles)),
	}
	for _, h := range entry.Handles {
		state := h.State()
		st.Pipelines = append(st.Pipelines, PipelineStatus{
			HandleID:   h.id,
			Resolution: h.resolution,
			State:      state,
			StateName:  state.String(),
		})
	}
	return st, nil
}

// Shutdown stops every registered pipeline and waits for all supervisors to
// return, or for ctx to be done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	entries := o.registry.Entries()
	for _, e := range entries {
		for _, h := range e.Handles {
			h.Stop()
		}
	}
	o.log.Info("stopping all streams", slog.Int("streams", len(entries)))

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("supervisors still running"), ctx.Err())
	}
}
