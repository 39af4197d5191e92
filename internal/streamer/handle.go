package streamer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"live-streamer/internal/media"
)

// PipelineState is the supervision state of one per-resolution pipeline.
type PipelineState int32

const (
	PipelineNull PipelineState = iota
	PipelinePlaying
	PipelineTerminating
)

func (s PipelineState) String() string {
	switch s {
	case PipelineNull:
		return "null"
	case PipelinePlaying:
		return "playing"
	case PipelineTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("pipeline_state(%d)", int32(s))
	}
}

// PipelineHandle references one running per-resolution pipeline. Only the
// supervisor that runs it transitions or disposes the pipeline; everyone else
// may read its state or request a stop.
type PipelineHandle struct {
	id         string
	desc       *StreamDescriptor
	resolution Resolution
	pipeline   media.Pipeline
	state      atomic.Int32
	stopped    atomic.Bool
	cancel     context.CancelFunc
}

func newPipelineHandle(parent context.Context, desc *StreamDescriptor, r Resolution, p media.Pipeline) (*PipelineHandle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	h := &PipelineHandle{
		id:         uuid.NewString(),
		desc:       desc,
		resolution: r,
		pipeline:   p,
		cancel:     cancel,
	}
	return h, ctx
}

// ID uniquely identifies the handle within the process.
func (h *PipelineHandle) ID() string { return h.id }

// StreamID is the id of the logical stream the pipeline belongs to.
func (h *PipelineHandle) StreamID() string { return h.desc.StreamID }

// Resolution is the rendition this pipeline publishes.
func (h *PipelineHandle) Resolution() Resolution { return h.resolution }

// State returns the current supervision state.
func (h *PipelineHandle) State() PipelineState { return PipelineState(h.state.Load()) }

func (h *PipelineHandle) setState(s PipelineState) { h.state.Store(int32(s)) }

// Stop asks the supervisor to terminate the pipeline. It does not wait and is
// safe to call repeatedly.
func (h *PipelineHandle) Stop() {
	h.stopped.Store(true)
	h.cancel()
}

// StopRequested reports whether Stop has been called.
func (h *PipelineHandle) StopRequested() bool { return h.stopped.Load() }

// JoinHandle lets the caller of Start wait for one supervisor to finish.
type JoinHandle struct {
	resolution Resolution
	handleID   string
	done       chan struct{}
	err        error
}

func newJoinHandle(h *PipelineHandle) *JoinHandle {
	return &JoinHandle{resolution: h.resolution, handleID: h.id, done: make(chan struct{})}
}

func (j *JoinHandle) finish(err error) {
	j.err = err
	close(j.done)
}

// Resolution is the rendition supervised by the joined worker.
func (j *JoinHandle) Resolution() Resolution { return j.resolution }

// HandleID is the id of the supervised PipelineHandle.
func (j *JoinHandle) HandleID() string { return j.handleID }

// Done is closed when the supervisor returns.
func (j *JoinHandle) Done() <-chan struct{} { return j.done }

// Wait blocks until the supervisor returns and reports its internal error, if
// any. Pipeline errors are contained by the supervisor and yield nil.
func (j *JoinHandle) Wait() error {
	<-j.done
	return j.err
}
