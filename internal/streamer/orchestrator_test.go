package streamer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"live-streamer/internal/media"
	"live-streamer/internal/media/mediatest"
)

func newTestOrchestrator(rt *mediatest.Runtime) (*Orchestrator, *recordingObserver) {
	obs := &recordingObserver{}
	o := New(testBuilder(rt), NewRegistry(), WithLogger(slog.Default()), WithObserver(obs))
	return o, obs
}

func waitJoin(t *testing.T, j *JoinHandle) error {
	t.Helper()
	select {
	case <-j.Done():
		return j.Wait()
	case <-time.After(2 * time.Second):
		t.Fatalf("supervisor for %s did not finish", j.Resolution())
		return nil
	}
}

func mustPipeline(t *testing.T, rt *mediatest.Runtime, name string) *mediatest.Pipeline {
	t.Helper()
	p, ok := rt.Pipeline(name)
	if !ok {
		t.Fatalf("pipeline %s not created", name)
	}
	return p
}

func TestOrchestrator_Start_lifecycle(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, obs := newTestOrchestrator(rt)
	reg := o.Registry()

	joins, err := o.Start(context.Background(), StreamDescriptor{
		StreamID:    "7",
		SourcePath:  "/media/7.mp4",
		Resolutions: []Resolution{P360, P720},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(joins) != 2 || joins[0].Resolution() != P360 || joins[1].Resolution() != P720 {
		t.Fatalf("unexpected joins %v", joins)
	}
	if reg.Size() != 1 || reg.HandleCount() != 2 {
		t.Fatalf("size=%d handles=%d", reg.Size(), reg.HandleCount())
	}

	p360 := mustPipeline(t, rt, "stream-7-360")
	p720 := mustPipeline(t, rt, "stream-7-720")
	if p360.State() != media.StatePlaying || p720.State() != media.StatePlaying {
		t.Fatal("pipelines should be playing after Start")
	}

	p360.PostEOS()
	if err := waitJoin(t, joins[0]); err != nil {
		t.Errorf("360 join: %v", err)
	}
	entry, ok := reg.Lookup("7")
	if !ok || len(entry.Handles) != 1 || entry.Handles[0].Resolution() != P720 {
		t.Fatalf("after 360 EOS expected only the 720 handle, got %+v", entry)
	}

	p720.PostError(errors.New("connection refused"))
	if err := waitJoin(t, joins[1]); err != nil {
		t.Errorf("720 join: %v", err)
	}
	entry, ok = reg.Lookup("7")
	if !ok || len(entry.Handles) != 0 {
		t.Errorf("entry should remain with no handles, got %+v ok=%v", entry, ok)
	}
	if p360.State() != media.StateNull || p720.State() != media.StateNull {
		t.Error("terminated pipelines should be set to null")
	}

	terms := obs.terminations()
	if len(terms) != 2 || terms[0].reason != "eos" || terms[1].reason != "error" {
		t.Errorf("terminations = %v", terms)
	}
}

func TestOrchestrator_Start_rolls_back_on_build_failure(t *testing.T) {
	rt := mediatest.NewRuntime()
	boom := errors.New("not negotiated")
	rt.FailProperty(func(factory, name string, value any) error {
		if factory == "capsfilter" && value == "video/x-raw, width=1280, height=720" {
			return boom
		}
		return nil
	})
	o, obs := newTestOrchestrator(rt)

	joins, err := o.Start(context.Background(), StreamDescriptor{
		StreamID:    "9",
		SourcePath:  "/media/9.mp4",
		Resolutions: []Resolution{P360, P720},
	})
	if joins != nil {
		t.Error("no joins expected on failure")
	}
	var serr *StartError
	if !errors.As(err, &serr) || serr.Resolution != P720 || !errors.Is(err, boom) {
		t.Fatalf("expected StartError at 720p wrapping boom, got %v", err)
	}
	var gerr *GraphError
	if !errors.As(err, &gerr) {
		t.Error("StartError should wrap the GraphError")
	}
	if o.Registry().Size() != 0 {
		t.Errorf("registry size = %d, want 0", o.Registry().Size())
	}
	if p := mustPipeline(t, rt, "stream-9-360"); p.State() != media.StateNull {
		t.Errorf("360 pipeline state = %s, want null", p.State())
	}
	if len(obs.terminations()) != 0 || len(obs.started) != 0 {
		t.Error("observer should not hear about aborted starts")
	}
}

func TestOrchestrator_Start_rolls_back_on_play_failure(t *testing.T) {
	rt := mediatest.NewRuntime()
	rt.FailPlay("stream-2-480", errors.New("state change failed"))
	o, _ := newTestOrchestrator(rt)

	_, err := o.Start(context.Background(), StreamDescriptor{
		StreamID:    "2",
		SourcePath:  "/in.mp4",
		Resolutions: []Resolution{P360, P480, P720},
	})
	var serr *StartError
	if !errors.As(err, &serr) || serr.Resolution != P480 {
		t.Fatalf("expected StartError at 480p, got %v", err)
	}
	if o.Registry().Size() != 0 {
		t.Error("nothing should be registered")
	}
	for _, name := range []string{"stream-2-360", "stream-2-480"} {
		if p := mustPipeline(t, rt, name); p.State() != media.StateNull {
			t.Errorf("%s state = %s, want null", name, p.State())
		}
	}
	if _, ok := rt.Pipeline("stream-2-720"); ok {
		t.Error("720 pipeline should never be built")
	}
}

func TestOrchestrator_Start_invalid_descriptor(t *testing.T) {
	o, _ := newTestOrchestrator(mediatest.NewRuntime())
	_, err := o.Start(context.Background(), StreamDescriptor{StreamID: "1", SourcePath: "/in.mp4"})
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", err)
	}
}

func TestOrchestrator_streams_outlive_start_context(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, _ := newTestOrchestrator(rt)
	ctx, cancel := context.WithCancel(context.Background())
	joins, err := o.Start(ctx, StreamDescriptor{StreamID: "4", SourcePath: "/in.mp4", Resolutions: []Resolution{P360}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-joins[0].Done():
		t.Fatal("cancelling the start context must not stop the stream")
	case <-time.After(50 * time.Millisecond):
	}
	mustPipeline(t, rt, "stream-4-360").PostEOS()
	if err := waitJoin(t, joins[0]); err != nil {
		t.Errorf("join: %v", err)
	}
}

func TestOrchestrator_Stop_and_Describe(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, _ := newTestOrchestrator(rt)
	joins, err := o.Start(context.Background(), StreamDescriptor{StreamID: "8", SourcePath: "/in.mp4", Resolutions: []Resolution{P360, P480}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	st, err := o.Describe("8")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if st.SourcePath != "/in.mp4" || len(st.Pipelines) != 2 || st.Pipelines[0].StateName != "playing" {
		t.Errorf("unexpected status %+v", st)
	}

	if err := o.Stop("8"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, j := range joins {
		if err := waitJoin(t, j); err != nil {
			t.Errorf("join %s: %v", j.Resolution(), err)
		}
	}
	if o.Registry().HandleCount() != 0 {
		t.Error("all handles should be removed after stop")
	}
	if err := o.Stop("missing"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("expected ErrStreamNotFound, got %v", err)
	}
	if _, err := o.Describe("missing"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestOrchestrator_Shutdown(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, _ := newTestOrchestrator(rt)
	for _, id := range []string{"a", "b"} {
		if _, err := o.Start(context.Background(), StreamDescriptor{StreamID: id, SourcePath: "/in.mp4", Resolutions: []Resolution{P360, P720}}); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if o.Registry().HandleCount() != 0 {
		t.Errorf("handles = %d after shutdown", o.Registry().HandleCount())
	}
	for _, p := range rt.Pipelines() {
		if p.State() != media.StateNull {
			t.Errorf("%s state = %s", p.Name(), p.State())
		}
	}
}

func TestOrchestrator_termination_is_isolated_per_stream(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, _ := newTestOrchestrator(rt)
	ctx := context.Background()
	joinsA, err := o.Start(ctx, StreamDescriptor{StreamID: "a", SourcePath: "/a.mp4", Resolutions: []Resolution{P360, P720}})
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	if _, err := o.Start(ctx, StreamDescriptor{StreamID: "b", SourcePath: "/b.mp4", Resolutions: []Resolution{P360, P720}}); err != nil {
		t.Fatalf("Start b: %v", err)
	}

	mustPipeline(t, rt, "stream-a-360").PostEOS()
	if err := waitJoin(t, joinsA[0]); err != nil {
		t.Errorf("a/360 join: %v", err)
	}

	a, _ := o.Registry().Lookup("a")
	if len(a.Handles) != 1 || a.Handles[0].Resolution() != P720 {
		t.Errorf("stream a should keep only its 720 handle, got %d handles", len(a.Handles))
	}
	b, ok := o.Registry().Lookup("b")
	if !ok || len(b.Handles) != 2 {
		t.Fatalf("stream b should keep both handles, got %d ok=%v", len(b.Handles), ok)
	}
	for _, name := range []string{"stream-b-360", "stream-b-720", "stream-a-720"} {
		if p := mustPipeline(t, rt, name); p.State() != media.StatePlaying {
			t.Errorf("%s state = %s, want playing", name, p.State())
		}
	}
}

func TestOrchestrator_Stop_covers_duplicate_ids(t *testing.T) {
	rt := mediatest.NewRuntime()
	o, _ := newTestOrchestrator(rt)
	ctx := context.Background()
	desc := StreamDescriptor{StreamID: "dup", SourcePath: "/in.mp4", Resolutions: []Resolution{P360}}
	first, err := o.Start(ctx, desc)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := o.Start(ctx, desc)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if o.Registry().Size() != 2 {
		t.Fatalf("size = %d, want 2", o.Registry().Size())
	}

	if err := o.Stop("dup"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, j := range append(first, second...) {
		if err := waitJoin(t, j); err != nil {
			t.Errorf("join: %v", err)
		}
	}
	if o.Registry().HandleCount() != 0 {
		t.Errorf("handles = %d, every entry named dup should be stopped", o.Registry().HandleCount())
	}
}
