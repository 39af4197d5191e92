package streamer

import (
	"context"
	"strconv"
	"sync"
	"testing"
)

func testHandle(t *testing.T, desc *StreamDescriptor, r Resolution) *PipelineHandle {
	t.Helper()
	h, _ := newPipelineHandle(context.Background(), desc, r, nil)
	return h
}

func TestRegistry_Push_Lookup(t *testing.T) {
	reg := NewRegistry()
	desc := &StreamDescriptor{StreamID: "7", SourcePath: "/v.mp4", Resolutions: []Resolution{P360, P720}}
	h1, h2 := testHandle(t, desc, P360), testHandle(t, desc, P720)
	reg.Push(desc, []*PipelineHandle{h1, h2})

	if reg.Size() != 1 || reg.HandleCount() != 2 {
		t.Fatalf("size=%d handles=%d", reg.Size(), reg.HandleCount())
	}
	entry, ok := reg.Lookup("7")
	if !ok {
		t.Fatal("Lookup: not found")
	}
	if entry.Descriptor.SourcePath != "/v.mp4" || len(entry.Handles) != 2 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if _, ok := reg.Lookup("8"); ok {
		t.Error("Lookup of unknown id should fail")
	}
}

func TestRegistry_Remove_idempotent(t *testing.T) {
	reg := NewRegistry()
	desc := &StreamDescriptor{StreamID: "1"}
	reg.Push(desc, nil)

	if !reg.Remove("1") {
		t.Error("first Remove should report true")
	}
	if reg.Remove("1") {
		t.Error("second Remove should be a no-op")
	}
	if reg.Remove("missing") {
		t.Error("Remove of absent id should be a no-op")
	}
	if reg.Size() != 0 {
		t.Errorf("size = %d", reg.Size())
	}
}

func TestRegistry_Remove_first_match_only(t *testing.T) {
	reg := NewRegistry()
	reg.Push(&StreamDescriptor{StreamID: "dup", SourcePath: "a"}, nil)
	reg.Push(&StreamDescriptor{StreamID: "dup", SourcePath: "b"}, nil)

	reg.Remove("dup")
	entry, ok := reg.Lookup("dup")
	if !ok || entry.Descriptor.SourcePath != "b" {
		t.Errorf("expected second entry to survive, got %+v ok=%v", entry, ok)
	}
}

func TestRegistry_RemoveHandle_keeps_entry(t *testing.T) {
	reg := NewRegistry()
	desc := &StreamDescriptor{StreamID: "7"}
	h1, h2 := testHandle(t, desc, P360), testHandle(t, desc, P720)
	reg.Push(desc, []*PipelineHandle{h1, h2})

	if !reg.RemoveHandle("7", h1.ID()) {
		t.Fatal("RemoveHandle: false")
	}
	if reg.RemoveHandle("7", h1.ID()) {
		t.Error("removing the same handle twice should be a no-op")
	}
	entry, _ := reg.Lookup("7")
	if len(entry.Handles) != 1 || entry.Handles[0] != h2 {
		t.Errorf("unexpected handles %v", entry.Handles)
	}

	reg.RemoveHandle("7", h2.ID())
	if reg.Size() != 1 || reg.HandleCount() != 0 {
		t.Errorf("entry with no handles should remain: size=%d handles=%d", reg.Size(), reg.HandleCount())
	}
}

func TestRegistry_Lookup_returns_snapshot(t *testing.T) {
	reg := NewRegistry()
	desc := &StreamDescriptor{StreamID: "7"}
	h := testHandle(t, desc, P360)
	reg.Push(desc, []*PipelineHandle{h})

	entry, _ := reg.Lookup("7")
	reg.RemoveHandle("7", h.ID())
	if len(entry.Handles) != 1 {
		t.Error("snapshot should not observe later removals")
	}
}

func TestRegistry_concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := strconv.Itoa(i)
			desc := &StreamDescriptor{StreamID: id}
			h := testHandle(t, desc, P360)
			reg.Push(desc, []*PipelineHandle{h})
			_ = reg.Size()
			_ = reg.Entries()
			reg.RemoveHandle(id, h.ID())
			reg.Remove(id)
		}(i)
	}
	wg.Wait()
	if reg.Size() != 0 || reg.HandleCount() != 0 {
		t.Errorf("size=%d handles=%d", reg.Size(), reg.HandleCount())
	}
}
