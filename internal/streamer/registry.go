package streamer

import (
	"sync"
)

// RegistryEntry is a snapshot of one logical stream held in the Registry.
type RegistryEntry struct {
	Descriptor *StreamDescriptor
	Handles    []*PipelineHandle
}

type registryEntry struct {
	desc    *StreamDescriptor
	handles []*PipelineHandle
}

func (e *registryEntry) snapshot() RegistryEntry {
	return RegistryEntry{
		Descriptor: e.desc,
		Handles:    append([]*PipelineHandle(nil), e.handles...),
	}
}

// Registry is the shared list of running logical streams. Every operation
// holds a single mutex for its duration and performs no I/O while holding it.
//
// Entries are not pruned when their last handle is removed; whoever owns the
// stream's completion calls Remove.
type Registry struct {
	mu      sync.Mutex
	entries []*registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Push appends an entry for desc with all of its pipeline handles.
func (r *Registry) Push(desc *StreamDescriptor, handles []*PipelineHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &registryEntry{
		desc:    desc,
		handles: append([]*PipelineHandle(nil), handles...),
	})
}

// Remove deletes the first entry whose stream id matches. Removing an absent
// stream is a no-op; the return value reports whether an entry was removed.
func (r *Registry) Remove(streamID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(streamID)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// RemoveHandle drops one pipeline handle from its stream's entry, leaving the
// entry and sibling handles in place. Unknown ids are a no-op.
func (r *Registry) RemoveHandle(streamID, handleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.desc.StreamID != streamID {
			continue
		}
		for i, h := range e.handles {
			if h.id == handleID {
				e.handles = append(e.handles[:i], e.handles[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Lookup returns a snapshot of the first entry matching streamID.
func (r *Registry) Lookup(streamID string) (RegistryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(streamID)
	if i < 0 {
		return RegistryEntry{}, false
	}
	return r.entries[i].snapshot(), true
}

// Entries returns a snapshot of every entry in insertion order.
func (r *Registry) Entries() []RegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Size returns the number of entries. Used for observability only.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// HandleCount returns the number of live pipeline handles across all entries.
func (r *Registry) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		n += len(e.handles)
	}
	return n
}

// indexLocked returns the position of the first entry matching streamID, or -1.
// Caller must hold r.mu.
func (r *Registry) indexLocked(streamID string) int {
	for i, e := range r.entries {
		if e.desc.StreamID == streamID {
			return i
		}
	}
	return -1
}
