package stream

import (
	"context"
	"fmt"
	"sync"

	"live-streamer/internal/streamer"
)

// Repository persists live stream records.
type Repository interface {
	// AddStream stores a new record and returns its assigned id. The ID field
	// of s is ignored.
	AddStream(ctx context.Context, s LiveStream) (int64, error)

	// ChangeStatus sets the status of stream id. Setting the current status
	// again is a no-op. Returns ErrStreamNotFound for unknown ids.
	ChangeStatus(ctx context.Context, id int64, status Status) error

	// GetStream returns a copy of stream id or ErrStreamNotFound.
	GetStream(ctx context.Context, id int64) (LiveStream, error)

	// ActiveStreamCount returns the number of streams that have not ended.
	ActiveStreamCount(ctx context.Context) (int, error)
}

// InMemoryRepository is a concurrency-safe Repository over a Store.
type InMemoryRepository struct {
	mu     sync.RWMutex
	store  Store
	nextID int64
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	r := &InMemoryRepository{store: store}
	for _, id := range store.IDs() {
		if id > r.nextID {
			r.nextID = id
		}
	}
	return r
}

// AddStream implements Repository.AddStream.
func (r *InMemoryRepository) AddStream(_ context.Context, s LiveStream) (int64, error) {
	if !s.Status.Valid() {
		return 0, fmt.Errorf("add stream: unknown status %q", s.Status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	s.ID = r.nextID
	s.Resolutions = append([]streamer.Resolution(nil), s.Resolutions...)
	r.store.Put(&s)
	return s.ID, nil
}

// ChangeStatus implements Repository.ChangeStatus.
func (r *InMemoryRepository) ChangeStatus(_ context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("change status: unknown status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.Get(id)
	if !ok {
		return ErrStreamNotFound
	}
	st.Status = status
	return nil
}

// GetStream implements Repository.GetStream.
func (r *InMemoryRepository) GetStream(_ context.Context, id int64) (LiveStream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.store.Get(id)
	if !ok {
		return LiveStream{}, ErrStreamNotFound
	}
	out := *st
	out.Resolutions = append([]streamer.Resolution(nil), st.Resolutions...)
	return out, nil
}

// ActiveStreamCount implements Repository.ActiveStreamCount.
func (r *InMemoryRepository) ActiveStreamCount(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.IDs() {
		if st, ok := r.store.Get(id); ok && st.Status != StatusEnded {
			n++
		}
	}
	return n, nil
}
