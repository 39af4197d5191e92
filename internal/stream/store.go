package stream

// Store is the persistence abstraction behind InMemoryRepository.
// Implementations need not be safe for concurrent use; the repository
// serialises access.
type Store interface {
	Get(id int64) (*LiveStream, bool)
	Put(s *LiveStream)
	IDs() []int64
}

// InMemoryStore is a map-backed Store.
type InMemoryStore struct {
	streams map[int64]*LiveStream
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[int64]*LiveStream)}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(id int64) (*LiveStream, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(st *LiveStream) {
	s.streams[st.ID] = st
}

// IDs implements Store.IDs.
func (s *InMemoryStore) IDs() []int64 {
	ids := make([]int64, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	return ids
}
