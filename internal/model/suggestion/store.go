package suggestion

// Store exposes suggestion retrieval for handlers and sessions.
type Store interface {
	List() []Suggestion
	FindByID(id string) (Suggestion, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Suggestion
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied suggestions.
func NewMemoryStore(items []Suggestion) *MemoryStore {
	return &MemoryStore{items: append([]Suggestion(nil), items...)}
}

// List returns the suggestions in display order.
func (s *MemoryStore) List() []Suggestion {
	return append([]Suggestion(nil), s.items...)
}

// FindByID looks up a suggestion by identifier.
func (s *MemoryStore) FindByID(id string) (Suggestion, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Suggestion{}, false
}
