package halfake

import (
	"maps"
	"sort"
	"strconv"
	"sync"
)

// Aggregator is one stored entity. Version backs the ETag.
type Aggregator struct {
	ID      string
	Fields  map[string]string
	Version int
}

// Store is an in-memory aggregator store ordered by creation.
type Store struct {
	mu          sync.RWMutex
	aggregators map[string]*Aggregator
	nextID      int
}

func NewStore() *Store {
	return &Store{
		aggregators: make(map[string]*Aggregator),
		nextID:      1,
	}
}

// Add stores a new aggregator and returns a copy of it.
func (s *Store) Add(fields map[string]string) Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.Itoa(s.nextID)
	s.nextID++
	a := &Aggregator{ID: id, Fields: maps.Clone(fields)}
	if a.Fields == nil {
		a.Fields = map[string]string{}
	}
	s.aggregators[id] = a
	return copyOf(a)
}

// Get returns an aggregator by ID.
func (s *Store) Get(id string) (Aggregator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.aggregators[id]
	if !ok {
		return Aggregator{}, false
	}
	return copyOf(a), true
}

// Update replaces the fields of id when version matches. A negative
// version skips the check. It reports whether id exists and whether the
// version matched.
func (s *Store) Update(id string, version int, fields map[string]string) (Aggregator, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.aggregators[id]
	if !ok {
		return Aggregator{}, false, false
	}
	if version >= 0 && a.Version != version {
		return copyOf(a), true, false
	}
	a.Fields = maps.Clone(fields)
	if a.Fields == nil {
		a.Fields = map[string]string{}
	}
	a.Version++
	return copyOf(a), true, true
}

// Delete removes an aggregator by ID.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aggregators[id]; !ok {
		return false
	}
	delete(s.aggregators, id)
	return true
}

// Page returns the aggregators of a zero-based page and the total count.
func (s *Store) Page(number, size int) ([]Aggregator, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Aggregator, 0, len(s.aggregators))
	for _, a := range s.aggregators {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		ai, _ := strconv.Atoi(all[i].ID)
		aj, _ := strconv.Atoi(all[j].ID)
		return ai < aj
	})

	total := len(all)
	start := number * size
	if start >= total {
		return nil, total
	}
	end := min(start+size, total)
	out := make([]Aggregator, 0, end-start)
	for _, a := range all[start:end] {
		out = append(out, copyOf(a))
	}
	return out, total
}

// Len returns the number of stored aggregators.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggregators)
}

func copyOf(a *Aggregator) Aggregator {
	return Aggregator{ID: a.ID, Fields: maps.Clone(a.Fields), Version: a.Version}
}
