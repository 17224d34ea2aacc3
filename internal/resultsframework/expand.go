package resultsframework

import "sync"

// ExpandState is the set of expanded node ids in an editor view. It is never
// persisted and is reset whenever the tree is reloaded.
type ExpandState struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewExpandState() *ExpandState {
	return &ExpandState{ids: make(map[string]struct{})}
}

// Toggle flips a node and reports whether it is now expanded.
func (s *ExpandState) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *ExpandState) Expand(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *ExpandState) Collapse(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *ExpandState) IsExpanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *ExpandState) Reset() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}

func (s *ExpandState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
