package bot

import "sync"

// sessions keeps one in-flight dialog value per Telegram user.
type sessions[T any] struct {
	mu    sync.Mutex
	items map[int64]T
}

func newSessions[T any]() *sessions[T] {
	return &sessions[T]{items: make(map[int64]T)}
}

func (s *sessions[T]) get(userID int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[userID]
	return v, ok
}

func (s *sessions[T]) put(userID int64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = v
}

func (s *sessions[T]) drop(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
}
