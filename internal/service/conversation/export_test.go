package conversation

// LockCount reports how many per-session locks are held in memory.
func (s *Service) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
