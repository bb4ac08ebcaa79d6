package session

// WaitingCallers returns the number of EnsureAuthenticated callers currently
// waiting on an in-flight operation.
func (s *Session) WaitingCallers() int {
	return int(s.waiting.Load())
}
