package datamodel

// HandleCount reports how many handles the session still interns.
func HandleCount(s *Session) int { return s.handleCount() }
