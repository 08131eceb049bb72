// Package session tracks the conversational session bound to the current
// document upload and whether the server still holds subject data for it.
//
// Invariants:
// - Session ids are validated and path-safe.
// - A new Create supersedes the current session; older sessions stay queryable.
// - HasSubjectData only moves from true to false.
//
// Usage:
//
//	binding := session.NewBinding(session.Config{})
//	s, _ := binding.Create(session.NewSessionID())
//	_ = binding.IsEligibleForReconnect(s.ID)
package session
