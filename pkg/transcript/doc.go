// Package transcript persists sessions and their conversation logs in SQLite
// so a conversation can be reviewed or resumed after the process exits.
//
// Invariants:
// - Messages of a session are returned in the order they were appended.
// - Appending a message for an unknown session records the session first.
// - The current session is the last one set with SetCurrent.
//
// Usage:
//
//	store, _ := transcript.Open(transcript.Config{DBPath: "doctalk.db"})
//	defer store.Close()
//	_ = store.SaveSession(ctx, transcript.SessionRecord{ID: "abc123", Document: "cv.pdf"})
//	_ = store.Append(msg)
package transcript
