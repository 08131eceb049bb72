// Package backend is the HTTP client for the document service: it uploads
// documents to a session and fetches the session's role fit score.
//
// Upload failures are returned as *APIError carrying the server's detail
// text and never open a chat channel on their own.
package backend
