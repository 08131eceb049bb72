package session

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 12
)

// NewSessionID returns a short random base36 session id.
func NewSessionID() string {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		// Generate only fails on an invalid alphabet or length.
		return gonanoid.Must(idLength)
	}
	return id
}
