package domain

import "errors"

var (
	// ErrNotConnected is returned when an outbound command is attempted
	// while the event channel is down.
	ErrNotConnected = errors.New("not connected")

	// ErrUnauthorized is returned when the collaborator rejects the
	// session credential; the surrounding application tears the session
	// down in response.
	ErrUnauthorized = errors.New("unauthorized")
)
