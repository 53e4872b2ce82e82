package model

import "errors"

var (
	// ErrInvalidDirection is returned when a direction ordinal is outside Up/Down/Lock.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrInvalidToggle is returned when a toggle value is neither 0 nor 1.
	ErrInvalidToggle = errors.New("invalid toggle")

	// ErrInvalidLiftID is returned when a lift id is neither a JSON string nor an integer.
	ErrInvalidLiftID = errors.New("invalid lift id")

	// ErrUnknownCase is returned when an envelope carries a tag outside the accepted set.
	ErrUnknownCase = errors.New("unknown message case")

	// ErrMalformedFrame is returned when a frame cannot be parsed as an envelope.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrSessionClosed is returned when a torn-down session is used again.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected is returned when writing to a connection that is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed is returned when a connection closes before it opened.
	ErrConnectionClosed = errors.New("connection closed")
)
