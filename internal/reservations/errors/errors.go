package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrDuplicateID = errors.New("reservation id already indexed")

	ErrStartTaken = errors.New("another reservation starts at the same time")

	ErrNotOwner = errors.New("reservation belongs to another user")

	ErrNoProposal = errors.New("no pending update proposal for reservation")
)
