package calendar

import "errors"

var (
	ErrInvalidRange = errors.New("end time must be after start time")

	ErrInvalidSlotDuration = errors.New("slot duration must be positive")

	ErrMisaligned = errors.New("time is not aligned to the slot duration")

	ErrInvalidGrid = errors.New("grid span must be a positive multiple of the slot duration")

	ErrNotAdjacent = errors.New("segments are not exactly adjacent")

	ErrSlotDurationMismatch = errors.New("segments have different slot durations")

	ErrOutOfRange = errors.New("range is not contained in the segment")

	ErrOverlap = errors.New("range overlaps an existing segment")

	ErrClosed = errors.New("range is not contained in a single opening window")

	ErrAlreadyBooked = errors.New("slot already booked")

	ErrHasBookings = errors.New("range contains booked slots")

	ErrSlotBusy = errors.New("slot is locked by an in-flight operation")
)
