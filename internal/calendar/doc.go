// Package calendar implements the bookable time model of the agenda service.
//
// Time is divided into fixed-duration slots. Contiguous runs of slots form a
// Segment (typically one opening window of one day), and a Calendar keeps an
// ordered list of non-overlapping, non-adjacent segments.
//
// Concurrency model:
//   - The segment list is guarded by a single RWMutex on the Calendar.
//   - Each Slot carries its own mutex; mutation of the booked flag happens only
//     while the caller holds the slot's lock, acquired through LockSlots.
//   - LockSlots always acquires in ascending start time, tie-broken by the id of
//     the segment that generated the slot, so overlapping lock sets never
//     deadlock.
//   - Calendar methods never take the calendar lock while the caller may be
//     holding slot locks in a blocking way; RemoveSegment only TryLocks slots.
//
// The booked flag is atomic, so read-only queries (window search, availability
// checks) never need to take slot locks.
package calendar
