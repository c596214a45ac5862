package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	reservationserrors "agenda/internal/reservations/errors"
	"agenda/pkg/model"
)

const dayLayout = time.DateOnly

type ReservationRepository interface {
	Insert(r *model.Reservation) error
	Remove(id string) (*model.Reservation, error)
	Replace(oldID string, r *model.Reservation) error
	Mutate(id string, fn func(r *model.Reservation) error) (*model.Reservation, error)
	FindByID(id string) (*model.Reservation, error)
	FindByStart(t time.Time) (*model.Reservation, error)
	FindContaining(t time.Time) (*model.Reservation, error)
	FindByUser(user string) []*model.Reservation
	FindByDay(day time.Time) []*model.Reservation
	FindAll() []*model.Reservation
	Count() int
}

// ReservationIndex keeps reservations in memory, indexed by id, by user, by exact start time
// and by day. All indexes change together under one lock. Readers always get copies.
type ReservationIndex struct {
	mu      sync.RWMutex
	byID    map[string]*model.Reservation
	byUser  map[string][]string
	byStart map[int64]string
	byDay   map[string][]*model.Reservation
}

func NewReservationIndex() *ReservationIndex {
	return &ReservationIndex{
		byID:    make(map[string]*model.Reservation),
		byUser:  make(map[string][]string),
		byStart: make(map[int64]string),
		byDay:   make(map[string][]*model.Reservation),
	}
}

func dayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// Insert indexes a reservation. Inserting an id twice fails with ErrDuplicateID.
func (x *ReservationIndex) Insert(r *model.Reservation) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.insertLocked(r.Clone())
}

func (x *ReservationIndex) insertLocked(r *model.Reservation) error {
	if _, ok := x.byID[r.ID()]; ok {
		return fmt.Errorf("insert %s: %w", r.ID(), reservationserrors.ErrDuplicateID)
	}
	key := r.StartTime().UnixNano()
	if other, ok := x.byStart[key]; ok {
		return fmt.Errorf("insert %s: held by %s: %w", r.ID(), other, reservationserrors.ErrStartTaken)
	}

	x.byID[r.ID()] = r
	x.byStart[key] = r.ID()

	ids := x.byUser[r.User()]
	i := sort.Search(len(ids), func(i int) bool {
		return !x.byID[ids[i]].StartTime().Before(r.StartTime())
	})
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = r.ID()
	x.byUser[r.User()] = ids

	dk := dayKey(r.StartTime())
	day := x.byDay[dk]
	j := sort.Search(len(day), func(j int) bool {
		return !day[j].StartTime().Before(r.StartTime())
	})
	day = append(day, nil)
	copy(day[j+1:], day[j:])
	day[j] = r
	x.byDay[dk] = day
	return nil
}

// Remove drops a reservation from every index and returns it.
func (x *ReservationIndex) Remove(id string) (*model.Reservation, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	r, err := x.removeLocked(id)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (x *ReservationIndex) removeLocked(id string) (*model.Reservation, error) {
	r, ok := x.byID[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}

	delete(x.byID, id)
	key := r.StartTime().UnixNano()
	if x.byStart[key] == id {
		delete(x.byStart, key)
	}

	ids := x.byUser[r.User()]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(x.byUser, r.User())
	} else {
		x.byUser[r.User()] = ids
	}

	dk := dayKey(r.StartTime())
	day := x.byDay[dk]
	for i, other := range day {
		if other.ID() == id {
			day = append(day[:i], day[i+1:]...)
			break
		}
	}
	if len(day) == 0 {
		delete(x.byDay, dk)
	} else {
		x.byDay[dk] = day
	}
	return r, nil
}

// Replace swaps the reservation stored under oldID for r in a single step. r may reuse oldID.
// On failure the index is unchanged.
func (x *ReservationIndex) Replace(oldID string, r *model.Reservation) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	old, err := x.removeLocked(oldID)
	if err != nil {
		return err
	}
	if err := x.insertLocked(r.Clone()); err != nil {
		if restoreErr := x.insertLocked(old); restoreErr != nil {
			return fmt.Errorf("replace %s: %w (restore failed: %v)", oldID, err, restoreErr)
		}
		return err
	}
	return nil
}

// Mutate applies fn to the stored reservation under the index lock. Only status fields may be
// changed by fn; the identity and time attributes are immutable.
func (x *ReservationIndex) Mutate(id string, fn func(r *model.Reservation) error) (*model.Reservation, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	r, ok := x.byID[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (x *ReservationIndex) FindByID(id string) (*model.Reservation, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	r, ok := x.byID[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return r.Clone(), nil
}

func (x *ReservationIndex) FindByStart(t time.Time) (*model.Reservation, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	id, ok := x.byStart[t.UnixNano()]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return x.byID[id].Clone(), nil
}

// FindContaining returns the reservation whose [start, end) holds t. It searches the
// reservations of t's day for the last one starting at or before t.
func (x *ReservationIndex) FindContaining(t time.Time) (*model.Reservation, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	day := x.byDay[dayKey(t)]
	i := sort.Search(len(day), func(i int) bool {
		return day[i].StartTime().After(t)
	}) - 1
	if i < 0 || !t.Before(day[i].EndTime()) {
		return nil, reservationserrors.ErrNotFound
	}
	return day[i].Clone(), nil
}

// FindByUser returns the user's reservations ordered by start time.
func (x *ReservationIndex) FindByUser(user string) []*model.Reservation {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := x.byUser[user]
	out := make([]*model.Reservation, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.byID[id].Clone())
	}
	return out
}

// FindByDay returns the reservations starting on the date of day, ordered by start time.
func (x *ReservationIndex) FindByDay(day time.Time) []*model.Reservation {
	x.mu.RLock()
	defer x.mu.RUnlock()

	list := x.byDay[dayKey(day)]
	out := make([]*model.Reservation, 0, len(list))
	for _, r := range list {
		out = append(out, r.Clone())
	}
	return out
}

// FindAll returns every reservation ordered by start time.
func (x *ReservationIndex) FindAll() []*model.Reservation {
	x.mu.RLock()
	out := make([]*model.Reservation, 0, len(x.byID))
	for _, r := range x.byID {
		out = append(out, r.Clone())
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime().Before(out[j].StartTime())
	})
	return out
}

func (x *ReservationIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}
