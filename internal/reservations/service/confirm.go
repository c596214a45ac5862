package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agenda/internal/calendar"
	reservationserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/events"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

// Confirmer is implemented by services that hold changes until the user confirms them.
type Confirmer interface {
	Confirm(ctx context.Context, id, user string) (*model.Reservation, error)
	Decline(ctx context.Context, id, user string) (*model.Reservation, error)
	Proposal(ctx context.Context, id, user string) (*model.Reservation, error)
}

// ConfirmingManager adds a confirmation step to every change:
//
//	pending_confirmation -> confirmed
//	confirmed -> pending_cancelation -> deleted
//	confirmed -> pending_update -> (replaced by the proposal)
//
// A pending change must be confirmed within the window counted from its last status change.
// Slots stay booked while a change is pending; a proposed update also books the slots only
// it needs.
type ConfirmingManager struct {
	*Manager
	window time.Duration

	// mu serializes state transitions and guards proposals. It is always taken before any
	// slot lock.
	mu        sync.Mutex
	proposals map[string]*model.Reservation // keyed by the id of the reservation being replaced
}

func NewConfirmingManager(m *Manager, window time.Duration) *ConfirmingManager {
	return &ConfirmingManager{
		Manager:   m,
		window:    window,
		proposals: make(map[string]*model.Reservation),
	}
}

func (c *ConfirmingManager) expired(r *model.Reservation) bool {
	return c.now().Sub(r.StatusChangedAt()) > c.window
}

// Reserve books the slots and holds the reservation until it is confirmed.
func (c *ConfirmingManager) Reserve(ctx context.Context, req *model.ReservationRequest) (*model.Reservation, error) {
	r, err := c.reserve(ctx, req, model.StatusPendingConfirmation)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.TypeRequested, r, nil)
	return r, nil
}

// Cancel marks a confirmed reservation pending cancellation. The slots are freed on Confirm.
func (c *ConfirmingManager) Cancel(ctx context.Context, req *model.CancelRequest) (*model.Reservation, error) {
	r, err := c.planCancel(ctx, req)
	if err != nil {
		c.log.Warn("Cancellation rejected", "user", req.User, "id", req.ID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	updated, err := c.transition(r.ID(), model.StatusConfirmed, func(r *model.Reservation) {
		r.SetStatus(model.StatusPendingCancelation, c.now())
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("Cancellation requested", "id", updated.ID(), "user", updated.User())
	c.publish(ctx, events.TypeRequested, updated, nil)
	return updated, nil
}

// Update books the slots the proposed reservation needs on top of the current ones and marks
// the current reservation pending update. New holds the proposal.
func (c *ConfirmingManager) Update(ctx context.Context, upd *model.ReservationUpdate) (*UpdateResult, error) {
	plan, err := c.planUpdate(ctx, upd)
	if err != nil {
		c.log.Warn("Update rejected", "user", upd.User, "id", upd.ID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := plan.old
	if old.Status() != model.StatusConfirmed {
		return nil, wrongState(old, model.StatusConfirmed)
	}

	oldSlots := c.cal.Slots(old.StartTime(), old.EndTime(), false)
	newSlots, err := c.cal.SlotsWithin(plan.start, plan.end)
	if err != nil {
		return nil, translate(err)
	}

	guard := calendar.LockSlots(oldSlots, newSlots)
	defer guard.Unlock()

	if err := c.verify(old); err != nil {
		return nil, err
	}
	extra := calendar.Difference(newSlots, oldSlots)
	if err := c.cal.Reserve(extra); err != nil {
		return nil, translate(err)
	}

	proposal := model.NewReservation(c.newID(), old.User(), plan.service, plan.start, plan.end, c.now(), model.StatusPendingConfirmation)
	proposal.SetReplaces(old.ID())

	pending, err := c.transition(old.ID(), model.StatusConfirmed, func(r *model.Reservation) {
		r.SetStatus(model.StatusPendingUpdate, c.now())
		r.SetPendingReplacement(proposal.ID())
	})
	if err != nil {
		c.cal.Free(extra)
		return nil, err
	}
	c.proposals[old.ID()] = proposal

	c.log.Info("Update requested",
		"id", old.ID(),
		"proposal_id", proposal.ID(),
		"start_time", proposal.StartTime(),
		"end_time", proposal.EndTime(),
	)
	c.publish(ctx, events.TypeRequested, proposal, pending)
	return &UpdateResult{Old: pending, New: proposal.Clone()}, nil
}

// CanCancel reports whether Cancel would accept req: only a confirmed reservation can be
// marked pending cancellation.
func (c *ConfirmingManager) CanCancel(ctx context.Context, req *model.CancelRequest) error {
	r, err := c.planCancel(ctx, req)
	if err != nil {
		return err
	}
	if r.Status() != model.StatusConfirmed {
		return wrongState(r, model.StatusConfirmed)
	}
	return nil
}

// CanUpdate reports whether Update would accept upd.
func (c *ConfirmingManager) CanUpdate(ctx context.Context, upd *model.ReservationUpdate) error {
	plan, err := c.planUpdate(ctx, upd)
	if err != nil {
		return err
	}
	if plan.old.Status() != model.StatusConfirmed {
		return wrongState(plan.old, model.StatusConfirmed)
	}
	return c.checkUpdatePlan(plan, upd)
}

// Confirm completes the pending change of a reservation. A change confirmed after its window
// is rolled back and reported as expired.
func (c *ConfirmingManager) Confirm(ctx context.Context, id, user string) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.find(user, id, nil, "")
	if err != nil {
		return nil, err
	}
	if !r.Status().IsPending() {
		return nil, apperrors.WrongState(fmt.Sprintf("Reservation is %s, nothing to confirm", r.Status()))
	}
	if c.expired(r) {
		if _, err := c.rollback(ctx, r, events.TypeExpired); err != nil {
			return nil, err
		}
		return nil, apperrors.ConfirmationExpired(fmt.Sprintf("Confirmation window of %s has passed", c.window))
	}

	switch r.Status() {
	case model.StatusPendingConfirmation:
		confirmed, err := c.transition(r.ID(), model.StatusPendingConfirmation, func(r *model.Reservation) {
			r.SetStatus(model.StatusConfirmed, c.now())
		})
		if err != nil {
			return nil, err
		}
		c.log.Info("Reservation confirmed", "id", confirmed.ID(), "user", confirmed.User())
		c.publish(ctx, events.TypeConfirmed, confirmed, nil)
		return confirmed, nil

	case model.StatusPendingCancelation:
		removed, err := c.remove(r)
		if err != nil {
			return nil, err
		}
		removed.SetStatus(model.StatusDeleted, c.now())
		c.publish(ctx, events.TypeCancelled, removed, nil)
		return removed, nil

	default:
		return c.commitProposal(ctx, r)
	}
}

// Decline abandons the pending change of a reservation as if its window had passed.
func (c *ConfirmingManager) Decline(ctx context.Context, id, user string) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.find(user, id, nil, "")
	if err != nil {
		return nil, err
	}
	if !r.Status().IsPending() {
		return nil, apperrors.WrongState(fmt.Sprintf("Reservation is %s, nothing to decline", r.Status()))
	}
	return c.rollback(ctx, r, events.TypeCancelled)
}

// Proposal returns the replacement proposed for a reservation pending update.
func (c *ConfirmingManager) Proposal(ctx context.Context, id, user string) (*model.Reservation, error) {
	r, err := c.Get(ctx, id, user)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proposals[r.ID()]
	if !ok {
		return nil, apperrors.NotFound("Update proposal")
	}
	return p.Clone(), nil
}

func (c *ConfirmingManager) commitProposal(ctx context.Context, old *model.Reservation) (*model.Reservation, error) {
	proposal, ok := c.proposals[old.ID()]
	if !ok {
		return nil, apperrors.Internal("Pending update has no proposal", fmt.Errorf("%w: %s", reservationserrors.ErrNoProposal, old.ID()))
	}

	oldSlots := c.cal.Slots(old.StartTime(), old.EndTime(), false)
	newSlots := c.cal.Slots(proposal.StartTime(), proposal.EndTime(), false)

	guard := calendar.LockSlots(oldSlots, newSlots)
	defer guard.Unlock()

	if err := c.verify(old); err != nil {
		return nil, err
	}

	released := calendar.Difference(oldSlots, newSlots)
	c.cal.Free(released)

	final := proposal.WithID(old.ID())
	final.SetReplaces("")
	final.SetStatus(model.StatusConfirmed, c.now())
	if err := c.index.Replace(old.ID(), final); err != nil {
		c.cal.Restore(released)
		c.log.Error("Failed to apply confirmed update, rolled back", "id", old.ID(), "error", err)
		return nil, translate(err)
	}
	delete(c.proposals, old.ID())

	c.log.Info("Update confirmed",
		"id", final.ID(),
		"start_time", final.StartTime(),
		"end_time", final.EndTime(),
		"previous_start_time", old.StartTime(),
	)
	c.publish(ctx, events.TypeUpdated, final, old)
	return final.Clone(), nil
}

// rollback undoes a pending change: a pending reservation is removed, a pending cancellation
// or update returns to confirmed. Caller holds c.mu.
func (c *ConfirmingManager) rollback(ctx context.Context, r *model.Reservation, typ events.Type) (*model.Reservation, error) {
	switch r.Status() {
	case model.StatusPendingConfirmation:
		removed, err := c.remove(r)
		if err != nil {
			return nil, err
		}
		removed.SetStatus(model.StatusDeleted, c.now())
		c.publish(ctx, typ, removed, nil)
		return removed, nil

	case model.StatusPendingCancelation:
		restored, err := c.transition(r.ID(), model.StatusPendingCancelation, func(r *model.Reservation) {
			r.SetStatus(model.StatusConfirmed, c.now())
		})
		if err != nil {
			return nil, err
		}
		c.log.Info("Cancellation dropped", "id", restored.ID(), "reason", typ)
		c.publish(ctx, typ, restored, nil)
		return restored, nil

	case model.StatusPendingUpdate:
		return c.dropProposal(ctx, r, typ)
	}
	return nil, wrongState(r, model.StatusPendingConfirmation)
}

func (c *ConfirmingManager) dropProposal(ctx context.Context, old *model.Reservation, typ events.Type) (*model.Reservation, error) {
	proposal, hasProposal := c.proposals[old.ID()]

	var held []*calendar.Slot
	if hasProposal {
		oldSlots := c.cal.Slots(old.StartTime(), old.EndTime(), false)
		newSlots := c.cal.Slots(proposal.StartTime(), proposal.EndTime(), false)
		guard := calendar.LockSlots(oldSlots, newSlots)
		defer guard.Unlock()
		held = calendar.Difference(newSlots, oldSlots)
		c.cal.Free(held)
	}

	restored, err := c.transition(old.ID(), model.StatusPendingUpdate, func(r *model.Reservation) {
		r.SetStatus(model.StatusConfirmed, c.now())
		r.SetPendingReplacement("")
	})
	if err != nil {
		c.cal.Restore(held)
		return nil, err
	}
	delete(c.proposals, old.ID())

	c.log.Info("Update dropped", "id", old.ID(), "reason", typ)
	if hasProposal {
		c.publish(ctx, typ, proposal, restored)
	}
	return restored, nil
}

// transition applies fn to the indexed reservation when it is in state from.
func (c *ConfirmingManager) transition(id string, from model.Status, fn func(r *model.Reservation)) (*model.Reservation, error) {
	var stateErr error
	updated, err := c.index.Mutate(id, func(r *model.Reservation) error {
		if r.Status() != from {
			stateErr = wrongState(r, from)
			return stateErr
		}
		fn(r)
		return nil
	})
	if err != nil {
		if stateErr != nil {
			return nil, stateErr
		}
		return nil, translate(err)
	}
	return updated, nil
}

func wrongState(r *model.Reservation, want model.Status) error {
	return apperrors.WrongState(fmt.Sprintf("Reservation is %s, expected %s", r.Status(), want))
}

// Sweep rolls back every pending change whose window has passed. Failures are logged and the
// sweep continues. It returns the number of changes rolled back.
func (c *ConfirmingManager) Sweep(ctx context.Context) int {
	swept := 0
	for _, r := range c.index.FindAll() {
		if ctx.Err() != nil {
			break
		}
		if !r.Status().IsPending() || !c.expired(r) {
			continue
		}
		if c.sweepOne(ctx, r.ID()) {
			swept++
		}
	}
	if swept > 0 {
		c.log.Info("Expired pending reservations swept", "count", swept)
	}
	return swept
}

func (c *ConfirmingManager) sweepOne(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// re-read under the lock; a confirmation may have won the race
	r, err := c.index.FindByID(id)
	if err != nil || !r.Status().IsPending() || !c.expired(r) {
		return false
	}
	if _, err := c.rollback(ctx, r, events.TypeExpired); err != nil {
		c.log.Error("Failed to expire pending reservation",
			"id", id,
			"status", r.Status(),
			"error", err,
		)
		return false
	}
	return true
}

// RunSweeper sweeps every interval until ctx is done.
func (c *ConfirmingManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("Confirmation sweeper started", "interval", interval, "window", c.window)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Confirmation sweeper stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
