package service

import (
	"context"
	"testing"
	"time"

	"agenda/internal/reservations/events"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

const confirmWindow = 10 * time.Minute

func newConfirming(t *testing.T) (*ConfirmingManager, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewConfirmingManager(f.mgr, confirmWindow), f
}

func (f *fixture) confirmed(t *testing.T, c *ConfirmingManager, user, service string, start time.Time) *model.Reservation {
	t.Helper()
	r, err := c.Reserve(context.Background(), &model.ReservationRequest{User: user, ServiceName: service, StartTime: start})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	r, err = c.Confirm(context.Background(), r.ID(), user)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	f.rec.Drain()
	return r
}

func TestConfirming_ReserveThenConfirm(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()

	r, err := c.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if r.Status() != model.StatusPendingConfirmation || r.IsConfirmed() {
		t.Fatalf("status = %s, want pending_confirmation", r.Status())
	}
	if f.free(t, at(11, 0), at(11, 30)) {
		t.Error("pending reservation does not hold its slots")
	}

	f.now = f.now.Add(5 * time.Minute)
	confirmed, err := c.Confirm(ctx, r.ID(), "alice")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.Status() != model.StatusConfirmed || !confirmed.IsConfirmed() {
		t.Errorf("status = %s, want confirmed", confirmed.Status())
	}

	got := eventTypes(f.rec.Drain())
	if len(got) != 2 || got[0] != events.TypeRequested || got[1] != events.TypeConfirmed {
		t.Errorf("events = %v", got)
	}

	_, err = c.Confirm(ctx, r.ID(), "alice")
	expectCode(t, err, apperrors.CodeWrongState)
}

func TestConfirming_ConfirmAfterWindow(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()

	r, err := c.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	f.now = f.now.Add(confirmWindow + time.Minute)

	_, err = c.Confirm(ctx, r.ID(), "alice")
	expectCode(t, err, apperrors.CodeConfirmationExpired)

	if !f.free(t, at(11, 0), at(11, 30)) {
		t.Error("expired reservation still holds its slots")
	}
	if f.index.Count() != 0 {
		t.Error("expired reservation still indexed")
	}
}

func TestConfirming_ConfirmByAnotherUser(t *testing.T) {
	c, _ := newConfirming(t)
	ctx := context.Background()

	r, err := c.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	_, err = c.Confirm(ctx, r.ID(), "mallory")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestConfirming_Cancel(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()
	r := f.confirmed(t, c, "alice", "haircut", at(11, 0))

	pending, err := c.Cancel(ctx, &model.CancelRequest{User: "alice", ID: r.ID()})
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if pending.Status() != model.StatusPendingCancelation {
		t.Fatalf("status = %s, want pending_cancelation", pending.Status())
	}
	if f.free(t, at(11, 0), at(11, 30)) {
		t.Error("slots freed before the cancellation was confirmed")
	}

	_, err = c.Cancel(ctx, &model.CancelRequest{User: "alice", ID: r.ID()})
	expectCode(t, err, apperrors.CodeWrongState)

	removed, err := c.Confirm(ctx, r.ID(), "alice")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if removed.Status() != model.StatusDeleted {
		t.Errorf("status = %s, want deleted", removed.Status())
	}
	if !f.free(t, at(11, 0), at(11, 30)) {
		t.Error("slots not freed after the confirmed cancellation")
	}
}

func TestConfirming_CancelPendingReservation(t *testing.T) {
	c, _ := newConfirming(t)
	ctx := context.Background()

	r, err := c.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	_, err = c.Cancel(ctx, &model.CancelRequest{User: "alice", ID: r.ID()})
	expectCode(t, err, apperrors.CodeWrongState)
}

func TestConfirming_UpdateThenConfirm(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()
	r := f.confirmed(t, c, "alice", "haircut", at(11, 0))

	res, err := c.Update(ctx, &model.ReservationUpdate{User: "alice", ID: r.ID(), StartTime: timePtr(at(11, 15))})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Old.Status() != model.StatusPendingUpdate || res.Old.PendingReplacement() != res.New.ID() {
		t.Errorf("old = %+v, want pending_update pointing at the proposal", res.Old.View())
	}
	if res.New.Status() != model.StatusPendingConfirmation || res.New.Replaces() != r.ID() {
		t.Errorf("proposal = %+v, want pending_confirmation replacing %s", res.New.View(), r.ID())
	}
	// both the current and the proposed slots are held
	if f.free(t, at(11, 0), at(11, 15)) || f.free(t, at(11, 30), at(11, 45)) {
		t.Error("pending update released or skipped slots")
	}

	proposal, err := c.Proposal(ctx, r.ID(), "alice")
	if err != nil || proposal.ID() != res.New.ID() {
		t.Fatalf("Proposal() = %v, %v", proposal, err)
	}

	final, err := c.Confirm(ctx, r.ID(), "alice")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if final.ID() != r.ID() || final.Status() != model.StatusConfirmed || final.Replaces() != "" {
		t.Errorf("final = %+v", final.View())
	}
	if !final.StartTime().Equal(at(11, 15)) {
		t.Errorf("start = %s, want 11:15", final.StartTime().Format("15:04"))
	}
	if !f.free(t, at(11, 0), at(11, 15)) {
		t.Error("11:00 not released after the confirmed update")
	}
	if f.free(t, at(11, 15), at(11, 45)) {
		t.Error("11:15-11:45 not booked after the confirmed update")
	}
	if f.index.Count() != 1 {
		t.Errorf("indexed reservations = %d, want 1", f.index.Count())
	}
	if _, err := c.Proposal(ctx, r.ID(), "alice"); err == nil {
		t.Error("proposal kept after confirmation")
	}
}

func TestConfirming_UpdateConflict(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()
	r := f.confirmed(t, c, "alice", "haircut", at(11, 0))
	f.confirmed(t, c, "bob", "haircut", at(11, 45))

	_, err := c.Update(ctx, &model.ReservationUpdate{User: "alice", ID: r.ID(), StartTime: timePtr(at(11, 30))})
	expectCode(t, err, apperrors.CodeAlreadyBooked)

	stored, _ := f.index.FindByID(r.ID())
	if stored.Status() != model.StatusConfirmed {
		t.Errorf("status = %s after a failed update, want confirmed", stored.Status())
	}
	if !f.free(t, at(11, 30), at(11, 45)) {
		t.Error("failed update left 11:30 booked")
	}
}

func TestConfirming_Decline(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()
	r := f.confirmed(t, c, "alice", "haircut", at(11, 0))

	if _, err := c.Update(ctx, &model.ReservationUpdate{User: "alice", ID: r.ID(), StartTime: timePtr(at(11, 15))}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	restored, err := c.Decline(ctx, r.ID(), "alice")
	if err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if restored.Status() != model.StatusConfirmed || restored.PendingReplacement() != "" {
		t.Errorf("restored = %+v", restored.View())
	}
	if !f.free(t, at(11, 30), at(11, 45)) {
		t.Error("declined proposal still holds 11:30")
	}
	if f.free(t, at(11, 0), at(11, 30)) {
		t.Error("declining released the original slots")
	}

	_, err = c.Decline(ctx, r.ID(), "alice")
	expectCode(t, err, apperrors.CodeWrongState)
}

func TestConfirming_Sweep(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()

	cancelled := f.confirmed(t, c, "alice", "haircut", at(11, 0))
	updated := f.confirmed(t, c, "bob", "haircut", at(12, 0))

	pending, err := c.Reserve(ctx, &model.ReservationRequest{User: "carol", ServiceName: "haircut", StartTime: at(15, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if _, err := c.Cancel(ctx, &model.CancelRequest{User: "alice", ID: cancelled.ID()}); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := c.Update(ctx, &model.ReservationUpdate{User: "bob", ID: updated.ID(), DurationMin: intPtr(45)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if n := c.Sweep(ctx); n != 0 {
		t.Fatalf("Sweep() inside the window = %d, want 0", n)
	}

	f.now = f.now.Add(confirmWindow + time.Minute)
	fresh, err := c.Reserve(ctx, &model.ReservationRequest{User: "dave", ServiceName: "haircut", StartTime: at(16, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	f.rec.Drain()

	if n := c.Sweep(ctx); n != 3 {
		t.Fatalf("Sweep() = %d, want 3", n)
	}

	if _, err := f.index.FindByID(pending.ID()); err == nil {
		t.Error("expired pending reservation still indexed")
	}
	if !f.free(t, at(15, 0), at(15, 30)) {
		t.Error("expired pending reservation still holds its slots")
	}
	if r, _ := f.index.FindByID(cancelled.ID()); r.Status() != model.StatusConfirmed {
		t.Errorf("expired cancellation status = %s, want confirmed", r.Status())
	}
	if r, _ := f.index.FindByID(updated.ID()); r.Status() != model.StatusConfirmed || !r.EndTime().Equal(at(12, 30)) {
		t.Errorf("expired update left %+v", r.View())
	}
	if !f.free(t, at(12, 30), at(12, 45)) {
		t.Error("expired update proposal still holds 12:30")
	}
	if r, _ := f.index.FindByID(fresh.ID()); r.Status() != model.StatusPendingConfirmation {
		t.Error("reservation inside its window was swept")
	}

	for _, e := range f.rec.Drain() {
		if e.Type != events.TypeExpired {
			t.Errorf("sweep published %s, want %s", e.Type, events.TypeExpired)
		}
	}
}

func TestConfirming_RunSweeperStops(t *testing.T) {
	c, _ := newConfirming(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

func TestConfirming_DryRunsMatchTransitions(t *testing.T) {
	c, f := newConfirming(t)
	ctx := context.Background()

	pending, err := c.Reserve(ctx, &model.ReservationRequest{User: "alice", ServiceName: "haircut", StartTime: at(11, 0)})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	cancelReq := &model.CancelRequest{User: "alice", ID: pending.ID()}
	updateReq := &model.ReservationUpdate{User: "alice", ID: pending.ID(), StartTime: timePtr(at(12, 0))}

	expectCode(t, c.CanCancel(ctx, cancelReq), apperrors.CodeWrongState)
	_, err = c.Cancel(ctx, cancelReq)
	expectCode(t, err, apperrors.CodeWrongState)

	expectCode(t, c.CanUpdate(ctx, updateReq), apperrors.CodeWrongState)
	_, err = c.Update(ctx, updateReq)
	expectCode(t, err, apperrors.CodeWrongState)

	if _, err := c.Confirm(ctx, pending.ID(), "alice"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	f.rec.Drain()

	if err := c.CanUpdate(ctx, updateReq); err != nil {
		t.Errorf("CanUpdate() on a confirmed reservation = %v", err)
	}
	if err := c.CanCancel(ctx, cancelReq); err != nil {
		t.Fatalf("CanCancel() on a confirmed reservation = %v", err)
	}
	if _, err := c.Cancel(ctx, cancelReq); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// pending cancellation: neither change is accepted until it is resolved
	expectCode(t, c.CanCancel(ctx, cancelReq), apperrors.CodeWrongState)
	expectCode(t, c.CanUpdate(ctx, updateReq), apperrors.CodeWrongState)
}

func TestConfirming_EmptyIDIsInvalid(t *testing.T) {
	c, _ := newConfirming(t)
	ctx := context.Background()

	_, err := c.Confirm(ctx, "", "alice")
	expectCode(t, err, apperrors.CodeInvalidInput)
	_, err = c.Decline(ctx, "", "alice")
	expectCode(t, err, apperrors.CodeInvalidInput)
	_, err = c.Proposal(ctx, "", "alice")
	expectCode(t, err, apperrors.CodeInvalidInput)
}
