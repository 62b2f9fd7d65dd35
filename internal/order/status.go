package order

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusReturned   Status = "RETURNED"
	StatusRefunded   Status = "REFUNDED"
)

var nextStatus = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
	StatusDelivered:  StatusCompleted,
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusReturned, StatusRefunded:
		return true
	}
	return false
}

func (s Status) isSideBranch() bool {
	return s == StatusCancelled || s == StatusReturned || s == StatusRefunded
}

func (s Status) beforeDelivery() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move: one step along the
// fulfilment path, or into CANCELLED/RETURNED/REFUNDED before delivery.
func CanTransition(from, to Status) bool {
	if next, ok := nextStatus[from]; ok && next == to {
		return true
	}
	return to.isSideBranch() && from.beforeDelivery()
}

// Transition moves the order to status and appends to its history.
// An illegal move leaves the order untouched.
func (o *Order) Transition(to Status, actor, reason string, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%s -> %s: %w", o.Status, to, ErrInvalidTransition)
	}

	o.StatusHistory = append(o.StatusHistory, StatusChange{
		From:   o.Status,
		To:     to,
		Actor:  actor,
		Reason: reason,
		At:     at.UTC(),
	})
	o.Status = to
	return nil
}
