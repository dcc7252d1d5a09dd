package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"companioncare/pkg/geo"
	"companioncare/pkg/models"
)

// Action is something a party tries to do to a service request.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionCancel   Action = "cancel"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionConfirm  Action = "confirm"
	ActionDispute  Action = "dispute"
	ActionResolve  Action = "resolve"
	ActionReject   Action = "reject"
)

// Actor identifies who is attempting an action. Home is only consulted for the
// accept radius guard.
type Actor struct {
	ID   string
	Role models.Role
	Home models.LatLng
}

var (
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")
	ErrWrongActor        = errors.New("lifecycle: actor may not perform this action")
	ErrTooEarly          = errors.New("lifecycle: too early for this action")
	ErrOutOfRange        = errors.New("lifecycle: request outside companion radius")
)

// InvalidTransitionError reports the attempted action and the status it was
// attempted from. It matches ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	Action Action
	Status models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: action %q not allowed from status %q", e.Action, e.Status)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Machine validates and applies status transitions. It performs no I/O; the
// caller persists the returned request.
type Machine struct {
	RadiusKm          float64
	CheckOutTolerance time.Duration
}

func NewMachine(radiusKm float64, checkOutTolerance time.Duration) *Machine {
	return &Machine{RadiusKm: radiusKm, CheckOutTolerance: checkOutTolerance}
}

// Transition returns a copy of req with the action applied, or an error and no
// mutation. A confirmed request is terminal and admits no further actions.
func (m *Machine) Transition(req *models.ServiceRequest, action Action, actor Actor, now time.Time) (*models.ServiceRequest, error) {
	if req.Confirmed {
		return nil, &InvalidTransitionError{Action: action, Status: req.Status}
	}

	next := *req

	switch {
	case req.Status == models.StatusPending && action == ActionAccept:
		if actor.Role != models.RoleCompanion || actor.ID == "" {
			return nil, ErrWrongActor
		}
		if req.CompanionID != actor.ID && geo.DistanceKm(actor.Home, req.Origin) > m.RadiusKm {
			return nil, ErrOutOfRange
		}
		next.CompanionID = actor.ID
		next.Status = models.StatusAccepted

	case req.Status == models.StatusPending && action == ActionCancel:
		if actor.ID != req.RequesterID {
			return nil, ErrWrongActor
		}
		next.Status = models.StatusCancelled

	case req.Status == models.StatusAccepted && action == ActionCheckIn:
		if actor.ID != req.CompanionID {
			return nil, ErrWrongActor
		}
		if now.Before(req.ScheduledStart) {
			return nil, ErrTooEarly
		}
		checkIn := now
		next.CheckInTime = &checkIn
		next.Status = models.StatusInProgress

	case req.Status == models.StatusInProgress && action == ActionCheckOut:
		if actor.ID != req.CompanionID {
			return nil, ErrWrongActor
		}
		if req.CheckInTime == nil {
			return nil, &InvalidTransitionError{Action: action, Status: req.Status}
		}
		due := req.CheckInTime.Add(time.Duration(req.Duration)*time.Hour - m.CheckOutTolerance)
		if now.Before(due) {
			return nil, ErrTooEarly
		}
		checkOut := now
		next.CheckOutTime = &checkOut
		next.Status = models.StatusCompleted

	case req.Status == models.StatusCompleted && action == ActionConfirm:
		if actor.ID != req.RequesterID {
			return nil, ErrWrongActor
		}
		next.Confirmed = true

	case req.Status == models.StatusCompleted && action == ActionDispute:
		if actor.ID != req.RequesterID {
			return nil, ErrWrongActor
		}
		next.Status = models.StatusConflicts

	case req.Status == models.StatusConflicts && (action == ActionResolve || action == ActionReject):
		// Resolution is recorded on the claim; the request itself keeps its
		// conflicts status as the audit trail.

	default:
		return nil, &InvalidTransitionError{Action: action, Status: req.Status}
	}

	return &next, nil
}
