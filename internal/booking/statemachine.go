package booking

import (
	"fmt"
	"time"
)

// DefaultCancelWindow is how far ahead of the start an appointment can still
// be cancelled.
const DefaultCancelWindow = 24 * time.Hour

// StateMachine enforces the appointment lifecycle:
//
//	AGENDADA -> CONFIRMADA -> COMPLETADA
//	AGENDADA | CONFIRMADA -> CANCELADA
//
// COMPLETADA and CANCELADA are terminal. Authorization is evaluated before any
// time guard, so an unauthorized actor always sees ForbiddenError.
type StateMachine struct {
	cancelWindow time.Duration
}

func NewStateMachine(cancelWindow time.Duration) StateMachine {
	if cancelWindow <= 0 {
		cancelWindow = DefaultCancelWindow
	}
	return StateMachine{cancelWindow: cancelWindow}
}

// Guard reports whether the transition to the target status is legal for the
// appointment, the actor's capabilities, and the current time. A nil return
// means the transition may be persisted.
func (m StateMachine) Guard(appt *Appointment, to Status, caps Capabilities, now time.Time) error {
	if appt.Status.Terminal() {
		return &StateError{Status: appt.Status, Detail: fmt.Sprintf("%s is terminal", appt.Status)}
	}

	switch to {
	case StatusConfirmada:
		if appt.Status != StatusAgendada {
			return &StateError{Status: appt.Status, Detail: "only AGENDADA appointments can be confirmed"}
		}
		if !caps.IsAdmin && !caps.IsAssociatedProvider {
			return &ForbiddenError{Action: "confirm this appointment"}
		}
		return nil

	case StatusCompletada:
		if !caps.IsAdmin && !caps.IsAssociatedProvider {
			return &ForbiddenError{Action: "complete this appointment"}
		}
		if now.Before(appt.Start) {
			return &StateError{Status: appt.Status, Detail: "appointment has not started yet"}
		}
		return nil

	case StatusCancelada:
		if !caps.IsAdmin && !caps.IsAssociatedProvider && !caps.IsOwningPatient {
			return &ForbiddenError{Action: "cancel this appointment"}
		}
		if appt.Start.Sub(now) <= m.cancelWindow {
			return &StateError{Status: appt.Status, Detail: fmt.Sprintf("cancellation requires more than %s notice", m.cancelWindow)}
		}
		return nil

	default:
		return &StateError{Status: appt.Status, Detail: fmt.Sprintf("unknown target status %s", to)}
	}
}
