package probe

import "errors"

var (
	// ErrInvalidDirection is returned when a direction token is not one of
	// the six recognized values.
	ErrInvalidDirection = errors.New("invalid probe direction")

	// ErrInvalidConfig is returned when probe parameters or options fail
	// validation.
	ErrInvalidConfig = errors.New("invalid probe configuration")

	// ErrSessionState is returned when a session operation is attempted in
	// the wrong state, like starting a second session or sampling without
	// one.
	ErrSessionState = errors.New("probe session state error")

	// ErrNoContact is returned when a contact move reaches its travel limit
	// without the sensor triggering.
	ErrNoContact = errors.New("probe did not trigger")

	// ErrTolerance is returned when a sample batch spreads beyond the
	// configured tolerance and no retries remain.
	ErrTolerance = errors.New("probe samples exceed tolerance")

	// ErrNotHomed is returned when probing is attempted before all axes
	// have been homed.
	ErrNotHomed = errors.New("must home before probing")
)
