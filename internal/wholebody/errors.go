package wholebody

import (
	"errors"
	"fmt"

	"github.com/san-kum/wholebody/internal/qp"
)

var (
	// ErrInfeasible is wrapped by every *InfeasibleError.
	ErrInfeasible = errors.New("wholebody: control solution infeasible")

	ErrBadSettings = errors.New("wholebody: invalid settings")
	ErrNegativeRho = errors.New("wholebody: solver returned negative contact force")
)

// Reason distinguishes why a tick produced no solution.
type Reason int

const (
	ReasonInfeasible Reason = iota + 1
	// ReasonTimeout means the solver used its whole iteration budget.
	ReasonTimeout
	ReasonNumerical
)

func (r Reason) String() string {
	switch r {
	case ReasonInfeasible:
		return "infeasible"
	case ReasonTimeout:
		return "timeout"
	case ReasonNumerical:
		return "numerical"
	}
	return "unknown"
}

// InfeasibleError reports a tick without a usable solution.
type InfeasibleError struct {
	Reason     Reason
	Status     qp.Status
	Iterations int
	Wrapped    error
}

func (e *InfeasibleError) Error() string {
	msg := fmt.Sprintf("%s: %s (solver %s after %d iterations)", ErrInfeasible, e.Reason, e.Status, e.Iterations)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *InfeasibleError) Unwrap() []error {
	if e.Wrapped == nil {
		return []error{ErrInfeasible}
	}
	return []error{ErrInfeasible, e.Wrapped}
}

func reasonFor(s qp.Status) Reason {
	switch s {
	case qp.Infeasible:
		return ReasonInfeasible
	case qp.MaxIterations:
		return ReasonTimeout
	}
	return ReasonNumerical
}
