package control

import (
	"errors"
	"fmt"
)

var (
	// ErrHalted is returned once the output has been halted.
	ErrHalted = errors.New("control: output halted")

	ErrBadConfig = errors.New("control: invalid configuration")
)

// Stage names the part of a tick that failed.
type Stage int

const (
	StageState Stage = iota + 1
	StageCommands
	StageSolve
	StageOutput
)

func (s Stage) String() string {
	switch s {
	case StageState:
		return "state"
	case StageCommands:
		return "commands"
	case StageSolve:
		return "solve"
	case StageOutput:
		return "output"
	}
	return "unknown"
}

// TickError is returned by Loop.Step when a tick produced no solution.
// Fallback tells which policy supplied the torques that were written.
type TickError struct {
	Tick     uint64
	Stage    Stage
	Fallback Fallback
	Wrapped  error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("control: tick %d failed in %s (fallback %s): %v", e.Tick, e.Stage, e.Fallback, e.Wrapped)
}

func (e *TickError) Unwrap() error { return e.Wrapped }
