package model

import "errors"

// Model errors. Errors raised while building a model or resolving a
// Jacobian are configuration errors and must abort controller setup.
var (
	// ErrInvalidModel indicates a malformed body tree (wrapped with detail).
	ErrInvalidModel = errors.New("model: invalid model")

	// ErrDisconnectedBodies indicates a Jacobian request where the base is not
	// an ancestor of the end effector.
	ErrDisconnectedBodies = errors.New("model: bodies are not connected through the tree")

	// ErrUnknownBody indicates a body id or name not present in the model.
	ErrUnknownBody = errors.New("model: unknown body")

	// ErrUnknownJoint indicates a joint id or name not present in the model.
	ErrUnknownJoint = errors.New("model: unknown joint")

	// ErrUnknownFrame indicates a frame id or name not present in the model.
	ErrUnknownFrame = errors.New("model: unknown frame")

	// ErrStaleKinematics indicates joint state changed after the last UpdateKinematics.
	ErrStaleKinematics = errors.New("model: kinematics are stale, call UpdateKinematics")

	// ErrDimensionMismatch indicates a state vector of the wrong size.
	ErrDimensionMismatch = errors.New("model: dimension mismatch")
)
