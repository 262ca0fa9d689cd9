// Package control runs the whole-body controller at a fixed period.
//
// Each tick reads the robot state, refreshes kinematics, dynamics and contact
// matrices, aggregates the commands on the [CommandBoard], solves the
// whole-body QP and writes a [LowLevelOutput]. A failed tick falls back to
// holding the previous torques or to zero torque; repeated failures halt the
// output.
//
// # Usage
//
//	board := control.NewCommandBoard()
//	board.Submit(robot.Commands...)
//	loop, err := control.New(control.Deps{
//		Model: robot.Model, Optimizer: opt, Board: board,
//		Source: sensors, Output: drives, Logger: logger,
//	}, control.DefaultConfig())
//	go loop.Run(ctx)
//	tel, ok := loop.Telemetry().Load()
//
// Commands are handed over through [CommandBoard] and telemetry through
// [Latest]; neither blocks the control goroutine.
package control
