// Package model provides the floating-base rigid-body tree.
//
// A [Model] owns bodies, joints and an arena of reference frames indexed by
// [FrameID] with the world frame at index 0:
//
//   - [Joint]: one of the closed set [Revolute], [Prismatic], [Floating]
//   - [RigidBody]: mass properties, one parent joint, any number of children
//   - frames: world, joint "before" frames, body frames, CoM frames and
//     fixed user frames (sole/contact frames)
//
// # Usage
//
//	b := model.NewBuilder("leg")
//	pelvis := b.AddFloatingBase("root", model.BodySpec{Name: "pelvis", Mass: 5})
//	b.AddRevolute("hip", pelvis, offset, r3.Vector{Y: 1}, thigh)
//	m, err := b.Build()
//	m.UpdateKinematics()
//	jac, err := m.Jacobian(model.Elevator, foot, model.World)
//
// # Generations
//
// Every setter advances a state generation. UpdateKinematics stamps the
// cache with the current generation and queries on a stale cache return
// [ErrStaleKinematics]. A Model is owned by one goroutine at a time.
package model
