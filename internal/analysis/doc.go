// Package analysis inspects stored run traces.
//
//   - [Spectrum] and [Dominant]: frequency content of a trace
//   - [Chatter]: share of a torque signal's oscillation above a cutoff,
//     which flags active-set switching and contact flicker
//   - [NewPhasePortrait]: one trace against another, drawn as text
//
// A torque that is smooth under a steady task shows almost no energy above
// a few hertz:
//
//	if analysis.Chatter(tau, dt, 10) > 0.5 {
//	    // controller is switching between solutions
//	}
package analysis
