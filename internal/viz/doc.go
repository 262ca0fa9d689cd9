// Package viz draws a running controller in the terminal.
//
// A [Tracker] observes control ticks and keeps the latest [Frame]: a side
// view of the robot, its torques and contact forces. [Monitor] is a Bubble
// Tea program that polls the tracker; [Picker] chooses a robot preset
// before a live run. [PlotSeries] renders stored traces with asciigraph.
//
// # Key Bindings
//
//	Space - Freeze the display
//	V     - Toggle front/side view
//	?     - Show help overlay
//	Q     - Quit
package viz
