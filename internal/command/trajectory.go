package command

import (
	"sort"

	"github.com/pkg/errors"
)

// Waypoint is a command that becomes active at Time seconds.
type Waypoint struct {
	Time    float64
	Command Command
}

// Trajectory is a time-ordered list of waypoints for one objective, as
// produced by a planner.
type Trajectory struct {
	waypoints []Waypoint
}

func NewTrajectory(wps ...Waypoint) (*Trajectory, error) {
	for i, wp := range wps {
		if wp.Command == nil {
			return nil, errors.Wrapf(ErrBadCommand, "waypoint %d has no command", i)
		}
	}
	sorted := append([]Waypoint(nil), wps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &Trajectory{waypoints: sorted}, nil
}

func (t *Trajectory) Len() int { return len(t.waypoints) }

// Index returns the position of the latest waypoint whose time is not
// after now, or -1 before the first one.
func (t *Trajectory) Index(now float64) int {
	return sort.Search(len(t.waypoints), func(i int) bool { return t.waypoints[i].Time > now }) - 1
}

func (t *Trajectory) At(i int) Waypoint { return t.waypoints[i] }

// Active returns the latest waypoint command whose time is not after now.
func (t *Trajectory) Active(now float64) (Command, bool) {
	i := t.Index(now)
	if i < 0 {
		return nil, false
	}
	return t.waypoints[i].Command, true
}

// End is the time of the last waypoint.
func (t *Trajectory) End() float64 {
	if len(t.waypoints) == 0 {
		return 0
	}
	return t.waypoints[len(t.waypoints)-1].Time
}
