package viz

import (
	"sort"
	"time"

	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/robots"
)

// Segment is a link drawn between two world points.
type Segment struct {
	From, To r3.Vector
}

// Frame is what the monitor draws for one tick.
type Frame struct {
	Tick       uint64
	Time       time.Time
	Elapsed    time.Duration
	Segments   []Segment
	Feet       []Segment
	CoM        r3.Vector
	Joints     []string
	Torques    []float64
	Limits     []float64
	Contacts   []string
	NormalZ    []float64
	Iterations int
	Status     qp.Status
	Fallback   bool
	Err        error
	Overruns   uint64
	Failures   uint64
}

// Tracker turns telemetry into frames. OnTick runs on the control
// goroutine, where the model is consistent; readers use Latest.
type Tracker struct {
	robot    *robots.Robot
	latest   control.Latest[Frame]
	overruns uint64
	failures uint64
}

func NewTracker(robot *robots.Robot) *Tracker {
	return &Tracker{robot: robot}
}

func (t *Tracker) Latest() (Frame, bool) { return t.latest.Load() }

func (t *Tracker) OnTick(tel control.Telemetry) {
	m := t.robot.Model
	if tel.Overrun {
		t.overruns++
	}
	if tel.Fallback {
		t.failures++
	}
	f := Frame{
		Tick:       tel.Tick,
		Time:       tel.Time,
		Elapsed:    tel.Elapsed,
		Joints:     tel.JointNames,
		Torques:    append([]float64(nil), tel.Torques...),
		Iterations: tel.Iterations,
		Status:     tel.Status,
		Fallback:   tel.Fallback,
		Err:        tel.Err,
		Overruns:   t.overruns,
		Failures:   t.failures,
	}
	for _, name := range tel.JointNames {
		limit := 0.0
		if id, ok := m.JointByName(name); ok {
			limit = m.Joint(id).EffortLimit
		}
		f.Limits = append(f.Limits, limit)
	}

	m.UpdateKinematics()
	for i := 0; i < m.NumBodies(); i++ {
		id := model.BodyID(i)
		parent, ok := m.ParentBody(id)
		if !ok || m.Joint(m.Body(id).Parent).Kind == model.Floating {
			continue
		}
		from, err := m.BodyTransform(parent)
		if err != nil {
			continue
		}
		to, err := m.BodyTransform(id)
		if err != nil {
			continue
		}
		f.Segments = append(f.Segments, Segment{From: from.Translation, To: to.Translation})
	}
	for _, c := range t.robot.Contacts {
		sole, err := m.FrameTransform(c.SoleFrame)
		if err != nil || len(c.Points) == 0 {
			continue
		}
		if body, err := m.BodyTransform(c.Body); err == nil {
			f.Segments = append(f.Segments, Segment{From: body.Translation, To: sole.Translation})
		}
		first := sole.ApplyPoint(c.Points[0])
		for _, p := range c.Points[1:] {
			f.Feet = append(f.Feet, Segment{From: first, To: sole.ApplyPoint(p)})
		}
	}
	if com, _, err := m.CenterOfMass(); err == nil {
		f.CoM = com
	}

	f.Contacts = t.robot.ContactNames()
	sort.Strings(f.Contacts)
	for _, name := range f.Contacts {
		f.NormalZ = append(f.NormalZ, tel.ContactWrenches[name].Linear.Z)
	}
	t.latest.Publish(f)
}
