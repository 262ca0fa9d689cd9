package metrics

import "github.com/san-kum/wholebody/internal/control"

// Iterations is the mean number of QP iterations per tick.
type Iterations struct {
	m mean
}

func NewIterations() *Iterations { return &Iterations{} }

func (i *Iterations) Name() string { return "qp_iterations" }

func (i *Iterations) Observe(t control.Telemetry) { i.m.add(float64(t.Iterations)) }
func (i *Iterations) Value() float64              { return i.m.value() }
func (i *Iterations) Reset()                      { i.m.reset() }

// Failures counts ticks that fell back instead of using a solution.
type Failures struct {
	count int
}

func NewFailures() *Failures { return &Failures{} }

func (f *Failures) Name() string { return "failed_ticks" }

func (f *Failures) Observe(t control.Telemetry) {
	if t.Fallback {
		f.count++
	}
}

func (f *Failures) Value() float64 { return float64(f.count) }
func (f *Failures) Reset()         { f.count = 0 }

// Overruns counts ticks that took longer than the control period.
type Overruns struct {
	count int
}

func NewOverruns() *Overruns { return &Overruns{} }

func (o *Overruns) Name() string { return "overruns" }

func (o *Overruns) Observe(t control.Telemetry) {
	if t.Overrun {
		o.count++
	}
}

func (o *Overruns) Value() float64 { return float64(o.count) }
func (o *Overruns) Reset()         { o.count = 0 }
