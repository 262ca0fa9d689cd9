package control

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects which desired quantity a joint drive tracks.
type Mode int

const (
	ModeTorque Mode = iota
	ModePosition
	ModeVelocity
)

var modeNames = [...]string{"torque", "position", "velocity"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, errors.Errorf("control: unknown joint mode %q", s)
}

// JointBehavior configures how one joint's drive uses the solution.
type JointBehavior struct {
	Mode Mode    `yaml:"mode"`
	Kp   float64 `yaml:"kp"`
	Kd   float64 `yaml:"kd"`
}

func (m Mode) MarshalYAML() (interface{}, error) { return m.String(), nil }

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseMode(value.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// JointOutput is the low-level command for one one-DoF joint. Position and
// velocity desireds integrate the solved acceleration over one period.
type JointOutput struct {
	Name string
	Mode Mode
	Q    float64
	Qd   float64
	Qdd  float64
	Tau  float64
	Kp   float64
	Kd   float64
}

type LowLevelOutput struct {
	Tick   uint64
	Time   time.Time
	Joints []JointOutput
	// Fallback is set when the torques come from the failure policy.
	Fallback bool
}

// OutputWriter delivers low-level commands to the joint drives.
type OutputWriter interface {
	Write(out LowLevelOutput) error
	// Halt stops the drives; nothing is written afterwards.
	Halt(reason error)
}

// Recorder is an OutputWriter that keeps everything in memory.
type Recorder struct {
	mu      sync.Mutex
	outputs []LowLevelOutput
	halted  error
	limit   int
}

// NewRecorder keeps the last limit outputs; limit <= 0 keeps all of them.
func NewRecorder(limit int) *Recorder { return &Recorder{limit: limit} }

func (r *Recorder) Write(out LowLevelOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted != nil {
		return errors.Wrap(ErrHalted, "write after halt")
	}
	r.outputs = append(r.outputs, out)
	if r.limit > 0 && len(r.outputs) > r.limit {
		r.outputs = r.outputs[len(r.outputs)-r.limit:]
	}
	return nil
}

func (r *Recorder) Halt(reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reason == nil {
		reason = ErrHalted
	}
	r.halted = reason
}

func (r *Recorder) Outputs() []LowLevelOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LowLevelOutput(nil), r.outputs...)
}

// Halted returns the halt reason, nil while running.
func (r *Recorder) Halted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}
