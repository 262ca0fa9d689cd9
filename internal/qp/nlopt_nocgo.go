//go:build no_cgo

package qp

// NLopt mimics the cgo backend; it cannot solve without cgo.
type NLopt struct {
	cfg Config
}

func NewNLopt(cfg Config) *NLopt { return &NLopt{cfg: cfg.withDefaults()} }

func (s *NLopt) Name() string { return NLoptName }

// Solve refuses to solve problems without cgo.
func (s *NLopt) Solve(p *Problem) (Result, error) {
	return Result{}, ErrUnsupported
}
