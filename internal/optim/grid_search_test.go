package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/wholebody/internal/config"
	"github.com/san-kum/wholebody/internal/experiment"
)

func legConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Robot = "leg"
	cfg.Duration = 0.05
	return cfg
}

func TestNewGridSearch(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		ranges [][]float64
		ok     bool
	}{
		{"valid", []string{"friction"}, [][]float64{{0.5, 1}}, true},
		{"length mismatch", []string{"friction"}, nil, false},
		{"unknown", []string{"kp"}, [][]float64{{1}}, false},
		{"empty range", []string{"friction"}, [][]float64{{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGridSearch(tt.params, tt.ranges, nil)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}

	_, err := NewGridSearch([]string{"kp"}, [][]float64{{1}}, nil)
	if !errors.Is(err, ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
}

func TestParams(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Params()).To(ContainElements("friction", "rho_weight", "tikhonov"))
	g.Expect(Params()[0]).To(Equal("friction"))
}

func TestSearch(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"friction", "rho_weight"}, [][]float64{{0.6, 1}, {1e-4, 1e-3}}, nil)
	g.Expect(err).NotTo(HaveOccurred())

	trials, err := gs.Search(context.Background(), legConfig(), experiment.NewRegistry(), "failed_ticks")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(trials).To(HaveLen(4))
	for i, tr := range trials {
		g.Expect(tr.Params).To(HaveLen(2))
		g.Expect(math.IsInf(tr.Score, 1)).To(BeFalse())
		if i > 0 {
			g.Expect(tr.Score).To(BeNumerically(">=", trials[i-1].Score))
		}
	}
}

func TestSearchCollectsFailures(t *testing.T) {
	g := NewWithT(t)
	// a negative friction fails validation
	gs, err := NewGridSearch([]string{"friction"}, [][]float64{{-1, 0.8}}, nil)
	g.Expect(err).NotTo(HaveOccurred())

	trials, err := gs.Search(context.Background(), legConfig(), experiment.NewRegistry(), "failed_ticks")
	g.Expect(err).To(HaveOccurred())
	g.Expect(errors.Is(err, config.ErrInvalid)).To(BeTrue())
	g.Expect(trials).To(HaveLen(2))
	g.Expect(trials[0].Params["friction"]).To(Equal(0.8))
	g.Expect(math.IsInf(trials[1].Score, 1)).To(BeTrue())

	_, err = gs.Search(context.Background(), legConfig(), experiment.NewRegistry(), "nope")
	g.Expect(err).To(HaveOccurred())
}

func TestSearchCanceled(t *testing.T) {
	g := NewWithT(t)
	gs, err := NewGridSearch([]string{"friction"}, [][]float64{{0.6, 0.8}}, nil)
	g.Expect(err).NotTo(HaveOccurred())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trials, err := gs.Search(ctx, legConfig(), experiment.NewRegistry(), "failed_ticks")
	g.Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	g.Expect(trials).To(BeEmpty())
}
