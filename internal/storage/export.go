package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/wholebody/internal/sim"
)

type ExportData struct {
	Robot         string               `json:"robot"`
	Solver        string               `json:"solver"`
	Period        float64              `json:"period"`
	Duration      float64              `json:"duration"`
	Steps         int                  `json:"steps"`
	Joints        []string             `json:"joints"`
	Times         []float64            `json:"times"`
	Torques       [][]float64          `json:"torques"`
	ContactForces map[string][]float64 `json:"contact_forces"`
	BaseHeight    []float64            `json:"base_height"`
	Metrics       map[string]float64   `json:"metrics"`
}

func NewExportData(meta RunMetadata, result *sim.Result) ExportData {
	return ExportData{
		Robot:         meta.Robot,
		Solver:        meta.Solver,
		Period:        meta.Period,
		Duration:      meta.Duration,
		Steps:         result.StepsTaken,
		Joints:        result.Joints,
		Times:         result.Times,
		Torques:       result.Torques,
		ContactForces: result.ContactForces,
		BaseHeight:    result.BaseHeight,
		Metrics:       result.Metrics,
	}
}

func ExportJSON(path string, meta RunMetadata, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, result)
}

func WriteJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, result))
}
