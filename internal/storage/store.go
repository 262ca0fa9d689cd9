package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/san-kum/wholebody/internal/sim"
)

const (
	metadataFile = "metadata.json"
	TorquesFile  = "torques.csv"
	ContactsFile = "contacts.csv"
)

var ErrUnknownColumn = errors.New("storage: unknown trace column")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Robot      string             `json:"robot"`
	Scenario   string             `json:"scenario,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Period     float64            `json:"period"`
	Duration   float64            `json:"duration"`
	Solver     string             `json:"solver"`
	Integrator string             `json:"integrator"`
	Plant      string             `json:"plant"`
	Steps      int                `json:"steps"`
	Failures   int                `json:"failures"`
	Halted     bool               `json:"halted"`
	Errors     []string           `json:"errors,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes the metadata and the torque and contact traces of one run.
// ID, Timestamp and the result summary fields of meta are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.Timestamp = time.Now()
	meta.ID = fmt.Sprintf("%s_%d", meta.Robot, meta.Timestamp.UnixNano())
	meta.Steps = result.StepsTaken
	meta.Failures = result.Failures
	meta.Halted = result.Halted
	meta.Metrics = result.Metrics
	meta.Errors = lo.Map(result.Errors, func(err error, _ int) string { return err.Error() })

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	header := append([]string{"time", "base_height", "iterations"}, result.Joints...)
	err = writeCSV(filepath.Join(runDir, TorquesFile), header, len(result.Times), func(i int) []float64 {
		row := []float64{result.Times[i], at(result.BaseHeight, i), float64(at(result.Iterations, i))}
		if i < len(result.Torques) {
			row = append(row, result.Torques[i]...)
		}
		return row
	})
	if err != nil {
		return "", err
	}

	bodies := lo.Keys(result.ContactForces)
	sort.Strings(bodies)
	err = writeCSV(filepath.Join(runDir, ContactsFile), append([]string{"time"}, bodies...), len(result.Times), func(i int) []float64 {
		row := []float64{result.Times[i]}
		for _, b := range bodies {
			row = append(row, at(result.ContactForces[b], i))
		}
		return row
	})
	if err != nil {
		return "", err
	}
	return meta.ID, nil
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

func writeCSV(path string, header []string, rows int, row func(int) []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		vals := row(i)
		record := make([]string, len(vals))
		for j, v := range vals {
			record[j] = strconv.FormatFloat(v, 'g', 10, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	return &meta, nil
}

// Trace is a CSV file of a run: a time column and named value columns.
type Trace struct {
	Columns []string
	Times   []float64
	Rows    [][]float64
}

// Column returns the values of the named column.
func (t *Trace) Column(name string) ([]float64, bool) {
	k := lo.IndexOf(t.Columns, name)
	if k < 0 {
		return nil, false
	}
	return lo.Map(t.Rows, func(r []float64, _ int) float64 { return r[k] }), true
}

// Series returns the values of each named column, in order.
func (t *Trace) Series(names ...string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, name := range names {
		values, ok := t.Column(name)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%q", name)
		}
		out[i] = values
	}
	return out, nil
}

// LoadTrace reads TorquesFile or ContactsFile of a run.
func (s *Store) LoadTrace(runID, file string) (*Trace, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, file))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "run %s: %s", runID, file)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("run %s: %s has no header", runID, file)
	}

	tr := &Trace{Columns: records[0][1:]}
	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "run %s: %s line %d", runID, file, i+2)
			}
			vals[j] = v
		}
		tr.Times = append(tr.Times, vals[0])
		tr.Rows = append(tr.Rows, vals[1:])
	}
	return tr, nil
}
