package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/config"
)

const (
	// DefaultDir is where sessions are written when none is configured.
	DefaultDir = "Data"
	// TimeFormat is the timestamp layout of data rows.
	TimeFormat = "2006-01-02 15:04:05.000"

	fileTimeFormat = "02-01-2006_15-04-05"
)

var csvHeader = []string{"timestamp", "resistance"}

// Recorder buffers the readings of one measurement session and writes
// them to a semicolon separated CSV file on Export.
type Recorder struct {
	mu         sync.Mutex
	dir        string
	identifier string
	log        *zap.Logger

	sampleRate int
	times      []time.Time
	values     []float64
}

// New creates a Recorder from cfg.
func New(cfg config.RecorderConfig, log *zap.Logger) *Recorder {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		dir:        cfg.Dir,
		identifier: cfg.Identifier,
		log:        log,
	}
}

// SetSampleRate records the instrument rate written in the file header.
func (r *Recorder) SetSampleRate(hz int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleRate = hz
}

// Add appends one reading.
func (r *Recorder) Add(ts time.Time, ohms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, ts)
	r.values = append(r.values, ohms)
}

// Len returns the number of buffered readings.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Reset discards buffered readings.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = r.times[:0]
	r.values = r.values[:0]
}

// Export writes the buffered session to a new file named after now and the
// identifier, and returns its path.
func (r *Recorder) Export(now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	name := now.Format(fileTimeFormat) + "_" + r.identifier + ".csv"
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "#Identifier: %s\n#Sample rate: %d Hz\n#Units: Ohm\n\n", r.identifier, r.sampleRate); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i, v := range r.values {
		if err := w.Write([]string{r.times[i].Format(TimeFormat), FormatOhms(v)}); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}

	r.log.Info("session exported", zap.String("path", path), zap.Int("rows", len(r.values)))
	return path, nil
}

// FormatOhms renders a resistance with three decimals and a decimal comma.
func FormatOhms(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 3, 64), ".", ",", 1)
}
