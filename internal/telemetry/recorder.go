// Package telemetry records named samples into an append-only CSV-like file.
//
// A [Recorder] keeps the latest value of every named column. Each Flush
// appends one row of those values to an in-memory buffer; the buffer reaches
// the file in batches. The file starts with a fixed header block:
//
//	Buoysim File Output:
//	Current Recorder Version:, 0.01
//	Start Time:, 1700000000000
//
// followed by a column names row and the data rows, comma-space separated.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const (
	Version           = "0.01"
	Title             = "Buoysim File Output:"
	DefaultBufferSize = 50
	separator         = ", "
)

// Sink is the recording capability consumed by the simulator and controller.
type Sink interface {
	Record(name string, value interface{})
	Flush()
}

// Discard drops every sample.
type Discard struct{}

func (Discard) Record(string, interface{}) {}
func (Discard) Flush()                     {}

type Recorder struct {
	mu sync.Mutex

	w       io.Writer
	log     zerolog.Logger
	clock   clock.Clock
	bufSize int

	names       []string
	values      []string
	namesOnDisk int
	lines       []string
	rows        int
	failures    int
}

type Option func(*Recorder)

func WithClock(c clock.Clock) Option     { return func(r *Recorder) { r.clock = c } }
func WithBufferSize(n int) Option        { return func(r *Recorder) { r.bufSize = n } }
func WithLogger(l zerolog.Logger) Option { return func(r *Recorder) { r.log = l } }

// NewRecorder writes the header block to w and returns a recorder appending
// to it. A header write failure is logged, not returned.
func NewRecorder(w io.Writer, opts ...Option) *Recorder {
	r := &Recorder{
		w:       w,
		log:     zerolog.Nop(),
		clock:   clock.New(),
		bufSize: DefaultBufferSize,
	}
	for _, o := range opts {
		o(r)
	}
	if r.bufSize <= 0 {
		r.bufSize = 1
	}
	r.lines = make([]string, 0, r.bufSize)

	header := fmt.Sprintf("%s\nCurrent Recorder Version:%s%s\nStart Time:%s%d\n\n",
		Title, separator, Version, separator, r.clock.Now().UnixMilli())
	if _, err := io.WriteString(r.w, header); err != nil {
		r.failures++
		r.log.Warn().Err(err).Msg("telemetry header write failed")
	}
	return r
}

// Create truncates the file at path and returns a recorder writing to it.
func Create(path string, opts ...Option) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create telemetry file: %w", err)
	}
	return NewRecorder(f, opts...), nil
}

// Record sets the latest value of a column, adding the column on first use.
// Names match case-insensitively.
func (r *Recorder) Record(name string, value interface{}) {
	v := format(value)
	name = sanitize(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.names {
		if strings.EqualFold(n, name) {
			r.values[i] = v
			return
		}
	}
	r.names = append(r.names, name)
	r.values = append(r.values, v)
}

// Flush appends the current row. A names row precedes it whenever columns
// were added since the last one.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.values) == 0 {
		return
	}
	if len(r.names) != r.namesOnDisk {
		r.appendLine(strings.Join(r.names, separator))
		r.namesOnDisk = len(r.names)
	}
	r.appendLine(strings.Join(r.values, separator))
	r.rows++
}

func (r *Recorder) appendLine(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) >= r.bufSize {
		r.writeOut()
	}
}

// writeOut drops the batch on failure; recording must never stall the loops.
func (r *Recorder) writeOut() {
	if len(r.lines) == 0 {
		return
	}
	var b strings.Builder
	for _, l := range r.lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(r.w, b.String()); err != nil {
		r.failures++
		r.log.Warn().Err(err).Int("lines", len(r.lines)).Msg("telemetry write failed, batch dropped")
	}
	r.lines = r.lines[:0]
}

// Rows is the number of rows flushed so far.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Failures counts write errors since creation.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// Close writes any buffered lines and closes the underlying writer if it is
// an io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeOut()
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func format(value interface{}) string {
	switch v := value.(type) {
	case string:
		return sanitize(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Duration:
		return strconv.FormatFloat(v.Seconds(), 'g', -1, 64)
	case fmt.Stringer:
		return sanitize(v.String())
	default:
		return sanitize(fmt.Sprint(v))
	}
}

func sanitize(s string) string {
	return strings.NewReplacer(",", ";", "\n", " ").Replace(s)
}
