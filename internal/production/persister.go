package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/comalice/pimulator/realtime"
)

// Trace is the recorded snapshot sequence of one run.
type Trace struct {
	RunID     string              `json:"runId" yaml:"runId"`
	Mode      string              `json:"mode,omitempty" yaml:"mode,omitempty"`
	Recorded  time.Time           `json:"recorded" yaml:"recorded"`
	Snapshots []realtime.Snapshot `json:"snapshots" yaml:"snapshots"`
}

// TracePersister stores traces keyed by run id.
type TracePersister interface {
	Save(ctx context.Context, trace Trace) error
	Load(ctx context.Context, runID string) (Trace, error)
}

// TraceRecorder is a realtime.Publisher that keeps every snapshot of a run,
// up to a limit.
type TraceRecorder struct {
	mu      sync.Mutex
	trace   Trace
	limit   int
	dropped int
}

// NewTraceRecorder records at most limit snapshots; limit 0 means no limit.
func NewTraceRecorder(runID, mode string, limit int) *TraceRecorder {
	return &TraceRecorder{
		trace: Trace{RunID: runID, Mode: mode},
		limit: limit,
	}
}

func (r *TraceRecorder) Publish(s realtime.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.trace.Snapshots) >= r.limit {
		r.dropped++
		return
	}
	r.trace.Snapshots = append(r.trace.Snapshots, s)
}

// Trace returns a copy of what was recorded so far.
func (r *TraceRecorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.trace
	t.Recorded = time.Now().UTC()
	t.Snapshots = append([]realtime.Snapshot(nil), r.trace.Snapshots...)
	return t
}

// Dropped returns how many snapshots arrived after the limit was reached.
func (r *TraceRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// NewPersister picks a persister by format: "json" or "yaml".
func NewPersister(format, dir string) (TracePersister, error) {
	switch format {
	case "json", "":
		return NewJSONPersister(dir)
	case "yaml", "yml":
		return NewYAMLPersister(dir)
	}
	return nil, fmt.Errorf("unknown trace format %q", format)
}

// JSONPersister is a file-based persister using JSON serialization.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, trace Trace) error {
	if trace.RunID == "" {
		return errors.New("trace has no run id")
	}
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return writeTrace(filepath.Join(p.dir, trace.RunID+".json"), data)
}

func (p *JSONPersister) Load(ctx context.Context, runID string) (Trace, error) {
	data, err := readTrace(filepath.Join(p.dir, runID+".json"), runID)
	if err != nil {
		return Trace{}, err
	}
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return Trace{}, fmt.Errorf("json unmarshal: %w", err)
	}
	trace.RunID = runID
	return trace, nil
}

// YAMLPersister is a file-based persister using YAML serialization.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, trace Trace) error {
	if trace.RunID == "" {
		return errors.New("trace has no run id")
	}
	data, err := yaml.Marshal(trace)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return writeTrace(filepath.Join(p.dir, trace.RunID+".yaml"), data)
}

func (p *YAMLPersister) Load(ctx context.Context, runID string) (Trace, error) {
	data, err := readTrace(filepath.Join(p.dir, runID+".yaml"), runID)
	if err != nil {
		return Trace{}, err
	}
	var trace Trace
	if err := yaml.Unmarshal(data, &trace); err != nil {
		return Trace{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	trace.RunID = runID
	return trace, nil
}

func writeTrace(fn string, data []byte) error {
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func readTrace(fn, runID string) ([]byte, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("run %q: %w", runID, os.ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	return data, nil
}
