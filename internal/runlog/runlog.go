// Package runlog writes one JSONL event log per search run.
//
// Each run gets one file <dir>/<run_id>.jsonl. A RunLog is an anneal.Observer, so
// attaching it to a search records calibration, every new lowest score and the
// final state without the optimizer knowing about files.
//
// Design constraints:
//   - All RunLog methods are nil-safe (no-op on nil receiver), so a disabled log
//     can be passed wherever an observer is expected.
//   - Registry is the sole owner of file handles; callers never open log files.
//   - Concurrent runs of a sweep each hold their own RunLog.
package runlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/anneal"
	"github.com/haricheung/cribcrack/internal/types"
)

// EventKind labels a single structured event in the run log.
type EventKind string

const (
	KindRunBegin   EventKind = "run_begin"
	KindCalibrated EventKind = "calibrated"
	KindBest       EventKind = "best"
	KindRunEnd     EventKind = "run_end"
)

// Event is one JSONL line in the run log.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	// run_begin
	RunID          string           `json:"run_id,omitempty"`
	CribPath       string           `json:"crib_path,omitempty"`
	CiphertextPath string           `json:"ciphertext_path,omitempty"`
	Params         *types.RunParams `json:"params,omitempty"`

	// calibrated
	Weights     []float64 `json:"weights,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`

	// best / run_end
	Step   int     `json:"step,omitempty"`
	Score  float64 `json:"score,omitempty"`
	Key    string  `json:"key,omitempty"` // rendered with alphabet.Render
	KeyHex string  `json:"key_hex,omitempty"`

	// run_end
	Status    types.RunStatus `json:"status,omitempty"`
	ElapsedMs int64           `json:"elapsed_ms,omitempty"`
	Stats     *RunStats       `json:"stats,omitempty"`
}

// RunStats counts proposal outcomes over one run.
type RunStats struct {
	Steps    int `json:"steps"`
	Improved int `json:"improved"`
	Uphill   int `json:"uphill"`
	Sideways int `json:"sideways"`
	Rejected int `json:"rejected"`
	Bests    int `json:"bests"`
}

// RunLog is a handle for writing structured events for one run.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *RunLog)
//   - Writes are mutex-protected
//   - A best event is written only when the score drops below every earlier score
type RunLog struct {
	runID   string
	started time.Time
	mu      sync.Mutex
	f       *os.File
	best    float64
	stats   RunStats
	final   *anneal.Result // set by End
}

// Registry maps run IDs to open RunLogs.
//
// Expectations:
//   - Open creates the log directory if absent
//   - Open writes a run_begin event as the first JSONL line
//   - Open returns the existing log without re-opening when called twice for the same runID
//   - Get returns nil for unknown run IDs, and on a nil *Registry
//   - Close writes run_end with status, elapsed_ms, move stats and, when the
//     search reported End, the final key and score; then it closes the file
//   - Close removes the runID so subsequent Get returns nil
//   - Close no-ops gracefully when runID is not registered
type Registry struct {
	dir  string
	mu   sync.Mutex
	logs map[string]*RunLog
}

// NewRegistry creates a Registry that writes one JSONL file per run under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, logs: make(map[string]*RunLog)}
}

// Open creates a RunLog for runID and writes its run_begin event. It returns nil
// (a valid no-op log) when the file cannot be created; the failure is logged.
func (r *Registry) Open(runID, cribPath, ciphertextPath string, params types.RunParams) *RunLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rl, ok := r.logs[runID]; ok {
		return rl
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		slog.Error("[RUNLOG] could not create dir", "dir", r.dir, "error", err)
		return nil
	}
	path := filepath.Join(r.dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("[RUNLOG] could not open log file", "path", path, "error", err)
		return nil
	}

	rl := &RunLog{runID: runID, started: time.Now(), f: f, best: math.Inf(1)}
	r.logs[runID] = rl
	rl.write(Event{
		Kind:           KindRunBegin,
		RunID:          runID,
		CribPath:       cribPath,
		CiphertextPath: ciphertextPath,
		Params:         &params,
	})
	return rl
}

// Get returns the RunLog for runID, or nil if not found.
func (r *Registry) Get(runID string) *RunLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[runID]
}

// Close writes a run_end event, closes the file, and removes the entry.
// Safe to call on a nil *Registry or unknown runID.
func (r *Registry) Close(runID string, status types.RunStatus) {
	if r == nil {
		return
	}
	r.mu.Lock()
	rl, ok := r.logs[runID]
	if ok {
		delete(r.logs, runID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rl.mu.Lock()
	stats := rl.stats
	final := rl.final
	rl.mu.Unlock()

	e := Event{
		Kind:      KindRunEnd,
		RunID:     runID,
		Status:    status,
		ElapsedMs: time.Since(rl.started).Milliseconds(),
		Stats:     &stats,
	}
	if final != nil {
		e.Step = final.Steps
		e.Score = final.Score
		e.Key = alphabet.Render(final.Key)
		e.KeyHex = fmt.Sprintf("%x", final.Key)
	}
	rl.write(e)

	rl.mu.Lock()
	if rl.f != nil {
		_ = rl.f.Close()
		rl.f = nil
	}
	rl.mu.Unlock()
}

// Begin writes the calibrated event. Implements anneal.Observer.
func (rl *RunLog) Begin(weights []float64, temperature float64) {
	if rl == nil {
		return
	}
	rl.write(Event{Kind: KindCalibrated, Weights: weights, Temperature: temperature})
}

// Step counts the move and writes a best event on a new lowest score.
// Implements anneal.Observer.
func (rl *RunLog) Step(s anneal.State, move anneal.Move) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.stats.Steps++
	switch move {
	case anneal.MoveImproved:
		rl.stats.Improved++
	case anneal.MoveUphill:
		rl.stats.Uphill++
	case anneal.MoveSideways:
		rl.stats.Sideways++
	default:
		rl.stats.Rejected++
	}
	isBest := move.Accepted() && s.Score < rl.best
	if isBest {
		rl.best = s.Score
		rl.stats.Bests++
	}
	rl.mu.Unlock()

	if isBest {
		rl.write(Event{
			Kind:   KindBest,
			Step:   s.Step,
			Score:  s.Score,
			Key:    alphabet.Render(s.Key),
			KeyHex: fmt.Sprintf("%x", s.Key),
		})
	}
}

// End keeps the final state for the run_end event written by Registry.Close.
// Implements anneal.Observer.
func (rl *RunLog) End(res anneal.Result) {
	if rl == nil {
		return
	}
	res.Key = append([]byte(nil), res.Key...)
	rl.mu.Lock()
	rl.final = &res
	rl.mu.Unlock()
}

// Stats returns a snapshot of the move counters. Zero on nil receiver.
func (rl *RunLog) Stats() RunStats {
	if rl == nil {
		return RunStats{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.stats
}

// write appends one JSON line to the run log file. Adds timestamp, mutex-protected.
func (rl *RunLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("[RUNLOG] marshal event", "error", err)
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.f == nil {
		return
	}
	if _, err = fmt.Fprintf(rl.f, "%s\n", data); err != nil {
		slog.Error("[RUNLOG] write event", "error", err)
	}
}
