package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/cribcrack/internal/anneal"
	"github.com/haricheung/cribcrack/internal/config"
	"github.com/haricheung/cribcrack/internal/metrics"
	"github.com/haricheung/cribcrack/internal/ngram"
	"github.com/haricheung/cribcrack/internal/runlog"
	"github.com/haricheung/cribcrack/internal/store"
	"github.com/haricheung/cribcrack/internal/types"
	"github.com/haricheung/cribcrack/internal/ui"
)

// session is the shared state of one solve or sweep invocation: the inputs, the
// models and whichever of run log, history and metrics the settings enable.
type session struct {
	cfg        config.Config
	ciphertext []byte
	digest     string
	models     []*ngram.Model

	logs    *runlog.Registry  // nil when --log-dir is unset
	history *store.Store      // nil when --store is unset
	metrics *metrics.Recorder // nil when --metrics-file is unset

	mu     sync.Mutex
	runIDs []string
}

func openSession(cfg config.Config) (*session, error) {
	crib, err := readInput(cfg.CribPath)
	if err != nil {
		return nil, err
	}
	ct, err := readInput(cfg.CiphertextPath)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:        cfg,
		ciphertext: ct,
		digest:     store.Digest(ct),
		models:     ngram.Build(crib, cfg.MaxOrder, cfg.CaseInsensitive),
	}
	slog.Info("[CLI] models built", "crib", cfg.CribPath, "crib_bytes", len(crib),
		"ciphertext_bytes", len(ct), "max_order", cfg.MaxOrder, "case_insensitive", cfg.CaseInsensitive)

	if cfg.LogDir != "" {
		s.logs = runlog.NewRegistry(cfg.LogDir)
	}
	if cfg.MetricsFile != "" {
		s.metrics = metrics.New()
	}
	if cfg.StoreDir != "" {
		if s.history, err = store.Open(cfg.StoreDir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// options builds the search options for one key length. It is called once per
// run, possibly from concurrent sweep goroutines.
func (s *session) options(keyLength int) anneal.Options {
	runID := uuid.New().String()
	params := s.cfg.Params(keyLength)
	s.mu.Lock()
	s.runIDs = append(s.runIDs, runID)
	s.mu.Unlock()

	var logObs, metricObs, progressObs anneal.Observer
	if rl := s.logs.Open(runID, s.cfg.CribPath, s.cfg.CiphertextPath, params); rl != nil {
		logObs = rl
	}
	if s.metrics != nil {
		metricObs = s.metrics.Observer(keyLength)
	}
	if s.cfg.Verbose {
		progressObs = &ui.Progress{KeyLength: keyLength, Every: s.cfg.HalfLife}
	}
	done := &finisher{s: s, runID: runID, params: params, started: time.Now()}

	return anneal.Options{
		KeyLength: keyLength,
		HalfLife:  s.cfg.HalfLife,
		CaseFold:  s.cfg.CaseInsensitive,
		Rand:      anneal.NewRand(s.cfg.Seed, keyLength),
		Observer:  anneal.Observers(logObs, metricObs, progressObs, done),
		MaxSteps:  s.cfg.MaxSteps,
	}
}

// abort closes every run log still open as failed.
func (s *session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.runIDs {
		s.logs.Close(id, types.RunFailed)
	}
}

// close writes the metrics textfile and releases the history store.
func (s *session) close() error {
	var err error
	if s.metrics != nil {
		if err = s.metrics.WriteFile(s.cfg.MetricsFile); err != nil {
			slog.Error("[CLI] write metrics", "path", s.cfg.MetricsFile, "error", err)
		}
	}
	if s.history != nil {
		if cerr := s.history.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// finisher closes the run log and records the run in history when a search ends.
type finisher struct {
	s       *session
	runID   string
	params  types.RunParams
	started time.Time
}

func (f *finisher) Begin([]float64, float64)       {}
func (f *finisher) Step(anneal.State, anneal.Move) {}

func (f *finisher) End(res anneal.Result) {
	status := types.RunStatus(res.Status)
	elapsed := time.Since(f.started).Milliseconds()
	f.s.logs.Close(f.runID, status)
	slog.Info("[ANNEAL] run finished", "run_id", f.runID, "key_length", res.KeyLength,
		"score", res.Score, "steps", res.Steps, "status", res.Status, "elapsed_ms", elapsed)

	if f.s.history == nil {
		return
	}
	_, err := f.s.history.Put(types.RunRecord{
		ID:               f.runID,
		CribPath:         f.s.cfg.CribPath,
		CiphertextPath:   f.s.cfg.CiphertextPath,
		CiphertextDigest: f.s.digest,
		Params:           f.params,
		Key:              append([]byte(nil), res.Key...),
		Score:            res.Score,
		Steps:            res.Steps,
		Status:           status,
		ElapsedMs:        elapsed,
	})
	if err != nil {
		slog.Error("[STORE] could not record run", "run_id", f.runID, "error", err)
	}
}
