// Package config resolves cribcrack settings from defaults, an optional YAML
// file, CRIBCRACK_* environment variables and command-line flags, in that order
// of increasing precedence. Flag handling lives in cmd/cribcrack; this package
// owns the first three layers and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haricheung/cribcrack/internal/ngram"
	"github.com/haricheung/cribcrack/internal/types"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "CRIBCRACK_"

var (
	ErrKeyLength   = errors.New("key length must be at least 1")
	ErrMaxOrder    = fmt.Errorf("max order must be within 1..%d", ngram.MaxOrder)
	ErrHalfLife    = errors.New("half-life must be at least 1 step")
	ErrMissingPath = errors.New("crib and ciphertext paths are required")
	ErrJobs        = errors.New("jobs must not be negative")
)

// Config is the full set of run settings.
type Config struct {
	CribPath        string `yaml:"crib"`
	CiphertextPath  string `yaml:"ciphertext"`
	KeyLength       int    `yaml:"key_length"`
	MaxKeyLength    int    `yaml:"max_key_length"` // sweep upper bound; 0 means KeyLength only
	MaxOrder        int    `yaml:"max_order"`
	HalfLife        int    `yaml:"half_life"`
	MaxSteps        int    `yaml:"max_steps"` // 0 = derived from half-life and key length
	CaseInsensitive bool   `yaml:"case_insensitive"`
	Verbose         bool   `yaml:"verbose"`
	Seed            uint64 `yaml:"seed"`
	Jobs            int    `yaml:"jobs"` // concurrent sweep runs; 0 = one per key length

	LogDir      string `yaml:"log_dir"`      // per-run JSONL logs; empty disables
	StoreDir    string `yaml:"store_dir"`    // LevelDB run history; empty disables
	MetricsFile string `yaml:"metrics_file"` // Prometheus textfile; empty disables
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxOrder: 8,
		HalfLife: 1000,
		Seed:     0,
	}
}

// Load overlays the YAML file at path onto cfg. A missing file is an error;
// an empty file changes nothing. Unknown keys are rejected.
func Load(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CRIBCRACK_* variables onto cfg using lookup (os.LookupEnv in
// production). Empty values are ignored.
//
// Expectations:
//   - Recognises CRIB, CIPHERTEXT, KEY_LENGTH, MAX_KEY_LENGTH, MAX_ORDER, HALF_LIFE,
//     MAX_STEPS, CASE_INSENSITIVE, VERBOSE, SEED, JOBS, LOG_DIR, STORE_DIR, METRICS_FILE
//   - Returns an error naming the variable when a value does not parse
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	strs := map[string]*string{
		"CRIB":         &cfg.CribPath,
		"CIPHERTEXT":   &cfg.CiphertextPath,
		"LOG_DIR":      &cfg.LogDir,
		"STORE_DIR":    &cfg.StoreDir,
		"METRICS_FILE": &cfg.MetricsFile,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"KEY_LENGTH":     &cfg.KeyLength,
		"MAX_KEY_LENGTH": &cfg.MaxKeyLength,
		"MAX_ORDER":      &cfg.MaxOrder,
		"HALF_LIFE":      &cfg.HalfLife,
		"MAX_STEPS":      &cfg.MaxSteps,
		"JOBS":           &cfg.Jobs,
	}
	for name, dst := range ints {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	bools := map[string]*bool{
		"CASE_INSENSITIVE": &cfg.CaseInsensitive,
		"VERBOSE":          &cfg.Verbose,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	if v, ok := get("SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", EnvPrefix, err)
		}
		cfg.Seed = n
	}
	return nil
}

// Validate checks the settings needed by a search. The key-length range is
// normalised: a MaxKeyLength below KeyLength collapses to KeyLength.
func (c *Config) Validate() error {
	if c.CribPath == "" || c.CiphertextPath == "" {
		return ErrMissingPath
	}
	if c.KeyLength < 1 {
		return fmt.Errorf("%w: got %d", ErrKeyLength, c.KeyLength)
	}
	if c.MaxOrder < 1 || c.MaxOrder > ngram.MaxOrder {
		return fmt.Errorf("%w: got %d", ErrMaxOrder, c.MaxOrder)
	}
	if c.HalfLife < 1 {
		return fmt.Errorf("%w: got %d", ErrHalfLife, c.HalfLife)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("%w: got %d", ErrJobs, c.Jobs)
	}
	if c.MaxKeyLength < c.KeyLength {
		c.MaxKeyLength = c.KeyLength
	}
	return nil
}

// Params returns the reproducibility parameters of a run at keyLength.
func (c *Config) Params(keyLength int) types.RunParams {
	return types.RunParams{
		KeyLength:       keyLength,
		MaxOrder:        c.MaxOrder,
		HalfLife:        c.HalfLife,
		CaseInsensitive: c.CaseInsensitive,
		Seed:            c.Seed,
	}
}
