package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haricheung/cribcrack/internal/config"
)

// resolveConfig layers defaults, the --config file, CRIBCRACK_* variables and the
// flags the user actually set, then installs the slog handler the result asks for.
// It does not validate; each command checks what it needs.
func (c *cli) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		if err := config.Load(&cfg, c.configPath); err != nil {
			return cfg, err
		}
	}
	if c.lookupEnv != nil {
		if err := config.ApplyEnv(&cfg, c.lookupEnv); err != nil {
			return cfg, err
		}
	}
	applyFlags(cmd, &cfg)
	setupLogging(cfg.Verbose)
	slog.Debug("[CLI] settings resolved", "command", cmd.Name(), "config", c.configPath,
		"crib", cfg.CribPath, "ciphertext", cfg.CiphertextPath,
		"key_length", cfg.KeyLength, "max_order", cfg.MaxOrder, "half_life", cfg.HalfLife, "seed", cfg.Seed)
	return cfg, nil
}

// applyFlags copies every changed flag onto cfg. Unchanged flags keep the lower layers.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	strs := map[string]*string{
		"crib":         &cfg.CribPath,
		"ciphertext":   &cfg.CiphertextPath,
		"log-dir":      &cfg.LogDir,
		"store":        &cfg.StoreDir,
		"metrics-file": &cfg.MetricsFile,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	ints := map[string]*int{
		"key-length":     &cfg.KeyLength,
		"max-key-length": &cfg.MaxKeyLength,
		"max-order":      &cfg.MaxOrder,
		"half-life":      &cfg.HalfLife,
		"max-steps":      &cfg.MaxSteps,
		"jobs":           &cfg.Jobs,
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}
	bools := map[string]*bool{
		"case-insensitive": &cfg.CaseInsensitive,
		"verbose":          &cfg.Verbose,
	}
	for name, dst := range bools {
		if fs.Changed(name) {
			*dst, _ = fs.GetBool(name)
		}
	}
	if fs.Changed("seed") {
		cfg.Seed, _ = fs.GetUint64("seed")
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// readInput reads a whole file as raw bytes.
func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
