package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/anneal"
	"github.com/haricheung/cribcrack/internal/config"
	"github.com/haricheung/cribcrack/internal/keystream"
	"github.com/haricheung/cribcrack/internal/ngram"
	"github.com/haricheung/cribcrack/internal/store"
	"github.com/haricheung/cribcrack/internal/types"
	"github.com/haricheung/cribcrack/internal/ui"
)

var errNoStore = errors.New("history needs a store directory (--store or CRIBCRACK_STORE_DIR)")

// cli holds the command tree and the state its flags bind to.
type cli struct {
	root       *cobra.Command
	configPath string
	lookupEnv  func(string) (string, bool)
}

// newCLI builds the command tree. lookupEnv resolves CRIBCRACK_* variables
// (os.LookupEnv outside tests).
func newCLI(lookupEnv func(string) (string, bool)) *cli {
	c := &cli{lookupEnv: lookupEnv}
	defaults := config.Default()

	c.root = &cobra.Command{
		Use:   "cribcrack",
		Short: "Recover the key of a repeating-key additive cipher from ciphertext and a crib",
		Long: `cribcrack models the byte n-gram statistics of a crib (sample plaintext)
and searches for the repeating key whose decryption of the ciphertext fits
those statistics best, by simulated annealing over chi-squared scores.

Without a subcommand it behaves like "cribcrack solve".`,
		SilenceUsage: true,
		RunE:         c.runSolve,
	}

	pf := c.root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML settings file")
	pf.String("crib", "", "crib file: sample plaintext to model")
	pf.String("ciphertext", "", "ciphertext file")
	pf.IntP("key-length", "k", 0, "key length (sweep: shortest key length)")
	pf.Int("max-key-length", 0, "longest key length for sweep")
	pf.IntP("max-order", "n", defaults.MaxOrder, fmt.Sprintf("highest n-gram order, 1..%d", ngram.MaxOrder))
	pf.Int("half-life", defaults.HalfLife, "steps for the annealing temperature to halve")
	pf.Int("max-steps", 0, "hard step limit per run (0 = derived, negative = none)")
	pf.BoolP("case-insensitive", "i", false, "upper-case crib and decoded text before scoring")
	pf.BoolP("verbose", "v", false, "debug logging with periodic progress")
	pf.Uint64("seed", defaults.Seed, "random seed")
	pf.IntP("jobs", "j", 0, "concurrent sweep runs (0 = one per key length)")
	pf.String("log-dir", "", "directory for per-run JSONL logs")
	pf.String("store", "", "LevelDB directory recording run history")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile")

	solve := &cobra.Command{
		Use:   "solve",
		Short: "Search for the key of one key length",
		RunE:  c.runSolve,
	}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Search every key length from --key-length to --max-key-length",
		RunE:  c.runSweep,
	}
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the most frequent n-grams of the crib",
		RunE:  c.runDump,
	}
	dump.Flags().Int("order", 1, "n-gram order to print")
	dump.Flags().Int("top", 20, "number of n-grams to print (0 = all)")

	encrypt := &cobra.Command{
		Use:   "encrypt PLAINTEXT",
		Short: "Encrypt a plaintext file with a repeating key",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runEncrypt,
	}
	encrypt.Flags().String("key", "", "key string")
	encrypt.Flags().StringP("out", "o", "", "output file (default stdout)")
	_ = encrypt.MarkFlagRequired("key")

	history := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first, or the runs of --ciphertext by score",
		RunE:  c.runHistory,
	}
	history.Flags().Int("limit", 20, "number of runs to list (0 = all)")

	c.root.AddCommand(solve, sweep, dump, encrypt, history)
	return c
}

func (c *cli) runSolve(cmd *cobra.Command, _ []string) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.search(cmd, cfg, []int{cfg.KeyLength})
}

func (c *cli) runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.search(cmd, cfg, anneal.KeyLengths(cfg.KeyLength, cfg.MaxKeyLength))
}

// search runs one search per key length and prints the ranking (sweeps only)
// followed by the best solution.
func (c *cli) search(cmd *cobra.Command, cfg config.Config, lengths []int) error {
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	results, err := anneal.Sweep(cmd.Context(), s.ciphertext, s.models, lengths, cfg.Jobs, s.options)
	if err != nil {
		s.abort()
		_ = s.close()
		return err
	}
	if err := s.close(); err != nil {
		return err
	}

	out := ui.New(cmd.OutOrStdout())
	if len(results) > 1 {
		out.Sweep(results)
		fmt.Fprintln(cmd.OutOrStdout())
	}
	best := results[0]
	out.Solution(best, keystream.Decode(s.ciphertext, best.Key, cfg.CaseInsensitive))
	return nil
}

func (c *cli) runDump(cmd *cobra.Command, _ []string) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.CribPath == "" {
		return config.ErrMissingPath
	}
	order, _ := cmd.Flags().GetInt("order")
	top, _ := cmd.Flags().GetInt("top")
	if order < 1 || order > ngram.MaxOrder {
		return fmt.Errorf("%w: got %d", config.ErrMaxOrder, order)
	}
	crib, err := readInput(cfg.CribPath)
	if err != nil {
		return err
	}
	if cfg.CaseInsensitive {
		crib = alphabet.Fold(crib)
	}
	ui.New(cmd.OutOrStdout()).Dump(ngram.NewModel(crib, order), top)
	return nil
}

func (c *cli) runEncrypt(cmd *cobra.Command, args []string) error {
	if _, err := c.resolveConfig(cmd); err != nil {
		return err
	}
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		return errors.New("encrypt: key must not be empty")
	}
	plaintext, err := readInput(args[0])
	if err != nil {
		return err
	}
	ct := keystream.Encode(plaintext, []byte(key))

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		_, err = cmd.OutOrStdout().Write(ct)
		return err
	}
	if err := os.WriteFile(outPath, ct, 0o644); err != nil {
		return fmt.Errorf("write ciphertext %s: %w", outPath, err)
	}
	return nil
}

func (c *cli) runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.StoreDir == "" {
		return errNoStore
	}
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		return err
	}
	defer st.Close()

	var sum types.HistorySummary
	if cfg.CiphertextPath != "" {
		ct, err := readInput(cfg.CiphertextPath)
		if err != nil {
			return err
		}
		runs, err := st.ByCiphertext(store.Digest(ct), cfg.KeyLength)
		if err != nil {
			return err
		}
		sum.Total = len(runs)
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		sum.Runs = runs
	} else if sum, err = st.List(limit); err != nil {
		return err
	}
	ui.New(cmd.OutOrStdout()).History(sum)
	return nil
}
