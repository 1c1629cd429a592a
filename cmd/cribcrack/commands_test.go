package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haricheung/cribcrack/internal/config"
	"github.com/haricheung/cribcrack/internal/keystream"
)

const sampleText = "IT WAS THE BEST OF TIMES, IT WAS THE WORST OF TIMES, IT WAS THE AGE OF WISDOM, " +
	"IT WAS THE AGE OF FOOLISHNESS, IT WAS THE EPOCH OF BELIEF, IT WAS THE EPOCH OF INCREDULITY. "

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// execute runs the command line and returns its stdout.
func execute(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), env, args...)
}

func executeContext(t *testing.T, ctx context.Context, env map[string]string, args ...string) (string, error) {
	t.Helper()
	c := newCLI(envMap(env))
	var out bytes.Buffer
	c.root.SetOut(&out)
	c.root.SetErr(io.Discard)
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// --- settings layering ---

func TestResolveConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "cribcrack.yaml", []byte("half_life: 50\nkey_length: 2\nmax_order: 4\n"))

	c := newCLI(envMap(map[string]string{
		"CRIBCRACK_HALF_LIFE": "60",
		"CRIBCRACK_SEED":      "9",
	}))
	solve, _, err := c.root.Find([]string{"solve"})
	require.NoError(t, err)
	require.NoError(t, solve.ParseFlags([]string{"--config", cfgPath, "--key-length", "3"}))

	cfg, err := c.resolveConfig(solve)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.KeyLength, "flag beats file")
	assert.Equal(t, 60, cfg.HalfLife, "env beats file")
	assert.Equal(t, 4, cfg.MaxOrder, "file beats default")
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.False(t, cfg.CaseInsensitive, "unset flags keep lower layers")
}

func TestResolveConfig_UnchangedFlagDefaultsDoNotOverride(t *testing.T) {
	c := newCLI(envMap(map[string]string{"CRIBCRACK_MAX_ORDER": "3"}))
	solve, _, err := c.root.Find([]string{"solve"})
	require.NoError(t, err)
	require.NoError(t, solve.ParseFlags(nil))

	cfg, err := c.resolveConfig(solve)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxOrder)
}

func TestResolveConfig_BadEnv(t *testing.T) {
	_, err := execute(t, map[string]string{"CRIBCRACK_KEY_LENGTH": "three"}, "solve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRIBCRACK_KEY_LENGTH")
}

// --- solve / sweep ---

func TestSolve_MissingKeyLength(t *testing.T) {
	dir := t.TempDir()
	crib := writeFile(t, dir, "crib.txt", []byte(sampleText))
	_, err := execute(t, nil, "solve", "--crib", crib, "--ciphertext", crib)
	assert.ErrorIs(t, err, config.ErrKeyLength)
}

func TestSolve_MissingPaths(t *testing.T) {
	_, err := execute(t, nil, "--key-length", "3")
	assert.ErrorIs(t, err, config.ErrMissingPath)
}

func TestSolve_UnreadableCiphertext(t *testing.T) {
	dir := t.TempDir()
	crib := writeFile(t, dir, "crib.txt", []byte(sampleText))
	_, err := execute(t, nil, "solve", "--crib", crib, "--ciphertext", filepath.Join(dir, "missing.bin"), "-k", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSolve_RecoversSingleByteKey(t *testing.T) {
	dir := t.TempDir()
	text := []byte(strings.Repeat(sampleText, 3))
	crib := writeFile(t, dir, "crib.txt", text)
	ct := writeFile(t, dir, "ct.bin", keystream.Encode(text, []byte("K")))
	logDir := filepath.Join(dir, "logs")
	storeDir := filepath.Join(dir, "history")
	metricsFile := filepath.Join(dir, "cribcrack.prom")

	out, err := execute(t, nil, "solve",
		"--crib", crib, "--ciphertext", ct, "-k", "1", "-n", "2", "--half-life", "50",
		"--log-dir", logDir, "--store", storeDir, "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "key: [K]")
	assert.Contains(t, out, "quenched")
	assert.Contains(t, strings.ReplaceAll(out, "\n", ""), "IT WAS THE BEST OF TIMES", "plaintext rows are one key length wide")

	logs, err := filepath.Glob(filepath.Join(logDir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `cribcrack_runs_total{key_length="1",status="quenched"} 1`)

	hist, err := execute(t, nil, "history", "--store", storeDir)
	require.NoError(t, err)
	assert.Contains(t, hist, "1 of 1 runs")
	assert.Contains(t, hist, "[K]")

	byCt, err := execute(t, nil, "history", "--store", storeDir, "--ciphertext", ct, "-k", "2")
	require.NoError(t, err)
	assert.Contains(t, byCt, "no runs recorded", "key length filter excludes the length-1 run")
}

func TestSolve_InterruptedRunIsLoggedAndStopped(t *testing.T) {
	dir := t.TempDir()
	text := []byte(strings.Repeat(sampleText, 3))
	crib := writeFile(t, dir, "crib.txt", text)
	ct := writeFile(t, dir, "ct.bin", keystream.Encode(text, []byte("KEY")))
	logDir := filepath.Join(dir, "logs")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := executeContext(t, ctx, nil, "solve",
		"--crib", crib, "--ciphertext", ct, "-k", "9", "--half-life", "100000", "--max-steps=-1",
		"--log-dir", logDir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 30*time.Second)

	// A cancel that lands before the run starts leaves no log at all.
	logs, err := filepath.Glob(filepath.Join(logDir, "*.jsonl"))
	require.NoError(t, err)
	for _, l := range logs {
		data, err := os.ReadFile(l)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"status":"cancelled"`)
	}
}

func TestSweep_ReportsEveryLength(t *testing.T) {
	dir := t.TempDir()
	text := []byte(strings.Repeat(sampleText, 3))
	crib := writeFile(t, dir, "crib.txt", text)
	ct := writeFile(t, dir, "ct.bin", keystream.Encode(text, []byte("K")))

	out, err := execute(t, nil, "sweep",
		"--crib", crib, "--ciphertext", ct, "-k", "1", "--max-key-length", "2",
		"-n", "1", "--half-life", "20", "-j", "2")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "len")
	assert.Contains(t, out, "key:")
}

// --- dump ---

func TestDump_PrintsTopGrams(t *testing.T) {
	dir := t.TempDir()
	crib := writeFile(t, dir, "crib.txt", []byte("aab"))

	out, err := execute(t, nil, "dump", "--crib", crib, "--order", "1", "--top", "1", "-i")
	require.NoError(t, err)
	assert.Contains(t, out, "order 1: 3 windows, 2 distinct")
	assert.Contains(t, out, "[A]")
	assert.NotContains(t, out, "[B]")
}

func TestDump_RejectsBadOrder(t *testing.T) {
	dir := t.TempDir()
	crib := writeFile(t, dir, "crib.txt", []byte("abc"))
	_, err := execute(t, nil, "dump", "--crib", crib, "--order", "10")
	assert.ErrorIs(t, err, config.ErrMaxOrder)
}

func TestDump_NeedsCrib(t *testing.T) {
	_, err := execute(t, nil, "dump")
	assert.ErrorIs(t, err, config.ErrMissingPath)
}

// --- encrypt ---

func TestEncrypt_ToFile(t *testing.T) {
	dir := t.TempDir()
	pt := writeFile(t, dir, "pt.txt", []byte(sampleText))
	outPath := filepath.Join(dir, "ct.bin")

	_, err := execute(t, nil, "encrypt", pt, "--key", "KEY", "-o", outPath)
	require.NoError(t, err)
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, keystream.Encode([]byte(sampleText), []byte("KEY")), got)
}

func TestEncrypt_ToStdout(t *testing.T) {
	dir := t.TempDir()
	pt := writeFile(t, dir, "pt.txt", []byte("HELLO"))

	out, err := execute(t, nil, "encrypt", pt, "--key", "AB")
	require.NoError(t, err)
	assert.Equal(t, string(keystream.Encode([]byte("HELLO"), []byte("AB"))), out)
}

func TestEncrypt_RequiresKey(t *testing.T) {
	dir := t.TempDir()
	pt := writeFile(t, dir, "pt.txt", []byte("HELLO"))
	_, err := execute(t, nil, "encrypt", pt)
	assert.Error(t, err)
}

// --- history ---

func TestHistory_NeedsStore(t *testing.T) {
	_, err := execute(t, nil, "history")
	assert.ErrorIs(t, err, errNoStore)
}

func TestHistory_EmptyStore(t *testing.T) {
	out, err := execute(t, nil, "history", "--store", filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}
