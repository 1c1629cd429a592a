package ui

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/anneal"
	"github.com/haricheung/cribcrack/internal/ngram"
	"github.com/haricheung/cribcrack/internal/types"
)

// --- Columns ---

func TestColumns_SplitsByWidth(t *testing.T) {
	got := Columns([]byte("ABCDEFG"), 3)
	want := []string{"ABC", "DEF", "G"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestColumns_RendersControlBytes(t *testing.T) {
	got := Columns([]byte{'A', '\n', 0x7F}, 3)
	if len(got) != 1 || got[0] != "A"+alphabet.Placeholder+alphabet.Placeholder {
		t.Errorf("expected control bytes as placeholder, got %q", got)
	}
}

func TestColumns_EmptyInput(t *testing.T) {
	if got := Columns(nil, 4); len(got) != 0 {
		t.Errorf("expected no rows, got %q", got)
	}
}

func TestColumns_ZeroWidthSingleRow(t *testing.T) {
	if got := Columns([]byte("ABCD"), 0); len(got) != 1 || got[0] != "ABCD" {
		t.Errorf("expected single row, got %q", got)
	}
}

// --- Dump ---

func TestDump_HeaderAndTopEntries(t *testing.T) {
	var buf bytes.Buffer
	m := ngram.NewModel([]byte("AAB"), 1)
	NewPlain(&buf).Dump(m, 2)
	out := buf.String()

	if !strings.Contains(out, "order 1: 3 windows, 2 distinct, total 131") {
		t.Errorf("expected header with totals, got %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 entries, got %d lines: %q", len(lines), out)
	}
	if !strings.Contains(lines[1], "[A]") || !strings.Contains(lines[1], "3") {
		t.Errorf("expected most frequent gram A with count 3 first, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[B]") {
		t.Errorf("expected B second, got %q", lines[2])
	}
}

func TestDump_PlainHasNoANSI(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).Dump(ngram.NewModel([]byte("HELLO"), 2), 0)
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("plain printer emitted ANSI codes: %q", buf.String())
	}
}

func TestNew_NonTerminalWriterIsPlain(t *testing.T) {
	var buf bytes.Buffer
	if New(&buf).color {
		t.Error("expected colour disabled for a bytes.Buffer")
	}
}

// --- Solution ---

func TestSolution_KeyScoreAndRows(t *testing.T) {
	var buf bytes.Buffer
	res := anneal.Result{
		KeyLength:   2,
		Key:         []byte{'K', 0x01},
		Score:       1.5,
		OrderScores: []float64{3, 4},
		Weights:     []float64{0.5, 0.25},
		Steps:       42,
		Status:      anneal.StatusQuenched,
	}
	NewPlain(&buf).Solution(res, []byte("HELLO"))
	out := buf.String()

	for _, want := range []string{"[K" + alphabet.Placeholder + "]", "4b01", "1.500000", "42 steps", "quenched", "1:1.5 2:1", "HE\nLL\nO\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

// --- Sweep ---

func TestSweep_OneLinePerResult(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).Sweep([]anneal.Result{
		{KeyLength: 3, Key: []byte("KEY"), Score: 0.5, Steps: 10, Status: anneal.StatusQuenched},
		{KeyLength: 2, Key: []byte("AB"), Score: 2, Steps: 20, Status: anneal.StatusStepLimit},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "[KEY]") || !strings.Contains(lines[2], "step_limit") {
		t.Errorf("unexpected sweep rows: %q", lines[1:])
	}
}

func TestKeyColumn_TruncatesLongKeys(t *testing.T) {
	got := keyColumn(bytes.Repeat([]byte("A"), 100))
	if !strings.HasSuffix(got, "…") || len([]rune(got)) > maxKeyColumn {
		t.Errorf("expected truncated key, got %q", got)
	}
}

// --- History ---

func TestHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).History(types.HistorySummary{})
	if !strings.Contains(buf.String(), "no runs recorded") {
		t.Errorf("expected empty-history message, got %q", buf.String())
	}
}

func TestHistory_ListsRuns(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf).History(types.HistorySummary{
		Total: 5,
		Runs: []types.RunRecord{{
			ID:             "0123456789abcdef",
			CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			CiphertextPath: "msg.bin",
			Params:         types.RunParams{KeyLength: 4, MaxOrder: 8, HalfLife: 1000, Seed: 7},
			Key:            []byte("KEYS"),
			Score:          0.25,
			Status:         types.RunQuenched,
		}},
	})
	out := buf.String()
	for _, want := range []string{"1 of 5 runs", "01234567", "len=4", "seed=7", "[KEYS]", "msg.bin"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
	if strings.Contains(out, "89abcdef") {
		t.Errorf("expected id shortened to 8 chars, got %q", out)
	}
}

// --- Progress ---

type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestProgress_LogsEveryN(t *testing.T) {
	h := &captureHandler{}
	p := &Progress{Logger: slog.New(h), KeyLength: 3, Every: 10}
	for step := 1; step <= 35; step++ {
		p.Step(anneal.State{Key: []byte("KEY"), Step: step}, anneal.MoveRejected)
	}
	n := 0
	for _, r := range h.records {
		if r.Message == "[ANNEAL] progress" {
			n++
		}
	}
	if n != 3 {
		t.Errorf("expected 3 progress lines for 35 steps every 10, got %d", n)
	}
}

func TestProgress_ZeroEveryIsSilent(t *testing.T) {
	h := &captureHandler{}
	p := &Progress{Logger: slog.New(h)}
	p.Step(anneal.State{Step: 1}, anneal.MoveImproved)
	if len(h.records) != 0 {
		t.Errorf("expected no records, got %d", len(h.records))
	}
}
