// Package ui renders models, solutions, sweeps and run history for the terminal.
// All byte sequences go through alphabet.Render, so control bytes show as the
// placeholder glyph and never reach the terminal raw.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/anneal"
	"github.com/haricheung/cribcrack/internal/ngram"
	"github.com/haricheung/cribcrack/internal/types"
)

// ANSI codes
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
)

// maxKeyColumn truncates rendered keys in tables.
const maxKeyColumn = 40

// Printer writes human-readable output to w. Colour is used only when w is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a Printer for w, enabling ANSI colour when w is a terminal.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, color: color}
}

// NewPlain creates a Printer that never emits ANSI codes.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Dump prints the top observed n-grams of m, most frequent first. top <= 0 prints all.
//
// Expectations:
//   - Header line names the order, window count, distinct n-gram count and total
//   - One line per n-gram: rank, rendered n-gram padded to the order width, smoothed
//     count, and relative frequency
func (p *Printer) Dump(m *ngram.Model, top int) {
	p.printf("%s\n", p.paint(ansiBold, fmt.Sprintf("order %d: %d windows, %d distinct, total %d",
		m.Order(), m.Windows(), m.Observed(), m.Total())))
	for i, e := range m.Top(top) {
		gram := runewidth.FillRight(alphabet.Render(e.Gram), m.Order())
		p.printf("%6d  [%s]  %8d  %.6g\n", i+1, p.paint(ansiCyan, gram), e.Count, float64(e.Count)/float64(m.Total()))
	}
}

// Solution prints the key, its score and the plaintext in rows of key-length bytes.
func (p *Printer) Solution(res anneal.Result, plaintext []byte) {
	status := p.paint(ansiGreen, string(res.Status))
	if res.Status != anneal.StatusQuenched {
		status = p.paint(ansiYellow, string(res.Status))
	}
	p.printf("%s %s  %s\n", p.paint(ansiBold, "key:"), p.paint(ansiCyan, "["+alphabet.Render(res.Key)+"]"), p.paint(ansiDim, fmt.Sprintf("%x", res.Key)))
	p.printf("%s %.6f  (%d steps, %s)\n", p.paint(ansiBold, "score:"), res.Score, res.Steps, status)
	if len(res.OrderScores) > 0 && len(res.OrderScores) == len(res.Weights) {
		parts := make([]string, len(res.OrderScores))
		for i, s := range res.OrderScores {
			parts[i] = fmt.Sprintf("%d:%.4g", i+1, s*res.Weights[i])
		}
		p.printf("%s\n", p.paint(ansiDim, "per order: "+strings.Join(parts, " ")))
	}
	p.printf("\n")
	for _, row := range Columns(plaintext, res.KeyLength) {
		p.printf("%s\n", row)
	}
}

// Columns renders buf in rows of width bytes each, the last row possibly shorter.
// width < 1 yields a single row.
func Columns(buf []byte, width int) []string {
	if width < 1 {
		width = len(buf)
	}
	var rows []string
	for i := 0; i < len(buf); i += width {
		end := min(i+width, len(buf))
		rows = append(rows, alphabet.Render(buf[i:end]))
	}
	return rows
}

// Sweep prints one line per key length in the order given (best first from anneal.Sweep).
func (p *Printer) Sweep(results []anneal.Result) {
	p.printf("%s\n", p.paint(ansiBold, fmt.Sprintf("%4s  %12s  %9s  %-10s  %s", "len", "score", "steps", "status", "key")))
	for i, r := range results {
		line := fmt.Sprintf("%4d  %12.6f  %9d  %-10s  [%s]", r.KeyLength, r.Score, r.Steps, r.Status, keyColumn(r.Key))
		if i == 0 {
			line = p.paint(ansiGreen, line)
		}
		p.printf("%s\n", line)
	}
}

// History prints stored runs, newest first.
func (p *Printer) History(sum types.HistorySummary) {
	if len(sum.Runs) == 0 {
		p.printf("%s\n", p.paint(ansiDim, "no runs recorded"))
		return
	}
	p.printf("%s\n", p.paint(ansiBold, fmt.Sprintf("%d of %d runs", len(sum.Runs), sum.Total)))
	for _, r := range sum.Runs {
		status := string(r.Status)
		if r.Status == types.RunFailed {
			status = p.paint(ansiRed, status)
		}
		p.printf("%s  %s  len=%d order=%d half-life=%d seed=%d  score=%.6f  %s  [%s]  %s\n",
			p.paint(ansiDim, r.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			r.ID[:min(8, len(r.ID))],
			r.Params.KeyLength, r.Params.MaxOrder, r.Params.HalfLife, r.Params.Seed,
			r.Score, status, keyColumn(r.Key), r.CiphertextPath)
	}
}

// keyColumn renders key for a table cell, truncated to maxKeyColumn cells.
func keyColumn(key []byte) string {
	return runewidth.Truncate(alphabet.Render(key), maxKeyColumn, "…")
}
