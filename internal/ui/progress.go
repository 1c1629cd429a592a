package ui

import (
	"log/slog"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/anneal"
)

// Progress is an anneal.Observer that logs a debug line every Every steps.
type Progress struct {
	Logger    *slog.Logger
	KeyLength int
	Every     int
}

func (p *Progress) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Progress) Begin(weights []float64, temperature float64) {
	p.logger().Debug("[ANNEAL] calibrated", "key_length", p.KeyLength, "weights", weights, "temperature", temperature)
}

func (p *Progress) Step(s anneal.State, _ anneal.Move) {
	if p.Every <= 0 || s.Step%p.Every != 0 {
		return
	}
	p.logger().Debug("[ANNEAL] progress",
		"key_length", p.KeyLength,
		"step", s.Step,
		"temperature", s.Temperature,
		"score", s.Score,
		"key", alphabet.Render(s.Key))
}

func (p *Progress) End(r anneal.Result) {
	p.logger().Debug("[ANNEAL] done",
		"key_length", p.KeyLength,
		"status", r.Status,
		"steps", r.Steps,
		"score", r.Score)
}
