// Package anneal searches the repeating-key space by simulated annealing.
//
// One search owns a single mutable state: the current key, its weighted score,
// the temperature and the step of the last accepted change. Per-order weights are
// fixed at start so the initial random key scores exactly 1 on every order. The
// temperature starts at the standard deviation of the weighted scores of random
// keys and halves every HalfLife steps, whatever the outcome of each move. The
// search ends once 10 × alphabet size × key length consecutive steps pass without
// an accepted change.
package anneal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/haricheung/cribcrack/internal/alphabet"
	"github.com/haricheung/cribcrack/internal/chisq"
	"github.com/haricheung/cribcrack/internal/keystream"
	"github.com/haricheung/cribcrack/internal/ngram"
)

const (
	// CalibrationSamples is the number of random keys used to set the initial temperature.
	CalibrationSamples = 100
	// quenchFactor scales the alphabet × key length neighbourhood into the quench threshold.
	quenchFactor = 10
	// stepLimitHalfLives bounds a run at this many half-lives past the quench threshold.
	stepLimitHalfLives = 100
)

var (
	ErrNoModels  = errors.New("anneal: no models")
	ErrKeyLength = errors.New("anneal: key length must be at least 1")
	ErrHalfLife  = errors.New("anneal: half-life must be at least 1 step")
)

// Status tells why a search stopped.
type Status string

const (
	StatusQuenched  Status = "quenched"   // no accepted change for the quench threshold
	StatusStepLimit Status = "step_limit" // hard step limit reached first
	StatusCancelled Status = "cancelled"  // Options.Context was done
)

// Options configures one search.
type Options struct {
	KeyLength int
	HalfLife  int // steps for the temperature to halve
	CaseFold  bool
	// Rand is the only source of randomness. Nil means NewRand(0, KeyLength).
	Rand *rand.Rand
	// Observer receives calibration, per-step and final events. Nil is allowed.
	Observer Observer
	// MaxSteps caps the run. 0 means DefaultMaxSteps; negative disables the cap.
	MaxSteps int
	// Context, when set, stops the run between steps once it is done.
	Context context.Context
}

// State is the search state at one step. Key aliases the searcher's buffer;
// observers must copy it before retaining it.
type State struct {
	Key         []byte
	Score       float64
	Temperature float64
	Step        int
	LastChange  int
}

// Result is the state at termination together with the run's fixed parameters.
type Result struct {
	KeyLength          int       `json:"key_length"`
	Key                []byte    `json:"key"`
	Score              float64   `json:"score"`
	OrderScores        []float64 `json:"order_scores"` // unweighted per-order chi for Key
	Weights            []float64 `json:"weights"`
	InitialTemperature float64   `json:"initial_temperature"`
	Temperature        float64   `json:"temperature"`
	Steps              int       `json:"steps"`
	LastChange         int       `json:"last_change"`
	Status             Status    `json:"status"`
}

// NewRand returns the generator a run with the given seed and key length uses, so
// that independent runs per key length stay reproducible from one seed.
func NewRand(seed uint64, keyLength int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(keyLength)))
}

// QuenchThreshold returns the number of consecutive unchanged steps that ends a search.
func QuenchThreshold(keyLength int) int {
	return quenchFactor * alphabet.Size * keyLength
}

// DefaultMaxSteps returns the step limit used when Options.MaxSteps is 0.
func DefaultMaxSteps(keyLength, halfLife int) int {
	return stepLimitHalfLives*halfLife + QuenchThreshold(keyLength)
}

// CoolingFactor returns the per-step temperature multiplier 0.5^(1/halfLife).
func CoolingFactor(halfLife int) float64 {
	return math.Pow(0.5, 1/float64(halfLife))
}

// Weights returns 1/score for each order score. An order that scores 0 (no window
// of that order fits the ciphertext) gets weight 0 and takes no part in the search.
func Weights(scores []float64) []float64 {
	w := make([]float64, len(scores))
	for i, s := range scores {
		if s > 0 {
			w[i] = 1 / s
		}
	}
	return w
}

// Evaluate decodes ciphertext with key and returns the weighted score.
func Evaluate(ciphertext []byte, models []*ngram.Model, key []byte, weights []float64, caseFold bool) float64 {
	plain := keystream.Decode(ciphertext, key, caseFold)
	return chisq.Weighted(chisq.Scores(plain, models), weights)
}

// searcher holds the immutable inputs and a reusable plaintext buffer.
type searcher struct {
	ciphertext []byte
	models     []*ngram.Model
	caseFold   bool
	weights    []float64
	plain      []byte
}

func (s *searcher) orderScores(key []byte) []float64 {
	keystream.DecodeInto(s.plain, s.ciphertext, key, s.caseFold)
	return chisq.Scores(s.plain, s.models)
}

func (s *searcher) score(key []byte) float64 {
	return chisq.Weighted(s.orderScores(key), s.weights)
}

func randomKey(rng *rand.Rand, n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(rng.IntN(alphabet.Size))
	}
	return key
}

// Search anneals a key of opts.KeyLength bytes for ciphertext against models.
// It fails on invalid arguments, and with the context's error (after reporting the
// partial state to the observer) when Options.Context is cancelled.
//
// Expectations:
//   - Identical inputs and generator seed produce an identical Result
//   - Result.Key is the state at termination, not a best-ever key
//   - A proposal identical to the current key is never counted as a change
//   - A strictly lower score is always accepted; a higher or equal one with
//     probability exp(-Δ/T), and never when T is 0
func Search(ciphertext []byte, models []*ngram.Model, opts Options) (Result, error) {
	switch {
	case len(models) == 0:
		return Result{}, ErrNoModels
	case opts.KeyLength < 1:
		return Result{}, fmt.Errorf("%w: got %d", ErrKeyLength, opts.KeyLength)
	case opts.HalfLife < 1:
		return Result{}, fmt.Errorf("%w: got %d", ErrHalfLife, opts.HalfLife)
	}
	rng := opts.Rand
	if rng == nil {
		rng = NewRand(0, opts.KeyLength)
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps(opts.KeyLength, opts.HalfLife)
	}

	s := &searcher{
		ciphertext: ciphertext,
		models:     models,
		caseFold:   opts.CaseFold,
		plain:      make([]byte, len(ciphertext)),
	}

	// Init: weights normalise the first random key to 1 per order.
	key := randomKey(rng, opts.KeyLength)
	s.weights = Weights(s.orderScores(key))
	current := s.score(key)

	// Calibrate the temperature to the spread of random-key scores.
	samples := make([]float64, CalibrationSamples)
	for i := range samples {
		samples[i] = s.score(randomKey(rng, opts.KeyLength))
	}
	temperature := stddev(samples)
	initialTemperature := temperature
	obs.Begin(s.weights, temperature)

	cooling := CoolingFactor(opts.HalfLife)
	quench := QuenchThreshold(opts.KeyLength)
	candidate := make([]byte, opts.KeyLength)
	status := StatusQuenched
	step, lastChange := 0, 0

	var done <-chan struct{}
	if opts.Context != nil {
		done = opts.Context.Done()
	}

	for step-lastChange <= quench {
		if maxSteps > 0 && step >= maxSteps {
			status = StatusStepLimit
			break
		}
		select {
		case <-done:
			status = StatusCancelled
		default:
		}
		if status == StatusCancelled {
			break
		}
		step++
		temperature *= cooling

		copy(candidate, key)
		pos := rng.IntN(opts.KeyLength)
		candidate[pos] = byte(rng.IntN(alphabet.Size))

		// A proposal that reproduces the current key is never a change.
		move := MoveRejected
		if candidate[pos] == key[pos] {
			obs.Step(State{Key: key, Score: current, Temperature: temperature, Step: step, LastChange: lastChange}, move)
			continue
		}
		cs := s.score(candidate)
		switch {
		case cs < current:
			move = MoveImproved
		case temperature > 0:
			if rng.Float64() < math.Exp(-(cs-current)/temperature) {
				move = MoveUphill
				if cs == current {
					move = MoveSideways
				}
			}
		}
		if move != MoveRejected {
			key, candidate = candidate, key
			current = cs
			lastChange = step
		}
		obs.Step(State{Key: key, Score: current, Temperature: temperature, Step: step, LastChange: lastChange}, move)
	}

	res := Result{
		KeyLength:          opts.KeyLength,
		Key:                key,
		Score:              current,
		OrderScores:        s.orderScores(key),
		Weights:            s.weights,
		InitialTemperature: initialTemperature,
		Temperature:        temperature,
		Steps:              step,
		LastChange:         lastChange,
		Status:             status,
	}
	obs.End(res)
	if status == StatusCancelled {
		return res, opts.Context.Err()
	}
	return res, nil
}

// stddev returns the sample standard deviation (n-1 denominator) of xs.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
