// Package metrics exposes search counters in Prometheus format. cribcrack is a
// batch job, so metrics are written once to a textfile (node-exporter textfile
// collector layout) instead of being served.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haricheung/cribcrack/internal/anneal"
)

const namespace = "cribcrack"

// Recorder owns a private registry with the search metrics.
type Recorder struct {
	reg         *prometheus.Registry
	steps       *prometheus.CounterVec
	moves       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	score       *prometheus.GaugeVec
	initialTemp *prometheus.GaugeVec
	finalTemp   *prometheus.GaugeVec
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}
	r.steps = counterVec("steps_total", "Annealing steps taken.", "key_length")
	r.moves = counterVec("moves_total", "Proposals by outcome (improved, uphill, sideways, rejected).", "key_length", "move")
	r.runs = counterVec("runs_total", "Finished searches by termination status.", "key_length", "status")
	r.score = gaugeVec("final_score", "Weighted score of the final key.", "key_length")
	r.initialTemp = gaugeVec("initial_temperature", "Calibrated starting temperature.", "key_length")
	r.finalTemp = gaugeVec("final_temperature", "Temperature at termination.", "key_length")
	r.reg.MustRegister(r.steps, r.moves, r.runs, r.score, r.initialTemp, r.finalTemp)
	return r
}

// Registry returns the underlying registry, for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteFile writes every metric to path in the Prometheus text format. The file is
// written via a temporary file and renamed, so collectors never read a partial file.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

// Observer returns an anneal.Observer feeding this recorder for one run. Label
// lookups happen once here, not per step.
func (r *Recorder) Observer(keyLength int) anneal.Observer {
	kl := strconv.Itoa(keyLength)
	o := &runObserver{r: r, kl: kl, steps: r.steps.WithLabelValues(kl)}
	for _, m := range []anneal.Move{anneal.MoveRejected, anneal.MoveImproved, anneal.MoveUphill, anneal.MoveSideways} {
		o.moves[m] = r.moves.WithLabelValues(kl, m.String())
	}
	return o
}

type runObserver struct {
	r     *Recorder
	kl    string
	steps prometheus.Counter
	moves [4]prometheus.Counter // indexed by anneal.Move
}

func (o *runObserver) Begin(_ []float64, temperature float64) {
	o.r.initialTemp.WithLabelValues(o.kl).Set(temperature)
}

func (o *runObserver) Step(_ anneal.State, move anneal.Move) {
	o.steps.Inc()
	o.moves[move].Inc()
}

func (o *runObserver) End(res anneal.Result) {
	o.r.score.WithLabelValues(o.kl).Set(res.Score)
	o.r.finalTemp.WithLabelValues(o.kl).Set(res.Temperature)
	o.r.runs.WithLabelValues(o.kl, string(res.Status)).Inc()
}
