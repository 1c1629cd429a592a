package anneal

// Move classifies the outcome of one proposal.
type Move int

const (
	MoveRejected Move = iota
	MoveImproved      // strictly lower score
	MoveUphill        // higher score accepted by the Metropolis rule
	MoveSideways      // equal score, different key, accepted by the Metropolis rule
)

func (m Move) String() string {
	switch m {
	case MoveImproved:
		return "improved"
	case MoveUphill:
		return "uphill"
	case MoveSideways:
		return "sideways"
	default:
		return "rejected"
	}
}

// Accepted reports whether the move changed the current key.
func (m Move) Accepted() bool { return m != MoveRejected }

// Observer receives the events of one search, synchronously and in order:
// Begin once after calibration, Step once per step, End once at termination.
// Observers shared between concurrent searches must be safe for concurrent use.
type Observer interface {
	Begin(weights []float64, temperature float64)
	Step(s State, move Move)
	End(res Result)
}

type nopObserver struct{}

func (nopObserver) Begin([]float64, float64) {}
func (nopObserver) Step(State, Move)         {}
func (nopObserver) End(Result)               {}

// multiObserver fans every event out to each member in order.
type multiObserver []Observer

func (m multiObserver) Begin(weights []float64, temperature float64) {
	for _, o := range m {
		o.Begin(weights, temperature)
	}
}

func (m multiObserver) Step(s State, move Move) {
	for _, o := range m {
		o.Step(s, move)
	}
}

func (m multiObserver) End(res Result) {
	for _, o := range m {
		o.End(res)
	}
}

// Observers combines observers into one. Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}
