package coverage

// Loop-signature defaults.
const (
	DefaultAlternatingMinLength = 6
	DefaultCycleMinPeriod       = 2
	DefaultCycleMaxPeriod       = 6
	DefaultCycleMinRepeats      = 3
)

// CycleOptions bounds the periodic-tail search.
type CycleOptions struct {
	MinPeriod  int
	MaxPeriod  int
	MinRepeats int
}

func (o CycleOptions) withDefaults() CycleOptions {
	if o.MinPeriod < 2 {
		o.MinPeriod = DefaultCycleMinPeriod
	}
	if o.MaxPeriod < o.MinPeriod {
		o.MaxPeriod = DefaultCycleMaxPeriod
		if o.MaxPeriod < o.MinPeriod {
			o.MaxPeriod = o.MinPeriod
		}
	}
	if o.MinRepeats < 2 {
		o.MinRepeats = DefaultCycleMinRepeats
	}
	return o
}

func (g *Graph) withCandidate(candidate string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seq := make([]string, 0, len(g.history)+1)
	seq = append(seq, g.history...)
	return append(seq, g.canonicalLocked(candidate))
}

// IsAlternatingLoop reports whether appending candidate to the history would
// complete a strict A,B,A,B... alternation of at least minLength entries.
func (g *Graph) IsAlternatingLoop(candidate string, minLength int) bool {
	if minLength < 3 {
		minLength = DefaultAlternatingMinLength
	}
	seq := g.withCandidate(candidate)
	if len(seq) < minLength {
		return false
	}
	tail := seq[len(seq)-minLength:]
	a, b := tail[0], tail[1]
	if a == b {
		return false
	}
	for i, id := range tail {
		want := a
		if i%2 == 1 {
			want = b
		}
		if id != want {
			return false
		}
	}
	return true
}

// WouldExtendRepeatingCycle reports whether appending candidate completes a
// periodic tail of some period p in [MinPeriod, MaxPeriod] repeated at least
// MinRepeats times. Periods made of a single repeated id are ignored.
func (g *Graph) WouldExtendRepeatingCycle(candidate string, opts CycleOptions) bool {
	opts = opts.withDefaults()
	seq := g.withCandidate(candidate)

	for p := opts.MinPeriod; p <= opts.MaxPeriod; p++ {
		// A tail periodic over k > MinRepeats repeats is also periodic over
		// MinRepeats, so the shortest window decides.
		n := p * opts.MinRepeats
		if n > len(seq) {
			break
		}
		window := seq[len(seq)-n:]
		if isPeriodic(window, p) && !degenerate(window[:p]) {
			return true
		}
	}
	return false
}

func isPeriodic(window []string, p int) bool {
	for i := p; i < len(window); i++ {
		if window[i] != window[i-p] {
			return false
		}
	}
	return true
}

func degenerate(period []string) bool {
	for _, id := range period[1:] {
		if id != period[0] {
			return false
		}
	}
	return true
}
