package coverage

// idSet is an insertion-ordered set of node ids.
//
// Removal leaves a stale slot in order; a slot is live only while index
// still points at it. Stale slots are compacted once they outnumber the live
// ones, so remove is amortised O(1).
type idSet struct {
	order []string
	index map[string]int
	stale int
}

// compactMinStale keeps tiny sets from compacting on every removal.
const compactMinStale = 32

func newIDSet() *idSet {
	return &idSet{index: make(map[string]int)}
}

func (s *idSet) add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.order)
	s.order = append(s.order, id)
	return true
}

func (s *idSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *idSet) remove(id string) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	s.stale++
	if s.stale >= compactMinStale && s.stale > len(s.index) {
		s.compact()
	}
	return true
}

// replace swaps old for repl in place, keeping old's position. If repl is
// already present old is simply removed.
func (s *idSet) replace(old, repl string) {
	pos, ok := s.index[old]
	if !ok || old == repl {
		return
	}
	if s.has(repl) {
		s.remove(old)
		return
	}
	delete(s.index, old)
	s.index[repl] = pos
	s.order[pos] = repl
}

func (s *idSet) live(i int) bool {
	pos, ok := s.index[s.order[i]]
	return ok && pos == i
}

func (s *idSet) compact() {
	kept := s.order[:0]
	for i, id := range s.order {
		if s.live(i) {
			s.index[id] = len(kept)
			kept = append(kept, id)
		}
	}
	clear(s.order[len(kept):])
	s.order = kept
	s.stale = 0
}

func (s *idSet) len() int { return len(s.index) }

// each calls fn for every member in insertion order.
func (s *idSet) each(fn func(id string)) {
	for i, id := range s.order {
		if s.live(i) {
			fn(id)
		}
	}
}

func (s *idSet) items() []string {
	out := make([]string, 0, len(s.index))
	s.each(func(id string) { out = append(out, id) })
	return out
}
