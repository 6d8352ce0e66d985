package pathfind

import (
	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/nodesource"
)

// Escape scoring weights.
const (
	visitPenalty       = 10.0
	recencyPenalty     = 2.0
	frontierBonus      = 100.0
	reachableBonus     = 5.0
	recencyWindowWidth = coverage.DefaultHistorySize
)

// EscapeScore rates a single link target; higher is a better way out.
func (f *Finder) EscapeScore(target string) float64 {
	score := -visitPenalty * float64(f.cov.VisitCount(target))
	if idx := f.cov.HistoryIndexFromEnd(target); idx >= 0 {
		score -= recencyPenalty * float64(recencyWindowWidth-idx)
	}
	if f.cov.InFrontier(target) {
		score += frontierBonus
	}
	score += reachableBonus * float64(f.ReachableFrontierCount(target, DefaultReachableDepth))
	return score
}

// EscapeDirection picks the best of the directly available links when no
// path to the frontier is known. Links back to current are ignored; ties keep
// the first candidate.
func (f *Finder) EscapeDirection(current string, links []nodesource.Link) (nodesource.Link, float64, bool) {
	var (
		best      nodesource.Link
		bestScore float64
		found     bool
	)
	for _, l := range links {
		if l.TargetID == "" || l.TargetID == current {
			continue
		}
		s := f.EscapeScore(l.TargetID)
		if !found || s > bestScore {
			best, bestScore, found = l, s, true
		}
	}
	return best, bestScore, found
}
