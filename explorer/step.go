package explorer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/internal/ctxkeys"
	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/observe"
	"github.com/BaSui01/panoroam/vision"
)

// stepState is the working set of one AdvanceStep call.
type stepState struct {
	from          *nodesource.Node
	cur           *nodesource.Node
	links         []nodesource.Link
	recoveredFrom string
	mode          Mode
}

// move is the decision a step is about to commit.
type move struct {
	mode      Mode
	link      nodesource.Link
	rationale string
	loopGuard string

	// settled is set by teleports, which settle while choosing.
	settled  *nodesource.Node
	teleport bool

	visionUsed     bool
	visionAttempts int
	fallbackCause  string
	observations   []string
}

// AdvanceStep executes one exploration step: fetch links, pick a direction,
// settle there and record the visit. Overlapping calls are rejected with
// ErrStepInFlight. Node-source failures abort the step; vision failures never
// do.
func (a *Agent) AdvanceStep(ctx context.Context) (*StepRecord, error) {
	if !a.stepMu.TryLock() {
		return nil, ErrStepInFlight
	}
	defer a.stepMu.Unlock()
	a.inFlight.Store(true)
	defer a.inFlight.Store(false)

	a.mu.RLock()
	cur, runID, index := a.current, a.runID, a.stepIndex
	a.mu.RUnlock()
	if cur == nil {
		return nil, ErrNotSeeded
	}

	start := a.now()
	ctx = ctxkeys.WithStepIndex(ctxkeys.WithRunID(ctx, runID), index+1)
	ctx, span := a.tracer.Start(ctx, "explorer.AdvanceStep",
		trace.WithAttributes(
			attribute.String("explorer.run_id", runID),
			attribute.Int("explorer.step_index", index+1),
			attribute.String("explorer.from_node", cur.ID),
		))
	defer span.End()

	st := &stepState{from: cur, cur: cur, mode: ModeExploring}
	rec, err := a.step(ctx, st)
	elapsed := a.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordStep(st.mode.String(), "failed", elapsed)
		a.logger.Warn("step failed",
			zap.String("run_id", runID),
			zap.String("node_id", cur.ID),
			zap.Stringer("mode", st.mode),
			zap.Error(err))
		return nil, err
	}

	rec.Duration = elapsed
	span.SetAttributes(
		attribute.String("explorer.mode", rec.Mode.String()),
		attribute.Bool("explorer.mechanical", rec.Mode.Mechanical()),
		attribute.String("explorer.chosen_node", rec.ChosenNodeID),
		attribute.Bool("explorer.vision_used", rec.VisionUsed),
		attribute.Bool("explorer.new_cell", rec.NewCell),
	)
	if rec.LoopGuard != "" {
		span.SetAttributes(attribute.String("explorer.loop_guard", rec.LoopGuard))
	}
	span.SetStatus(codes.Ok, "committed")

	a.metrics.RecordStep(rec.Mode.String(), "ok", elapsed)
	a.publishCoverage()
	a.logger.Info("step committed",
		zap.Int("step", rec.StepIndex),
		zap.Stringer("mode", rec.Mode),
		zap.String("from", rec.FromNodeID),
		zap.String("to", rec.ChosenNodeID),
		zap.Float64("heading", rec.Heading),
		zap.Bool("vision", rec.VisionUsed),
		zap.String("fallback", rec.FallbackCause),
		zap.String("loop_guard", rec.LoopGuard),
		zap.Bool("new_cell", rec.NewCell),
		zap.Duration("duration", elapsed))
	return rec, nil
}

func (a *Agent) step(ctx context.Context, st *stepState) (*StepRecord, error) {
	fresh, err := a.source.Expand(ctx, nodesource.ByID(st.cur.ID))
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", st.cur.ID, err)
	}
	st.links = a.normalizeLinks(st.cur.ID, fresh.Links)

	if len(st.links) == 0 {
		st.mode = ModeDeadEndRecovery
		recovered, err := a.recoverDeadEnd(ctx, st.cur)
		if errors.Is(err, ErrNoNavigableNode) {
			return a.escapeDeadEnd(ctx, st, err)
		}
		if err != nil {
			return nil, err
		}
		st.recoveredFrom = st.cur.ID
		st.cur = recovered
		st.links = a.normalizeLinks(recovered.ID, recovered.Links)
	}

	mv, err := a.chooseMove(ctx, st)
	if err != nil {
		return nil, err
	}
	if st.recoveredFrom != "" && mv.mode != ModeTeleport {
		mv.mode = ModeDeadEndRecovery
	}
	st.mode = mv.mode
	return a.commit(ctx, st, mv)
}

func (a *Agent) chooseMove(ctx context.Context, st *stepState) (*move, error) {
	if a.staleSteps() > a.cfg.StaleCellThreshold {
		a.metrics.RecordLoopGuard(LoopGuardStale)
		mv, err := a.teleportMove(ctx, st, LoopGuardStale)
		if err == nil {
			return mv, nil
		}
		if !isFrontierExhausted(err) {
			return nil, err
		}
		a.logger.Debug("stale guard tripped with nothing to teleport to",
			zap.String("node_id", st.cur.ID))
	}

	unvisited := make([]nodesource.Link, 0, len(st.links))
	for _, l := range st.links {
		if !a.graph.HasVisited(l.TargetID) {
			unvisited = append(unvisited, l)
		}
	}

	if len(unvisited) == 0 && a.graph.SeenBefore(st.cur.ID) {
		return a.stuckMove(ctx, st)
	}

	cands := unvisited
	if len(cands) == 0 {
		cands = st.links
	}
	if len(cands) == 1 {
		mv := &move{
			mode:      ModeSingleOption,
			link:      cands[0],
			rationale: "only viable link",
		}
		return a.guardMechanical(ctx, st, mv)
	}
	return a.decideMove(ctx, st, cands)
}

// stuckMove routes towards the frontier without consulting vision.
func (a *Agent) stuckMove(ctx context.Context, st *stepState) (*move, error) {
	if !a.graph.HasFrontier() {
		return nil, ErrExplorationComplete
	}

	if a.graph.Len() >= a.cfg.ClusterRoutingMinNodes {
		if r := a.finder.ClusteredNearestFrontier(st.cur.ID, st.links, a.clusters); r != nil {
			rationale := fmt.Sprintf("cluster route, %d cluster hops to frontier", r.Distance)
			if r.Reposition {
				rationale = fmt.Sprintf("cluster reposition, %d cluster hops to frontier", r.Distance)
			}
			return a.guardMechanical(ctx, st, &move{
				mode:      ModePathfinding,
				link:      r.Link,
				rationale: rationale,
			})
		}
	}

	if r := a.finder.NearestFrontier(st.cur.ID); r != nil {
		if l, ok := findLink(st.links, r.NextHop); ok {
			return a.guardMechanical(ctx, st, &move{
				mode:      ModePathfinding,
				link:      l,
				rationale: fmt.Sprintf("path to frontier %s, %d hops", r.Target, r.PathLength),
			})
		}
		a.logger.Debug("next hop not among current links",
			zap.String("node_id", st.cur.ID),
			zap.String("next_hop", r.NextHop))
	}

	if l, score, ok := a.finder.EscapeDirection(st.cur.ID, st.links); ok {
		return a.guardMechanical(ctx, st, &move{
			mode:      ModePathfinding,
			link:      l,
			rationale: fmt.Sprintf("escape heuristic, score %.0f", score),
		})
	}

	return a.teleportMove(ctx, st, "")
}

// guardMechanical applies the loop guards to a move taken without vision. A
// looping move gets a second-chance teleport; with nowhere to teleport the
// move is committed anyway.
func (a *Agent) guardMechanical(ctx context.Context, st *stepState, mv *move) (*move, error) {
	guard := a.loopGuard(mv.link.TargetID)
	if guard == "" {
		return mv, nil
	}
	a.metrics.RecordLoopGuard(guard)

	tp, err := a.teleportMove(ctx, st, guard)
	if err == nil {
		return tp, nil
	}
	if !isFrontierExhausted(err) {
		return nil, err
	}
	a.logger.Warn("loop guard overridden, frontier unreachable",
		zap.String("node_id", st.cur.ID),
		zap.String("target", mv.link.TargetID),
		zap.String("guard", guard))
	mv.loopGuard = LoopGuardOverridden
	return mv, nil
}

// decideMove consults vision among cands, dropping looping picks and asking
// again until a safe one is found.
func (a *Agent) decideMove(ctx context.Context, st *stepState, cands []nodesource.Link) (*move, error) {
	obs := make(map[string]observe.Observation, len(cands))
	remaining := append([]nodesource.Link(nil), cands...)
	looping := make(map[string]struct{})

	var (
		firstGuard string
		firstPick  *move
		attempts   int
		consulted  bool
	)
	for len(remaining) > 0 {
		mv := &move{mode: ModeExploring}
		idx := 0
		if len(remaining) == 1 && firstGuard != "" {
			mv.rationale = "only candidate left after loop guard"
		} else {
			a.captureAll(ctx, st.cur, remaining, obs)
			dec := a.decider.Decide(ctx, a.visionRequest(st.cur, remaining, obs))
			a.metrics.RecordVisionDecision(dec.FallbackCause, dec.Attempts)
			attempts += dec.Attempts

			idx = dec.Index
			mv.rationale = dec.Rationale
			mv.fallbackCause = dec.FallbackCause
			if idx < 0 || idx >= len(remaining) {
				a.logger.Debug("vision selection out of range",
					zap.Int("index", idx),
					zap.Int("candidates", len(remaining)))
				idx = 0
				mv.fallbackCause = FallbackInvalidSelection
			}
			consulted = true
		}
		mv.visionUsed = consulted
		mv.visionAttempts = attempts
		mv.link = remaining[idx]
		mv.observations = observationRefs(cands, obs)

		guard := a.loopGuard(mv.link.TargetID)
		if guard == "" {
			mv.loopGuard = firstGuard
			return mv, nil
		}
		a.metrics.RecordLoopGuard(guard)
		if firstGuard == "" {
			firstGuard = guard
			firstPick = mv
		}
		looping[mv.link.TargetID] = struct{}{}
		remaining = append(remaining[:idx:idx], remaining[idx+1:]...)
	}

	safe := make([]nodesource.Link, 0, len(st.links))
	for _, l := range st.links {
		if _, bad := looping[l.TargetID]; bad {
			continue
		}
		if a.loopGuard(l.TargetID) == "" {
			safe = append(safe, l)
		}
	}
	if l, score, ok := a.finder.EscapeDirection(st.cur.ID, safe); ok {
		return &move{
			mode:           ModePathfinding,
			link:           l,
			rationale:      fmt.Sprintf("every candidate loops, escape heuristic score %.0f", score),
			loopGuard:      firstGuard,
			visionUsed:     firstPick.visionUsed,
			visionAttempts: attempts,
			observations:   firstPick.observations,
		}, nil
	}

	tp, err := a.teleportMove(ctx, st, firstGuard)
	if err == nil {
		return tp, nil
	}
	if !isFrontierExhausted(err) {
		return nil, err
	}
	a.logger.Warn("loop guard overridden, no alternative",
		zap.String("node_id", st.cur.ID),
		zap.String("target", firstPick.link.TargetID),
		zap.String("guard", firstGuard))
	firstPick.loopGuard = LoopGuardOverridden
	firstPick.visionAttempts = attempts
	return firstPick, nil
}

// captureAll captures one observation per link not already in obs. Failed
// captures leave the candidate without an image.
func (a *Agent) captureAll(ctx context.Context, cur *nodesource.Node, links []nodesource.Link, obs map[string]observe.Observation) {
	for _, l := range links {
		if _, ok := obs[l.TargetID]; ok {
			continue
		}
		o, err := a.capturer.Capture(ctx, observe.Request{
			NodeID:   cur.ID,
			Position: cur.Position,
			Heading:  l.Heading,
		})
		if err != nil {
			a.logger.Warn("observation capture failed",
				zap.String("node_id", cur.ID),
				zap.Float64("heading", l.Heading),
				zap.Error(err))
			o = observe.Observation{NodeID: cur.ID, Heading: l.Heading}
		}
		obs[l.TargetID] = o
	}
}

func (a *Agent) visionRequest(cur *nodesource.Node, links []nodesource.Link, obs map[string]observe.Observation) vision.Request {
	cands := make([]vision.Candidate, len(links))
	for i, l := range links {
		n := a.graph.VisitCount(l.TargetID)
		cands[i] = vision.Candidate{
			NodeID:      l.TargetID,
			Heading:     l.Heading,
			Description: l.Description,
			Visited:     n > 0,
			VisitCount:  n,
			Observation: obs[l.TargetID],
		}
	}
	return vision.Request{
		CurrentID:     cur.ID,
		Position:      cur.Position,
		Candidates:    cands,
		RecentHistory: a.graph.History(),
		Coverage:      a.graph.Stats(),
	}
}

func observationRefs(links []nodesource.Link, obs map[string]observe.Observation) []string {
	var refs []string
	for _, l := range links {
		if o, ok := obs[l.TargetID]; ok && o.Ref != "" {
			refs = append(refs, o.Ref)
		}
	}
	return refs
}

// loopGuard returns the label of the loop signature that visiting target
// would complete, or "".
func (a *Agent) loopGuard(target string) string {
	if a.graph.IsAlternatingLoop(target, a.cfg.AlternatingMinLength) {
		return LoopGuardAlternating
	}
	if a.graph.WouldExtendRepeatingCycle(target, a.cfg.cycleOptions()) {
		return LoopGuardCycle
	}
	return ""
}

// recoverDeadEnd walks along the last heading looking for a node with links.
// The recovered node is committed as visited and joined to the dead end by a
// synthetic edge.
func (a *Agent) recoverDeadEnd(ctx context.Context, dead *nodesource.Node) (*nodesource.Node, error) {
	a.mu.RLock()
	h := a.lastHeading
	a.mu.RUnlock()
	if h == nil {
		return nil, ErrNoNavigableNode.WithMessage("dead end at %s and no heading to follow", dead.ID)
	}
	heading := *h

	stepM, maxM := a.cfg.DeadEndStepMeters, a.cfg.DeadEndMaxMeters
	for walked := stepM; walked <= maxM+1e-9; walked += stepM {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ahead := geo.Project(dead.Position, heading, walked)
		found, err := a.source.Expand(ctx, nodesource.ByPosition(ahead))
		if err != nil {
			if errors.Is(err, nodesource.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("dead-end walk at %.0fm: %w", walked, err)
		}
		if a.graph.Canonical(found.ID) == dead.ID || len(a.normalizeLinks(found.ID, found.Links)) == 0 {
			continue
		}

		settled, err := a.source.Settle(ctx, found.ID)
		if err != nil {
			if errors.Is(err, nodesource.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("settle %s: %w", found.ID, err)
		}
		if settled.ID == dead.ID || len(a.normalizeLinks(settled.ID, settled.Links)) == 0 {
			continue
		}

		if settled.ID != found.ID {
			a.graph.ResolveAlias(found.ID, settled.ID)
		}
		a.commitVisit(settled, found.ID)
		a.graph.AddEdge(dead.ID, settled.ID, heading, "dead-end recovery")

		a.mu.Lock()
		a.current = settled
		a.mu.Unlock()

		a.logger.Info("recovered from dead end",
			zap.String("dead_end", dead.ID),
			zap.String("recovered", settled.ID),
			zap.Float64("walked_m", walked))
		return settled, nil
	}
	return nil, ErrNoNavigableNode.WithMessage("no node with links within %.0fm of %s along %.0f°",
		maxM, dead.ID, heading)
}

// escapeDeadEnd leaves a dead end the heading walk could not recover from by
// teleporting to the nearest frontier entry. With no frontier left the walk
// error is returned joined with ErrExplorationComplete.
func (a *Agent) escapeDeadEnd(ctx context.Context, st *stepState, walkErr error) (*StepRecord, error) {
	mv, err := a.teleportMove(ctx, st, "")
	switch {
	case errors.Is(err, ErrExplorationComplete):
		return nil, errors.Join(walkErr, ErrExplorationComplete)
	case errors.Is(err, ErrNoFrontier):
		return nil, walkErr
	case err != nil:
		return nil, err
	}
	a.logger.Info("teleporting out of dead end",
		zap.String("dead_end", st.cur.ID),
		zap.String("target", mv.link.TargetID))
	st.recoveredFrom = st.cur.ID
	st.mode = mv.mode
	mv.rationale = "dead end, " + mv.rationale
	return a.commit(ctx, st, mv)
}

// teleportMove settles directly at the frontier entry whose anchor lies
// nearest the current position. Entries the source cannot resolve are pruned
// and the next nearest is tried.
func (a *Agent) teleportMove(ctx context.Context, st *stepState, guard string) (*move, error) {
	for attempt := 0; attempt < a.cfg.MaxTeleportAttempts; attempt++ {
		entry, ok := a.nearestFrontierEntry(st.cur.Position)
		if !ok {
			break
		}
		settled, err := a.source.Settle(ctx, entry.NodeID)
		if err != nil {
			if errors.Is(err, nodesource.ErrNotFound) {
				a.graph.Prune(entry.NodeID)
				a.logger.Debug("pruned unresolvable frontier entry",
					zap.String("node_id", entry.NodeID))
				continue
			}
			return nil, fmt.Errorf("teleport to %s: %w", entry.NodeID, err)
		}
		return &move{
			mode: ModeTeleport,
			link: nodesource.Link{
				TargetID:    entry.NodeID,
				Heading:     geo.Bearing(st.cur.Position, settled.Position),
				Description: entry.Description,
			},
			rationale: fmt.Sprintf("teleport to frontier discovered from %s", entry.DiscoveredFrom),
			loopGuard: guard,
			settled:   settled,
			teleport:  true,
		}, nil
	}
	if !a.graph.HasFrontier() {
		return nil, ErrExplorationComplete
	}
	return nil, ErrNoFrontier
}

func (a *Agent) nearestFrontierEntry(from geo.LatLng) (coverage.FrontierEntry, bool) {
	var (
		best     coverage.FrontierEntry
		bestDist = math.Inf(1)
		found    bool
	)
	for _, e := range a.graph.FrontierEntries() {
		d := math.Inf(1)
		if anchor, ok := a.graph.Position(e.DiscoveredFrom); ok {
			d = geo.Distance(from, anchor)
		}
		if !found || d < bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, found
}

// commit settles at the chosen target (unless a teleport already did), feeds
// the settled node into the coverage graph and produces the step record.
func (a *Agent) commit(ctx context.Context, st *stepState, mv *move) (*StepRecord, error) {
	settled := mv.settled
	if settled == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		settled, err = a.source.Settle(ctx, mv.link.TargetID)
		if err != nil {
			return nil, fmt.Errorf("settle %s: %w", mv.link.TargetID, err)
		}
	}

	requested := mv.link.TargetID
	if settled.ID != requested {
		if a.graph.ResolveAlias(requested, settled.ID) {
			a.logger.Debug("alias resolved",
				zap.String("requested", requested),
				zap.String("settled", settled.ID))
		}
	}
	res := a.commitVisit(settled, requested)

	a.mu.Lock()
	a.current = settled
	a.stepIndex++
	a.lastMode = mv.mode
	if mv.teleport {
		a.stepsSinceNewCell = 0
		a.lastHeading = nil
	} else {
		h := geo.NormalizeHeading(mv.link.Heading)
		a.lastHeading = &h
	}
	rec := &StepRecord{
		ID:              uuid.NewString(),
		RunID:           a.runID,
		StepIndex:       a.stepIndex,
		Mode:            mv.mode,
		FromNodeID:      st.from.ID,
		RequestedNodeID: requested,
		ChosenNodeID:    settled.ID,
		Heading:         geo.NormalizeHeading(mv.link.Heading),
		Position:        settled.Position,
		Rationale:       mv.rationale,
		Observations:    mv.observations,
		VisionUsed:      mv.visionUsed,
		VisionAttempts:  mv.visionAttempts,
		FallbackCause:   mv.fallbackCause,
		LoopGuard:       mv.loopGuard,
		RecoveredFrom:   st.recoveredFrom,
		NewCell:         res.NewCell,
		FirstVisit:      res.FirstVisit,
		Timestamp:       a.now(),
	}
	a.mu.Unlock()

	rec.Coverage = a.graph.Stats()
	return rec, nil
}

func (a *Agent) staleSteps() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stepsSinceNewCell
}

func findLink(links []nodesource.Link, id string) (nodesource.Link, bool) {
	for _, l := range links {
		if l.TargetID == id {
			return l, true
		}
	}
	return nodesource.Link{}, false
}

func isFrontierExhausted(err error) bool {
	return errors.Is(err, ErrNoFrontier) || errors.Is(err, ErrExplorationComplete)
}
