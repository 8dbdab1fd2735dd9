package evmdecomp

import (
	"time"

	"github.com/aj3423/evmdecomp/util"
	"go.uber.org/zap"
)

// Stats summarises one Analyse run: how many outer-loop iterations it took,
// how much graph surgery happened, and whether it gave up on the time
// budget rather than reaching a fixed point.
type Stats struct {
	Iterations   int
	BlocksSplit  int
	BlocksMerged int
	BailedOut    bool
	Duration     time.Duration
}

// Analyse runs the full outer loop (spec.md §4.7) to a fixed point (or
// bailout), then the finalisation phase and graph cleanup, returning the
// now-stable graph.
//
// The finalisation phase follows the reading spec.md §9 recommends for the
// source's save/restore ambiguity: run stack_analysis once more with the
// inner forcing (stack_analysis always disables mutate_jumps/generate_throws
// for its own worklist loop), then run the global hook_up_jumps pass once
// with the *_final settings — not a second full stack_analysis pass with
// finalisation flags, which the inner forcing would immediately undo anyway.
func Analyse(g *TACGraph, settings *Settings, logger *zap.Logger) (*TACGraph, Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := Stats{}
	start := time.Now()
	originPcs := rootPcs(g)
	skip := map[*TACBlock]bool{}

	for settings.MaxIterations < 0 || stats.Iterations < settings.MaxIterations {
		modified, err := stackAnalysis(g, settings)
		if err != nil {
			return g, stats, err
		}
		if CloneAmbiguousJumpBlocks(g, skip) {
			stats.BlocksSplit++
			modified = true
		}
		stats.Iterations++
		if !modified {
			break
		}
		if settings.BailoutSeconds >= 0 && time.Since(start) > time.Duration(settings.BailoutSeconds)*time.Second {
			stats.BailedOut = true
			logger.Warn("evmdecomp: analysis bailout", zap.Int("iterations", stats.Iterations))
			break
		}
	}

	HookUpDefSiteJumps(g)

	settings.Push()
	settings.MutateJumps = settings.FinalMutateJumps
	settings.GenerateThrows = settings.FinalGenerateThrows
	_, err := stackAnalysis(g, settings)
	settings.Pop()
	if err != nil {
		return g, stats, err
	}

	if MergeDuplicateBlocks(g, true, true, settings) {
		stats.BlocksMerged++
	}
	HookUpDefSiteJumps(g)
	PropVarsBetweenBlocks(g)
	MakeStackNamesUnique(g)

	if settings.MergeUnreachable {
		MergeUnreachableBlocks(g, originPcs)
	}
	if settings.RemoveUnreachable {
		g.RemoveUnreachableBlocks(originPcs)
	}

	stats.Duration = time.Since(start)
	if settings.Analytics {
		logger.Info("evmdecomp: analysis complete",
			zap.Int("iterations", stats.Iterations),
			zap.Int("blocks", len(g.Blocks)),
			zap.Int("blocks_split", stats.BlocksSplit),
			zap.Int("blocks_merged", stats.BlocksMerged),
			zap.Bool("bailed_out", stats.BailedOut),
			zap.Duration("duration", stats.Duration),
		)
	}
	return g, stats, nil
}

func rootPcs(g *TACGraph) []uint64 {
	if g.Root != nil {
		return []uint64{g.Root.Entry}
	}
	return nil
}

// stackAnalysis runs one worklist pass to a local fixed point: build each
// reachable block's entry/exit stacks, optionally widen and clamp, and
// (when mutate_blockwise) re-infer jumps block by block as stacks settle.
// mutate_jumps/generate_throws are forced off for the whole pass — values
// aren't final until the outer loop itself converges.
func stackAnalysis(g *TACGraph, settings *Settings) (bool, error) {
	if settings.ReinitStacks {
		for _, b := range g.Blocks {
			b.SymbolicOverflow = false
			b.EntryStack = nil
			b.ExitStack = nil
		}
	}

	settings.Push()
	settings.MutateJumps = false
	settings.GenerateThrows = false

	visited := map[*TACBlock]bool{}
	cumulative := map[string]*VariableStack{}
	unmodStackChangedCount := 0
	stacksClamped := false
	structuralChange := false

	var queue []*TACBlock
	queued := map[*TACBlock]bool{}
	enqueue := func(b *TACBlock) {
		if !queued[b] {
			queue = append(queue, b)
			queued[b] = true
		}
	}
	for _, b := range g.Blocks {
		if len(b.Preds) == 0 {
			enqueue(b)
		}
	}

	var stepErr error
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		queued[b] = false

		changed := BuildEntryStack(b)
		if !changed && visited[b] {
			continue
		}

		if settings.WidenVariables {
			acc, ok := cumulative[b.Ident()]
			if !ok {
				acc = b.EntryStack.Clone()
			} else {
				acc = VariableStackJoin(acc, b.EntryStack)
			}
			widenStackSlots(acc, settings.WidenThreshold)
			cumulative[b.Ident()] = acc
			b.EntryStack = acc.Clone()
		}

		if settings.ClampLargeStacks && !stacksClamped {
			if visited[b] {
				unmodStackChangedCount++
			}
			if unmodStackChangedCount > len(g.Blocks) {
				clampAllStacks(g, settings.ClampStackMinimum)
				stacksClamped = true
			}
		}

		if err := BuildExitStack(b, settings); err != nil {
			stepErr = err
			break
		}
		if b.SymbolicOverflow && settings.SkipStackOnOverflow {
			visited[b] = true
			continue
		}

		if settings.MutateBlockwise {
			if settings.HookUpStackVars {
				HookUpStackVars(b)
			}
			ApplyOperations(b, settings)
			if settings.HookUpJumps {
				oldSuccs := util.CloneSlice(b.Succs)
				if HookUpJumps(g, b, settings) {
					structuralChange = true
					for _, s := range oldSuccs {
						enqueue(s)
					}
					for _, s := range b.Succs {
						visited[s] = false
						if settings.WidenVariables {
							delete(cumulative, s.Ident())
						}
						if settings.ClampLargeStacks {
							unmodStackChangedCount = 0
						}
					}
				}
			}
		}

		visited[b] = true
		for _, s := range b.Succs {
			enqueue(s)
		}
	}

	settings.Pop()
	if stepErr != nil {
		return structuralChange, stepErr
	}

	for _, b := range g.Blocks {
		if settings.HookUpStackVars {
			HookUpStackVars(b)
		}
		ApplyOperations(b, settings)
		if settings.HookUpJumps && HookUpJumps(g, b, settings) {
			structuralChange = true
		}
	}
	if AddMissingSplitEdges(g) {
		structuralChange = true
	}

	return structuralChange, nil
}

func widenStackSlots(acc *VariableStack, threshold int) {
	for _, v := range acc.Items() {
		if !v.Values.IsTop() && v.Values.Size() > threshold {
			v.Values = SubsetTop[Element]()
		}
	}
}

func clampAllStacks(g *TACGraph, minimum int) {
	maxDepth := 0
	for _, b := range g.Blocks {
		if b.EntryStack != nil && b.EntryStack.Len() > maxDepth {
			maxDepth = b.EntryStack.Len()
		}
		if b.ExitStack != nil && b.ExitStack.Len() > maxDepth {
			maxDepth = b.ExitStack.Len()
		}
	}
	if maxDepth < minimum {
		maxDepth = minimum
	}
	for _, b := range g.Blocks {
		if b.EntryStack != nil {
			b.EntryStack.SetMaxSize(maxDepth)
		}
		if b.ExitStack != nil {
			b.ExitStack.SetMaxSize(maxDepth)
		}
	}
}
