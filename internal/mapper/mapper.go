// Package re-deriving support, branch length, and height statistics for an
// arbitrary target tree against a tree collection. The target need not be a
// consensus builder output; any tree on the same taxon universe works.
package mapper

import (
	"errors"
	"fmt"

	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

// Default absolute tolerance for the rooted mode's ultrametricity check.
const DefaultTolerance = 1e-5

var ErrEmptyCollection = errors.New("empty tree collection")

// One tree of the collection, decomposed for split matching.
type treeSplits struct {
	splits     gr.SplitSet
	tipLengths []float64 // pendant edge length per taxon index (NIL if unset)
}

// Matches the target's non-trivial splits against each input tree's splits
// and returns a new tree with edge support = match fraction and edge length
// = mean matched length. Tip lengths are averaged unconditionally over all
// trees, or (conditional) only over trees that contain the tip's local
// split, i.e. the split induced by its parent clade in the target; the two
// differ whenever a tip occupies a distinct position in part of the
// collection. Unmatched splits get support 0 and keep the target's length.
func Unrooted(target *tree.Tree, trees []*tree.Tree, conditional bool) (*tree.Tree, error) {
	if len(trees) == 0 {
		return nil, ErrEmptyCollection
	}
	ts, err := gr.NewTaxonSet(target)
	if err != nil {
		return nil, err
	}
	decomposed := make([]treeSplits, len(trees))
	for i, tre := range trees {
		td, err := gr.MakeTreeData(tre, ts)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i+1, err)
		}
		splits, err := td.Splits(false)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i+1, err)
		}
		decomposed[i] = treeSplits{splits: splits, tipLengths: pendantLengths(td, ts)}
	}
	out := target.Clone()
	tdOut, err := gr.MakeTreeData(out, ts)
	if err != nil {
		return nil, err
	}
	ntrees := float64(len(trees))
	tdOut.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if e == nil {
			return true
		}
		if cur.Tip() {
			mapTipLength(cur, e, tdOut, decomposed, conditional, ts)
			return true
		}
		s := gr.NewSplit(tdOut.CladeOf(cur.Id()))
		var lengths []float64
		matches := 0
		for _, d := range decomposed {
			if rec, ok := d.splits[s.Key()]; ok {
				matches++
				if rec.Length != tree.NIL_LENGTH {
					lengths = append(lengths, rec.Length)
				}
			}
		}
		e.SetSupport(float64(matches) / ntrees)
		if len(lengths) > 0 {
			e.SetLength(stat.Mean(lengths, nil))
		}
		return true
	})
	return out, nil
}

func pendantLengths(td *gr.TreeData, ts *gr.TaxonSet) []float64 {
	lengths := make([]float64, ts.Len())
	for i := range lengths {
		lengths[i] = tree.NIL_LENGTH
	}
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if e != nil && cur.Tip() {
			lengths[ts.Index(cur.Name())] = e.Length()
		}
		return true
	})
	return lengths
}

// Averages one tip's pendant length over the collection. Conditional mode
// restricts to trees containing the tip's local split; a tip hanging off the
// root has no local split and always averages over every tree.
func mapTipLength(tip *tree.Node, e *tree.Edge, tdOut *gr.TreeData, decomposed []treeSplits, conditional bool, ts *gr.TaxonSet) {
	taxon := ts.Index(tip.Name())
	var local *gr.Split
	if p, err := tip.Parent(); err == nil && p != tdOut.Root() {
		s := gr.NewSplit(tdOut.CladeOf(p.Id()))
		local = &s
	}
	var lengths []float64
	for _, d := range decomposed {
		if conditional && local != nil && !d.splits.Has(*local) {
			continue
		}
		if l := d.tipLengths[taxon]; l != tree.NIL_LENGTH {
			lengths = append(lengths, l)
		}
	}
	if len(lengths) > 0 {
		e.SetLength(stat.Mean(lengths, nil))
	}
}

// Per-clade height statistics collected by the rooted mode, indexed by node
// id of the returned tree. Matches is zero for tips and unmatched clades.
type HeightStats struct {
	Matches int
	Support float64
	Mean    float64
	Min     float64
	Max     float64
	Std     float64
}

// Matches the target's clades (exact descendant leaf-set equality, no
// partial matching) against a collection of rooted ultrametric trees and
// returns a new tree whose node heights are the mean matched heights,
// re-expressed as branch lengths, together with the per-node statistics.
// Every tree, and the target, must be rooted; every tree must be ultrametric
// within the absolute tolerance tol (tip heights ~ 0). Unmatched clades keep
// the target's own height.
func Rooted(target *tree.Tree, trees []*tree.Tree, tol float64) (*tree.Tree, []HeightStats, error) {
	if len(trees) == 0 {
		return nil, nil, ErrEmptyCollection
	}
	if !target.Rooted() {
		return nil, nil, fmt.Errorf("target tree is %w", gr.ErrUnrooted)
	}
	ts, err := gr.NewTaxonSet(target)
	if err != nil {
		return nil, nil, err
	}
	heights := make([]map[gr.CladeKey]float64, len(trees))
	for i, tre := range trees {
		if !tre.Rooted() {
			return nil, nil, fmt.Errorf("tree %d is %w", i+1, gr.ErrUnrooted)
		}
		td, err := gr.MakeTreeData(tre, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("tree %d: %w", i+1, err)
		}
		if err := td.CheckUltrametric(tol); err != nil {
			return nil, nil, fmt.Errorf("tree %d %w", i+1, err)
		}
		heights[i] = cladeHeights(td)
	}
	out := target.Clone()
	tdOut, err := gr.MakeTreeData(out, ts)
	if err != nil {
		return nil, nil, err
	}
	stats := make([]HeightStats, len(tdOut.Nodes()))
	nodeHeights := make([]float64, len(tdOut.Nodes()))
	ntrees := float64(len(trees))
	tdOut.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur.Tip() {
			return true
		}
		key := tdOut.CladeOf(cur.Id()).Key()
		var observed []float64
		for _, h := range heights {
			if v, ok := h[key]; ok {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			nodeHeights[cur.Id()] = tdOut.Height(cur.Id())
			return true
		}
		s := HeightStats{
			Matches: len(observed),
			Support: float64(len(observed)) / ntrees,
			Mean:    stat.Mean(observed, nil),
			Min:     floats.Min(observed),
			Max:     floats.Max(observed),
		}
		if len(observed) > 1 {
			s.Std = stat.StdDev(observed, nil)
		}
		stats[cur.Id()] = s
		nodeHeights[cur.Id()] = s.Mean
		return true
	})
	applyHeights(tdOut, nodeHeights, stats)
	return out, stats, nil
}

// Heights of every internal clade of one ultrametric tree, keyed canonically.
func cladeHeights(td *gr.TreeData) map[gr.CladeKey]float64 {
	heights := make(map[gr.CladeKey]float64)
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if !cur.Tip() {
			heights[td.CladeOf(cur.Id()).Key()] = td.Height(cur.Id())
		}
		return true
	})
	return heights
}

// Re-expresses node heights as branch lengths (parent height minus child
// height; tips sit at height zero) and writes supports onto internal edges.
func applyHeights(td *gr.TreeData, nodeHeights []float64, stats []HeightStats) {
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if e == nil {
			return true
		}
		e.SetLength(nodeHeights[prev.Id()] - nodeHeights[cur.Id()])
		if !cur.Tip() && stats[cur.Id()].Matches > 0 {
			e.SetSupport(stats[cur.Id()].Support)
		}
		return true
	})
}
