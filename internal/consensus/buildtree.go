package consensus

import (
	"fmt"
	"slices"

	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/gonum/stat"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

// Arena node record: nodes are addressed by index with explicit parent
// links, so construction never juggles cyclic parent/child pointers. The
// arena is materialized into a gotree tree at the end.
type arenaNode struct {
	clade   gr.Clade
	parent  int // -1 for the root
	name    string
	length  float64
	support float64
}

// Constructs the consensus tree from the kept clades. Kept clades are placed
// largest first; each attaches beneath the smallest already-placed clade
// containing it, which is unique because retained clades never partially
// overlap. Internal edge support is the clade frequency; edge lengths are
// means of the accumulated length values. Tips and the root carry no
// support. A missing superset means the conflict filter is broken and
// panics: that is a programmer error, not bad input.
func Build(table *CladeTable, kept []*CladeEntry) (*tree.Tree, error) {
	if len(kept) == 0 || !kept[0].Clade.IsFull() {
		panic("consensus invariant violated: trivial all-leaves clade not retained")
	}
	ordered := slices.Clone(kept)
	slices.SortFunc(ordered, func(a, b *CladeEntry) int {
		if a.Clade.Size() != b.Clade.Size() {
			return int(b.Clade.Size()) - int(a.Clade.Size())
		}
		return a.Clade.Compare(b.Clade)
	})
	arena := make([]arenaNode, 0, len(ordered)+table.Taxa.Len())
	for i, entry := range ordered {
		node := arenaNode{
			clade:   entry.Clade,
			parent:  -1,
			length:  meanOrNil(entry.Lengths),
			support: entry.Freq,
		}
		if i > 0 {
			node.parent = enclosingClade(arena, entry.Clade)
		} else {
			node.length = tree.NIL_LENGTH
			node.support = tree.NIL_SUPPORT
		}
		arena = append(arena, node)
	}
	for taxon := 0; taxon < table.Taxa.Len(); taxon++ {
		tip := gr.SingletonClade(uint(taxon), uint(table.Taxa.Len()))
		arena = append(arena, arenaNode{
			clade:   tip,
			parent:  enclosingClade(arena, tip),
			name:    table.Taxa.Name(taxon),
			length:  meanOrNil(table.TipLengths[taxon]),
			support: tree.NIL_SUPPORT,
		})
	}
	return materialize(arena), nil
}

// Index of the smallest placed clade strictly containing c. Uniqueness
// follows from the non-conflict invariant: two supersets of c overlap, so
// one must contain the other.
func enclosingClade(arena []arenaNode, c gr.Clade) int {
	best := -1
	for i, node := range arena {
		if c.SubsetOf(node.clade) && c.Size() < node.clade.Size() {
			if best < 0 || node.clade.Size() < arena[best].clade.Size() {
				best = i
			}
		}
	}
	if best < 0 {
		panic(fmt.Sprintf("consensus invariant violated: no enclosing clade for %v", c))
	}
	return best
}

func meanOrNil(values []float64) float64 {
	if len(values) == 0 {
		return tree.NIL_LENGTH
	}
	return stat.Mean(values, nil)
}

// Turns the arena into a gotree tree. Parents always precede children in the
// arena, so a single forward pass connects everything.
func materialize(arena []arenaNode) *tree.Tree {
	out := tree.NewTree()
	nodes := make([]*tree.Node, len(arena))
	for i, rec := range arena {
		n := out.NewNode()
		n.SetId(i) // NewNode leaves ids at NIL_ID; traversal consumers index by id
		if rec.name != "" {
			n.SetName(rec.name)
		}
		nodes[i] = n
		if rec.parent < 0 {
			out.SetRoot(n)
			continue
		}
		e := out.ConnectNodes(nodes[rec.parent], n)
		if rec.length != tree.NIL_LENGTH {
			e.SetLength(rec.length)
		}
		if rec.support != tree.NIL_SUPPORT {
			e.SetSupport(rec.support)
		}
	}
	out.ReinitIndexes()
	return out
}
