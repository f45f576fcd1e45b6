package graphs

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/evolbioinfo/gotree/tree"
)

// Expanded tree struct containing preprocessed per-node data used by the
// distance engine, consensus builder, and feature mapper. Leafsets are
// expressed in taxon universe index space so they are comparable across
// trees. The wrapped tree is never mutated.
type TreeData struct {
	tree.Tree
	Taxa       *TaxonSet      // shared taxon universe
	Children   [][]*tree.Node // children for each node id
	IdToNodes  []*tree.Node   // mapping between id and node pointer
	Depths     []int          // edge count from each node to the root
	DistToRoot []float64      // branch length sum from each node to the root
	NLeaves    int            // number of leaves
	leafsets   []*bitset.BitSet
	maxTipDist float64
}

// Preprocess tree data and make the TreeData struct. The tree must have the
// same tip set as the universe.
func MakeTreeData(tre *tree.Tree, ts *TaxonSet) (*TreeData, error) {
	if err := ts.MatchTree(tre); err != nil {
		return nil, err
	}
	children := children(tre)
	leafsets, err := calcLeafsets(tre, children, ts)
	if err != nil {
		return nil, err
	}
	dists := calcDistToRoot(tre)
	return &TreeData{
		Tree:       *tre,
		Taxa:       ts,
		Children:   children,
		IdToNodes:  mapIdToNodes(tre),
		Depths:     calcDepths(tre),
		DistToRoot: dists,
		NLeaves:    ts.Len(),
		leafsets:   leafsets,
		maxTipDist: calcMaxTipDist(tre, dists),
	}, nil
}

// Create mapping from id to node pointer
func mapIdToNodes(tre *tree.Tree) []*tree.Node {
	idMap := make([]*tree.Node, len(tre.Nodes()))
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		idMap[cur.Id()] = cur
		return true
	})
	return idMap
}

// Calculate children for each node for quick access (as gotree's Tree only
// stores neighbors)
func children(tre *tree.Tree) [][]*tree.Node {
	children := make([][]*tree.Node, len(tre.Nodes()))
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur.Tip() {
			children[cur.Id()] = []*tree.Node{}
		} else {
			children[cur.Id()] = getChildren(cur)
		}
		return true
	})
	return children
}

func getChildren(node *tree.Node) []*tree.Node {
	children := make([]*tree.Node, 0, 2)
	p, err := node.Parent()
	if err != nil && err.Error() == "The node has more than one parent" {
		panic(err)
	}
	for _, u := range node.Neigh() {
		if u != p {
			children = append(children, u)
		}
	}
	return children
}

// Calculates the leafset for every node, indexed by universe taxon index
// rather than the tree's own tip indices.
func calcLeafsets(tre *tree.Tree, children [][]*tree.Node, ts *TaxonSet) ([]*bitset.BitSet, error) {
	n := uint(ts.Len())
	leafsets := make([]*bitset.BitSet, len(tre.Nodes()))
	var tipErr error
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur.Tip() {
			idx := ts.Index(cur.Name())
			if idx < 0 {
				tipErr = fmt.Errorf("%w: unexpected label %q", ErrTipMismatch, cur.Name())
				return false
			}
			leafsets[cur.Id()] = bitset.New(n)
			leafsets[cur.Id()].Set(uint(idx))
		} else {
			leafsets[cur.Id()] = leafsets[children[cur.Id()][0].Id()].Clone()
			for _, c := range children[cur.Id()][1:] {
				leafsets[cur.Id()].InPlaceUnion(leafsets[c.Id()])
			}
		}
		return true
	})
	if tipErr != nil {
		return nil, tipErr
	}
	return leafsets, nil
}

// Calculate depths for all nodes in tree (slice index = node id)
func calcDepths(tre *tree.Tree) []int {
	depths := make([]int, len(tre.Nodes()))
	tre.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur != tre.Root() {
			depths[cur.Id()] = depths[prev.Id()] + 1
		}
		return true
	})
	return depths
}

// Branch length sum from the root to each node; unset lengths count as zero.
func calcDistToRoot(tre *tree.Tree) []float64 {
	dists := make([]float64, len(tre.Nodes()))
	tre.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur != tre.Root() {
			l := e.Length()
			if l == tree.NIL_LENGTH {
				l = 0
			}
			dists[cur.Id()] = dists[prev.Id()] + l
		}
		return true
	})
	return dists
}

// Clade (universe-indexed leaf-descendant set) of the node with the given id.
func (td *TreeData) CladeOf(nid int) Clade {
	return NewClade(td.leafsets[nid].Clone(), uint(td.NLeaves))
}

// n2 (taxon index) is in the leafset of the node with id nid
func (td *TreeData) InLeafset(nid int, taxon uint) bool {
	return td.leafsets[nid].Test(taxon)
}

// Height of a node above the deepest tip level: max root-to-tip distance
// minus the node's own distance to the root. Only meaningful for ultrametric
// trees, where it is the shared distance to every descendant tip.
func (td *TreeData) Height(nid int) float64 {
	return td.maxTipDist - td.DistToRoot[nid]
}

func calcMaxTipDist(tre *tree.Tree, dists []float64) float64 {
	max := 0.0
	for _, tip := range tre.Tips() {
		if d := dists[tip.Id()]; d > max {
			max = d
		}
	}
	return max
}

// Checks that every tip sits at height zero within an absolute tolerance.
// Returns ErrNotUltrametric naming the first offending tip.
func (td *TreeData) CheckUltrametric(tol float64) error {
	for _, tip := range td.Tips() {
		if h := td.Height(tip.Id()); math.Abs(h) > tol {
			return fmt.Errorf("%w: tip %q at height %g exceeds tolerance %g",
				ErrNotUltrametric, tip.Name(), h, tol)
		}
	}
	return nil
}

// Record of one bipartition observed in a tree together with the length of
// the edge that induced it.
type SplitRecord struct {
	Split  Split
	Length float64
}

// Set of canonical splits extracted from one tree, keyed for O(1) lookup.
type SplitSet map[CladeKey]SplitRecord

func (ss SplitSet) Has(s Split) bool {
	_, ok := ss[s.Key()]
	return ok
}

// Emits the canonicalized bipartition for every internal edge (one per
// non-root node, post-order), optionally including pendant edges. Trees with
// fewer than three leaves have no bipartitions at all and are rejected.
func (td *TreeData) Splits(withPendant bool) (SplitSet, error) {
	if td.NLeaves < 3 {
		return nil, fmt.Errorf("%w: %d leaves < 3 required for bipartitions", ErrDegenerate, td.NLeaves)
	}
	splits := make(SplitSet)
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if e == nil { // root
			return true
		}
		if cur.Tip() && !withPendant {
			return true
		}
		s := NewSplit(td.CladeOf(cur.Id()))
		splits[s.Key()] = SplitRecord{Split: s, Length: e.Length()}
		return true
	})
	return splits, nil
}
