package graphs

import (
	"fmt"
	"strings"

	"github.com/evolbioinfo/gotree/tree"
)

// A quartet packed into a uint64: four 15-bit taxon indices in sorted order
// plus a 4-bit topology mask. Equal quartets (same four taxa, same induced
// pairing) compare equal as integers, so sets of quartets are plain maps.
type Quartet uint64

const (
	NTaxa = 4

	taxaShift = 15
	topoShift = 60

	taxaMask = (1 << taxaShift) - 1
	topoMask = 0xF

	// the three possible quartet topologies after normalization
	Qtopo1 = uint8(0b1100)
	Qtopo2 = uint8(0b1010)
	Qtopo3 = uint8(0b0110)
)

// Set of quartets induced by one tree. Generated once per tree and reused;
// re-deriving quartets is the dominant cost of multi-tree comparisons.
type QuartetSet map[Quartet]struct{}

func makeQuartet(taxa [NTaxa]int16, topology uint8) Quartet {
	var q uint64
	for i, t := range taxa {
		q |= uint64(t) << (taxaShift * i) // taxon indices are always >= 0
	}
	q |= uint64(topology) << topoShift
	return Quartet(q)
}

// Generate uint8 representing quartet topology
func setTopology(taxaIDs *[NTaxa]int16) uint8 {
	topo := sortTaxa(taxaIDs) // sort ids so quartet topologies are equal if they are the same
	if topo%2 != 0 {          // normalize quartet (i.e., so that there are three topologies instead of six)
		topo ^= 0b1111
	}
	if topo != Qtopo1 && topo != Qtopo2 && topo != Qtopo3 {
		panic(fmt.Sprintf("quartet didn't define bipartition properly, probably due to a bug: %b", topo))
	}
	return topo
}

// Sorts the four taxon ids while carrying the topology bits along with the
// swaps; returns the permuted topology as uint8.
func sortTaxa(arr *[NTaxa]int16) uint8 {
	topo := uint8(0b0011)
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 4; j++ {
			if arr[i] > arr[j] {
				bi := topo >> i & 1
				bj := topo >> j & 1
				if bi != bj {
					topo ^= uint8((1 << i) | (1 << j))
				}
				arr[i], arr[j] = arr[j], arr[i]
			}
		}
	}
	return topo
}

// Returns the set of quartets induced by the tree, with taxa expressed in
// universe indices. The input is cloned (quartet enumeration requires an
// unrooted tree, and inputs are never mutated). Trees with fewer than four
// leaves induce no quartets and are rejected.
func Quartets(tre *tree.Tree, ts *TaxonSet) (QuartetSet, error) {
	if ts.Len() < NTaxa {
		return nil, fmt.Errorf("%w: %d leaves < 4 required for quartets", ErrDegenerate, ts.Len())
	}
	if err := ts.MatchTree(tre); err != nil {
		return nil, err
	}
	work := tre.Clone()
	work.UnRoot() // some quartets are missed if tree is rooted
	if err := work.UpdateTipIndex(); err != nil {
		return nil, fmt.Errorf("tree %w", ErrMulTree)
	}
	idMap, err := mapTipsToUniverse(work, ts)
	if err != nil {
		return nil, err
	}
	quartets := make(QuartetSet)
	work.Quartets(false, func(tq *tree.Quartet) {
		taxa := [NTaxa]int16{idMap[tq.T1], idMap[tq.T2], idMap[tq.T3], idMap[tq.T4]}
		quartets[makeQuartet(taxa, setTopology(&taxa))] = struct{}{}
	})
	return quartets, nil
}

// Maps a tree's own tip indices to taxon universe indices.
func mapTipsToUniverse(tre *tree.Tree, ts *TaxonSet) ([]int16, error) {
	nTips, err := tre.NbTips()
	if err != nil {
		return nil, err
	}
	idMap := make([]int16, nTips)
	for _, name := range tre.AllTipNames() {
		treeID, err := tre.TipIndex(name)
		if err != nil {
			return nil, fmt.Errorf("%w, %s", ErrTipMismatch, err.Error())
		}
		uID := ts.Index(name)
		if uID < 0 {
			return nil, fmt.Errorf("%w: unexpected label %q", ErrTipMismatch, name)
		}
		idMap[treeID] = int16(uID)
	}
	return idMap, nil
}

func (q Quartet) Topology() uint8 {
	return uint8((q >> topoShift) & topoMask)
}

func (q Quartet) Taxon(i int) uint16 {
	return uint16((q >> (taxaShift * i)) & taxaMask)
}

// Not efficient, do not use except for testing !!!
func (q Quartet) String(ts *TaxonSet) string {
	var left, right strings.Builder
	for i := 0; i < NTaxa; i++ {
		if (q.Topology()>>i)%2 == 0 {
			right.WriteString(ts.Name(int(q.Taxon(i))))
		} else {
			left.WriteString(ts.Name(int(q.Taxon(i))))
		}
	}
	return left.String() + "|" + right.String()
}
