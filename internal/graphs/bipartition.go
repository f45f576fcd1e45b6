package graphs

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Comparable key derived from a clade's bitset; usable as a map key so set
// membership and frequency tables are O(1) per lookup.
type CladeKey string

// Leaf-descendant set of an internal node, represented as a bitset over the
// taxon universe. The rooted view of a bipartition: two clades are compared
// by containment, not orientation.
type Clade struct {
	taxa *bitset.BitSet
	n    uint
}

// Wraps a bitset as a clade. The bitset must have been created with length n
// and is owned by the clade afterwards.
func NewClade(taxa *bitset.BitSet, n uint) Clade {
	if taxa.Count() == 0 {
		panic("empty clade")
	}
	return Clade{taxa: taxa, n: n}
}

// Clade containing every taxon in the universe (the trivial split).
func FullClade(n uint) Clade {
	b := bitset.New(n)
	for i := uint(0); i < n; i++ {
		b.Set(i)
	}
	return Clade{taxa: b, n: n}
}

// Clade containing exactly one taxon (a tip).
func SingletonClade(taxon, n uint) Clade {
	b := bitset.New(n)
	b.Set(taxon)
	return Clade{taxa: b, n: n}
}

func (c Clade) Size() uint {
	return c.taxa.Count()
}

func (c Clade) NTaxa() uint {
	return c.n
}

func (c Clade) IsFull() bool {
	return c.taxa.Count() == c.n
}

func (c Clade) Contains(taxon uint) bool {
	return c.taxa.Test(taxon)
}

func (c Clade) SubsetOf(o Clade) bool {
	return o.taxa.IsSuperSet(c.taxa)
}

func (c Clade) Disjoint(o Clade) bool {
	return c.taxa.IntersectionCardinality(o.taxa) == 0
}

// True if the two clades overlap without either containing the other. Two
// retained consensus clades must never conflict; for candidates this is the
// filter predicate.
func (c Clade) Conflicts(o Clade) bool {
	return !c.Disjoint(o) && !c.SubsetOf(o) && !o.SubsetOf(c)
}

func (c Clade) Key() CladeKey {
	words := c.taxa.Bytes()
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	return CladeKey(buf)
}

// Deterministic total order used as a tie-break when counts are equal:
// lexicographic on taxon indices, smaller set first on a shared prefix.
func (c Clade) Compare(o Clade) int {
	i, iok := c.taxa.NextSet(0)
	j, jok := o.taxa.NextSet(0)
	for iok && jok {
		if i != j {
			if i < j {
				return -1
			}
			return 1
		}
		i, iok = c.taxa.NextSet(i + 1)
		j, jok = o.taxa.NextSet(j + 1)
	}
	switch {
	case iok:
		return 1
	case jok:
		return -1
	default:
		return 0
	}
}

// Returns clade labels as a string for printing/testing.
func (c Clade) String(ts *TaxonSet) string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for i, ok := c.taxa.NextSet(0); ok; i, ok = c.taxa.NextSet(i + 1) {
		if !first {
			sb.WriteByte(',')
		}
		sb.WriteString(ts.Name(int(i)))
		first = false
	}
	sb.WriteByte('}')
	return sb.String()
}

// Unordered bipartition of the taxon universe induced by one edge. The
// canonical stored side is the one NOT containing taxon 0, so equality and
// hashing are independent of which side of the edge a traversal saw first.
// This canonicalization is defined once, here, and shared by the distance
// engine, the consensus builder, and the feature mapper.
type Split struct {
	side Clade
}

// Canonicalizes a clade into a split. The full clade does not induce a
// bipartition (one side would be empty) and panics; callers skip root edges.
func NewSplit(c Clade) Split {
	if c.IsFull() {
		panic("full leaf set does not define a bipartition")
	}
	if c.Contains(0) {
		comp := c.taxa.Clone()
		comp.InPlaceSymmetricDifference(FullClade(c.n).taxa)
		return Split{side: Clade{taxa: comp, n: c.n}}
	}
	return Split{side: c}
}

// Sizes of the two sides of the bipartition (stored side first).
func (s Split) Sizes() (uint, uint) {
	a := s.side.Size()
	return a, s.side.n - a
}

// Pendant splits separate a single leaf from the rest; they occur in every
// tree on the same universe and so never discriminate between topologies.
func (s Split) IsPendant() bool {
	a, b := s.Sizes()
	return min(a, b) == 1
}

func (s Split) Key() CladeKey {
	return s.side.Key()
}

func (s Split) String(ts *TaxonSet) string {
	comp := s.side.taxa.Clone()
	comp.InPlaceSymmetricDifference(FullClade(s.side.n).taxa)
	return fmt.Sprintf("%s|%s", s.side.String(ts), Clade{taxa: comp, n: s.side.n}.String(ts))
}
