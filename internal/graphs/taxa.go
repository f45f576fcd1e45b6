// Package containing the value types sartre decomposes trees into: taxon
// universes, clades, bipartitions (splits), and quartets. All components share
// the canonical representations defined here.
package graphs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/evolbioinfo/gotree/tree"
)

var (
	ErrMulTree        = errors.New("contains duplicate labels")
	ErrTipMismatch    = errors.New("tip sets do not match")
	ErrUnrooted       = errors.New("not rooted")
	ErrDegenerate     = errors.New("degenerate tree")
	ErrNotUltrametric = errors.New("not ultrametric")
)

// Fixed universe of leaf labels shared by every tree in an analysis. Taxon
// indices are assigned in sorted name order so they do not depend on any
// particular tree's traversal or tip index assignment.
type TaxonSet struct {
	names []string
	index map[string]int
}

// Builds the taxon universe from a reference tree (by convention the first
// tree of a collection, or the comparison target).
func NewTaxonSet(tre *tree.Tree) (*TaxonSet, error) {
	if err := tre.UpdateTipIndex(); err != nil {
		return nil, fmt.Errorf("reference tree %w", ErrMulTree)
	}
	names := tre.AllTipNames()
	slices.Sort(names)
	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, ok := index[name]; ok {
			return nil, fmt.Errorf("reference tree %w (label %q)", ErrMulTree, name)
		}
		index[name] = i
	}
	return &TaxonSet{names: names, index: index}, nil
}

func (ts *TaxonSet) Len() int {
	return len(ts.names)
}

// Name of taxon i; panics on an out of range index since indices only come
// from this set.
func (ts *TaxonSet) Name(i int) string {
	return ts.names[i]
}

// Index of a leaf label, or -1 if the label is not in the universe.
func (ts *TaxonSet) Index(name string) int {
	if i, ok := ts.index[name]; ok {
		return i
	}
	return -1
}

// Two universes are equal if they contain exactly the same labels.
func (ts *TaxonSet) Equal(o *TaxonSet) bool {
	return slices.Equal(ts.names, o.names)
}

// Checks that tre has exactly the same leaf labels as the universe. Every
// operation in sartre requires identical tip sets; there is no partial
// overlap tolerance.
func (ts *TaxonSet) MatchTree(tre *tree.Tree) error {
	if err := tre.UpdateTipIndex(); err != nil {
		return fmt.Errorf("tree %w", ErrMulTree)
	}
	names := tre.AllTipNames()
	if len(names) != len(ts.names) {
		return fmt.Errorf("%w: %d leaves, expected %d", ErrTipMismatch, len(names), len(ts.names))
	}
	for _, name := range names {
		if _, ok := ts.index[name]; !ok {
			return fmt.Errorf("%w: unexpected label %q", ErrTipMismatch, name)
		}
	}
	return nil
}
