// Package implementing majority-rule consensus trees over tree collections.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

var ErrEmptyCollection = errors.New("empty tree collection")

// One clade's accumulated statistics across a tree collection.
type CladeEntry struct {
	Clade   gr.Clade
	Count   int       // trees containing the clade
	Freq    float64   // Count / ntrees
	Lengths []float64 // observed parent-edge lengths
}

// Clade frequency table for a tree collection on a fixed taxon universe.
type CladeTable struct {
	Taxa       *gr.TaxonSet
	NTrees     int
	Entries    []*CladeEntry // descending count; deterministic tie-break
	TipLengths [][]float64   // pendant edge lengths per taxon index
}

// Single pass over the collection accumulating, for every internal clade,
// its occurrence count and observed parent-edge lengths, plus pendant edge
// lengths per tip. The first tree defines the taxon universe; every tree
// must be rooted and share it exactly. The trivial all-leaves clade is
// force-inserted with count = ntrees. Entries come out sorted by descending
// count, ties broken by canonical clade order so output is reproducible.
func CladeFrequencies(trees []*tree.Tree, nprocs int) (*CladeTable, error) {
	if len(trees) == 0 {
		return nil, ErrEmptyCollection
	}
	ts, err := gr.NewTaxonSet(trees[0])
	if err != nil {
		return nil, err
	}
	entries := make(map[gr.CladeKey]*CladeEntry)
	tipLengths := make([][]float64, ts.Len())
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i, tre := range trees {
		i, tre := i, tre
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !tre.Rooted() {
				return fmt.Errorf("tree %d is %w", i+1, gr.ErrUnrooted)
			}
			td, err := gr.MakeTreeData(tre, ts)
			if err != nil {
				return fmt.Errorf("tree %d: %w", i+1, err)
			}
			clades, tips := collectClades(td, ts)
			mu.Lock()
			defer mu.Unlock()
			for key, rec := range clades {
				entry, ok := entries[key]
				if !ok {
					entry = &CladeEntry{Clade: rec.clade}
					entries[key] = entry
				}
				entry.Count++
				if rec.length != tree.NIL_LENGTH {
					entry.Lengths = append(entry.Lengths, rec.length)
				}
			}
			for taxon, l := range tips {
				if l != tree.NIL_LENGTH {
					tipLengths[taxon] = append(tipLengths[taxon], l)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	full := gr.FullClade(uint(ts.Len()))
	entries[full.Key()] = &CladeEntry{Clade: full, Count: len(trees)}
	table := &CladeTable{
		Taxa:       ts,
		NTrees:     len(trees),
		Entries:    make([]*CladeEntry, 0, len(entries)),
		TipLengths: tipLengths,
	}
	for _, e := range entries {
		e.Freq = float64(e.Count) / float64(len(trees))
		table.Entries = append(table.Entries, e)
	}
	slices.SortFunc(table.Entries, func(a, b *CladeEntry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Clade.Compare(b.Clade)
	})
	return table, nil
}

type cladeRecord struct {
	clade  gr.Clade
	length float64
}

// Collects each internal (non-root, non-tip) node's clade and parent-edge
// length, and each tip's pendant length, from one preprocessed tree. The
// accumulation order does not matter; clades are keyed canonically.
func collectClades(td *gr.TreeData, ts *gr.TaxonSet) (map[gr.CladeKey]cladeRecord, map[int]float64) {
	clades := make(map[gr.CladeKey]cladeRecord)
	tips := make(map[int]float64)
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if e == nil { // root
			return true
		}
		if cur.Tip() {
			tips[ts.Index(cur.Name())] = e.Length()
			return true
		}
		c := td.CladeOf(cur.Id())
		clades[c.Key()] = cladeRecord{clade: c, length: e.Length()}
		return true
	})
	return clades, tips
}

// Greedy filter in descending-frequency order: a candidate is kept only if
// its frequency reaches minFreq and it is nested-in-or-disjoint-from every
// already kept clade. A conflict against a kept clade of strictly
// higher count discards the candidate; a conflict at exactly equal count
// discards BOTH clades, collapsing that region to an unresolved polytomy.
// The tie collapse is an intentional design choice, covered by its own test.
func ConsensusClades(table *CladeTable, minFreq float64) []*CladeEntry {
	kept := make([]*CladeEntry, 0, len(table.Entries))
	for _, cand := range table.Entries {
		if cand.Freq < minFreq {
			continue
		}
		conflicting := kept[:0:0]
		for _, k := range kept {
			if cand.Clade.Conflicts(k.Clade) {
				conflicting = append(conflicting, k)
			}
		}
		switch {
		case len(conflicting) == 0:
			kept = append(kept, cand)
		case allSameCount(conflicting, cand.Count):
			kept = slices.DeleteFunc(kept, func(k *CladeEntry) bool {
				return slices.Contains(conflicting, k)
			})
		}
	}
	return kept
}

func allSameCount(entries []*CladeEntry, count int) bool {
	for _, e := range entries {
		if e.Count != count {
			return false
		}
	}
	return true
}

// Builds the consensus tree for a collection: frequency table, conflict
// filter at minFreq (in [0,1]), tree construction. Returns a newly
// allocated tree; inputs are never mutated.
func Consensus(trees []*tree.Tree, minFreq float64, nprocs int) (*tree.Tree, error) {
	table, err := CladeFrequencies(trees, nprocs)
	if err != nil {
		return nil, err
	}
	return Build(table, ConsensusClades(table, minFreq))
}
