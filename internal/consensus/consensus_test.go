package consensus

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

const eps = 1e-12

func parseNewick(t *testing.T, nwk string) *tree.Tree {
	t.Helper()
	tre, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("invalid newick tree; test is written wrong: %s", err)
	}
	return tre
}

func parseTrees(t *testing.T, nwks ...string) []*tree.Tree {
	t.Helper()
	trees := make([]*tree.Tree, len(nwks))
	for i, nwk := range nwks {
		trees[i] = parseNewick(t, nwk)
	}
	return trees
}

// internal clade string -> parent edge support (resp. length) of a rooted tree
func cladeSupports(t *testing.T, tre *tree.Tree) map[string]float64 {
	t.Helper()
	return cladeValues(t, tre, func(e *tree.Edge) float64 { return e.Support() })
}

func cladeLengths(t *testing.T, tre *tree.Tree) map[string]float64 {
	t.Helper()
	return cladeValues(t, tre, func(e *tree.Edge) float64 { return e.Length() })
}

func cladeValues(t *testing.T, tre *tree.Tree, value func(e *tree.Edge) float64) map[string]float64 {
	t.Helper()
	ts, err := gr.NewTaxonSet(tre)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	td, err := gr.MakeTreeData(tre, ts)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	result := make(map[string]float64)
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) bool {
		if e == nil || cur.Tip() {
			return true
		}
		result[td.CladeOf(cur.Id()).String(ts)] = value(e)
		return true
	})
	return result
}

func TestCladeFrequencies(t *testing.T) {
	trees := parseTrees(t,
		"((a:1,b:1):2,(c:1,d:1):4);",
		"((a:3,b:1):4,(c:1,d:1):4);",
		"((a:1,c:1):1,(b:1,d:1):1);",
	)
	table, err := CladeFrequencies(trees, 2)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	if table.NTrees != 3 {
		t.Errorf("NTrees = %d, expected 3", table.NTrees)
	}
	counts := make(map[string]int)
	lengths := make(map[string][]float64)
	for _, e := range table.Entries {
		s := e.Clade.String(table.Taxa)
		counts[s] = e.Count
		lengths[s] = e.Lengths
	}
	expectedCounts := map[string]int{
		"{a,b,c,d}": 3,
		"{a,b}":     2,
		"{c,d}":     2,
		"{a,c}":     1,
		"{b,d}":     1,
	}
	if len(counts) != len(expectedCounts) {
		t.Errorf("got %d distinct clades %v, expected %d", len(counts), counts, len(expectedCounts))
	}
	for s, c := range expectedCounts {
		if counts[s] != c {
			t.Errorf("count[%s] = %d, expected %d", s, counts[s], c)
		}
	}
	if got := lengths["{a,b}"]; len(got) != 2 || got[0]+got[1] != 6 {
		t.Errorf("lengths[{a,b}] = %v, expected [2 4]", got)
	}
	// entries are sorted by descending count
	for i := 1; i < len(table.Entries); i++ {
		if table.Entries[i].Count > table.Entries[i-1].Count {
			t.Fatalf("entries not sorted by count: %d after %d", table.Entries[i].Count, table.Entries[i-1].Count)
		}
	}
	// tip a saw pendant lengths 1, 3, 1
	if a := table.Taxa.Index("a"); len(table.TipLengths[a]) != 3 {
		t.Errorf("TipLengths[a] = %v, expected three values", table.TipLengths[a])
	}
}

func TestConsensusMajority(t *testing.T) {
	trees := parseTrees(t,
		"((a,b),(c,d));",
		"((a,b),(c,d));",
		"((a,c),(b,d));",
	)
	cons, err := Consensus(trees, 0.5, 1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	supports := cladeSupports(t, cons)
	expected := map[string]float64{"{a,b}": 2.0 / 3.0, "{c,d}": 2.0 / 3.0}
	if len(supports) != len(expected) {
		t.Errorf("got internal clades %v, expected %v", supports, expected)
	}
	for s, freq := range expected {
		if math.Abs(supports[s]-freq) > eps {
			t.Errorf("support[%s] = %v, expected %v", s, supports[s], freq)
		}
	}
}

func TestConsensusCladesTie(t *testing.T) {
	// two trees disagreeing on every internal clade; at minimum frequency 0.5
	// each clade qualifies, but every conflict is an exact tie, so both sides
	// are discarded and the consensus collapses to a star
	trees := parseTrees(t,
		"((a,b),(c,d));",
		"((a,c),(b,d));",
	)
	cons, err := Consensus(trees, 0.5, 1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	if got := len(cladeSupports(t, cons)); got != 0 {
		t.Errorf("expected no internal clades, got %d", got)
	}
	if got := len(cons.Root().Neigh()); got != 4 {
		t.Errorf("expected a star over 4 tips, root has %d children", got)
	}
}

func TestConsensusSingleTree(t *testing.T) {
	// the consensus of one tree is that tree with unit support everywhere
	cons, err := Consensus(parseTrees(t, "((a:1,b:1):2,((c:1,d:1):1,e:1):1);"), 0.5, 1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	supports := cladeSupports(t, cons)
	lengths := cladeLengths(t, cons)
	expected := map[string]float64{"{a,b}": 2, "{c,d}": 1, "{c,d,e}": 1}
	if len(supports) != len(expected) {
		t.Errorf("got internal clades %v, expected %v", supports, expected)
	}
	for s, l := range expected {
		if supports[s] != 1 {
			t.Errorf("support[%s] = %v, expected 1", s, supports[s])
		}
		if math.Abs(lengths[s]-l) > eps {
			t.Errorf("length[%s] = %v, expected %v", s, lengths[s], l)
		}
	}
}

func TestConsensusLengthMeans(t *testing.T) {
	trees := parseTrees(t,
		"((a:1,b:1):2,(c:1,d:1):4);",
		"((a:3,b:1):4,(c:1,d:1):4);",
	)
	cons, err := Consensus(trees, 0.5, 1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	lengths := cladeLengths(t, cons)
	if math.Abs(lengths["{a,b}"]-3) > eps {
		t.Errorf("length[{a,b}] = %v, expected mean 3", lengths["{a,b}"])
	}
	var aLen float64
	cons.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) bool {
		if e != nil && cur.Tip() && cur.Name() == "a" {
			aLen = e.Length()
		}
		return true
	})
	if math.Abs(aLen-2) > eps {
		t.Errorf("tip a length = %v, expected mean 2", aLen)
	}
}

func TestConsensusNodeIds(t *testing.T) {
	// every node of the built tree must carry a valid id, so downstream
	// traversal consumers can index per-node arrays by it
	cons, err := Consensus(parseTrees(t, "((a,b),(c,d));", "((a,b),(c,d));"), 0.5, 1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	for _, n := range cons.Nodes() {
		if n.Id() < 0 {
			t.Errorf("node %q has id %d", n.Name(), n.Id())
		}
	}
}

func TestConsensusErrors(t *testing.T) {
	if _, err := Consensus(nil, 0.5, 1); !errors.Is(err, ErrEmptyCollection) {
		t.Errorf("expected ErrEmptyCollection, got %+v", err)
	}
	unrooted := parseTrees(t, "((a,b),(c,d));", "(a,b,(c,d));")
	if _, err := Consensus(unrooted, 0.5, 1); !errors.Is(err, gr.ErrUnrooted) {
		t.Errorf("expected ErrUnrooted, got %+v", err)
	}
	mismatched := parseTrees(t, "((a,b),(c,d));", "((a,b),(c,e));")
	if _, err := Consensus(mismatched, 0.5, 1); !errors.Is(err, gr.ErrTipMismatch) {
		t.Errorf("expected ErrTipMismatch, got %+v", err)
	}
}
