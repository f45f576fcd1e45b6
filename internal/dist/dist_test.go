package dist

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

func profiles(t *testing.T, nwks ...string) []*Profile {
	t.Helper()
	ts, err := gr.NewTaxonSet(parseNewick(t, nwks[0]))
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	result := make([]*Profile, len(nwks))
	for i, nwk := range nwks {
		p, err := NewProfile(parseNewick(t, nwk), ts)
		if err != nil {
			t.Fatalf("produced err %+v", err)
		}
		result[i] = p
	}
	return result
}

func TestRF(t *testing.T) {
	testCases := []struct {
		name      string
		t1        string
		t2        string
		normalize bool
		expected  float64
	}{
		{
			name:     "identical",
			t1:       "((a,b),((c,d),e));",
			t2:       "((a,b),((c,d),e));",
			expected: 0,
		},
		{
			name:     "rooted vs unrooted same topology",
			t1:       "((a,b),((c,d),e));",
			t2:       "((a,b),(c,d),e);",
			expected: 0,
		},
		{
			name:     "maximally different",
			t1:       "((a,b),(c,d),e);",
			t2:       "((a,c),(b,d),e);",
			expected: 4,
		},
		{
			name:      "maximally different normalized",
			t1:        "((a,b),(c,d),e);",
			t2:        "((a,c),(b,d),e);",
			normalize: true,
			expected:  1,
		},
		{
			name:     "partial overlap",
			t1:       "((a,b),((c,d),e));",
			t2:       "(((a,b),c),(d,e));",
			expected: 2,
		},
		{
			name:      "partial overlap normalized",
			t1:        "((a,b),((c,d),e));",
			t2:        "(((a,b),c),(d,e));",
			normalize: true,
			expected:  0.5,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			ps := profiles(t, test.t1, test.t2)
			d, err := RF(ps[0], ps[1], test.normalize)
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(d-test.expected) > eps {
				t.Errorf("rf = %v, expected %v", d, test.expected)
			}
			rev, err := RF(ps[1], ps[0], test.normalize)
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(d-rev) > eps {
				t.Errorf("rf is not symmetric: %v vs %v", d, rev)
			}
		})
	}
}

func TestRFTipMismatch(t *testing.T) {
	ts1, err := gr.NewTaxonSet(parseNewick(t, "((a,b),(c,d),e);"))
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	ts2, err := gr.NewTaxonSet(parseNewick(t, "((a,b),(c,f),e);"))
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	p1, err := NewProfile(parseNewick(t, "((a,b),(c,d),e);"), ts1)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	p2, err := NewProfile(parseNewick(t, "((a,b),(c,f),e);"), ts2)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	if _, err := RF(p1, p2, false); !errors.Is(err, gr.ErrTipMismatch) {
		t.Errorf("expected ErrTipMismatch, got %+v", err)
	}
}

func TestSplitInfo(t *testing.T) {
	si := splitInfoFor(8)
	// deeper/balanced splits carry more information than shallow ones
	if si.h(4, 4) <= si.h(2, 6) {
		t.Errorf("h(4,4) = %v should exceed h(2,6) = %v", si.h(4, 4), si.h(2, 6))
	}
	// dbl!(11) = 10395 topologies on 8 leaves; a 4|4 split is compatible
	// with 15*15 of them
	expected := math.Log2(10395) - 2*math.Log2(15)
	if math.Abs(si.h(4, 4)-expected) > 1e-9 {
		t.Errorf("h(4,4) = %v, expected %v", si.h(4, 4), expected)
	}
	if si.h(1, 7) != 0 {
		t.Errorf("singleton-side split should carry no information, got %v", si.h(1, 7))
	}
	if splitInfoFor(2).h(1, 1) != 0 {
		t.Errorf("two-leaf universe should carry no information")
	}
}

func TestRFInfo(t *testing.T) {
	testCases := []struct {
		name      string
		t1        string
		t2        string
		normalize bool
		norm      NormMode
		expected  float64 // -1 means only check > 0
	}{
		{
			name:     "identical",
			t1:       "((a,b),((c,d),e));",
			t2:       "((a,b),((c,d),e));",
			expected: 0,
		},
		{
			name:     "different unnormalized",
			t1:       "((a,b),(c,d),e);",
			t2:       "((a,c),(b,d),e);",
			expected: -1,
		},
		{
			name:      "maximally different normalized sum",
			t1:        "((a,b),(c,d),e);",
			t2:        "((a,c),(b,d),e);",
			normalize: true,
			norm:      NormSum,
			expected:  1, // disjoint split sets: union = everything, intersection empty
		},
		{
			name:      "identical normalized min",
			t1:        "((a,b),((c,d),e));",
			t2:        "((a,b),(c,d),e);",
			normalize: true,
			norm:      NormMin,
			expected:  0,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			ps := profiles(t, test.t1, test.t2)
			d, err := RFInfo(ps[0], ps[1], test.normalize, test.norm)
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if test.expected < 0 {
				if d <= 0 {
					t.Errorf("rfi = %v, expected > 0", d)
				}
			} else if math.Abs(d-test.expected) > eps {
				t.Errorf("rfi = %v, expected %v", d, test.expected)
			}
			rev, err := RFInfo(ps[1], ps[0], test.normalize, test.norm)
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(d-rev) > eps {
				t.Errorf("rfi is not symmetric: %v vs %v", d, rev)
			}
		})
	}
}

func TestQuartetMetrics(t *testing.T) {
	testCases := []struct {
		name     string
		t1       string
		t2       string
		jaccard  float64
		coverage float64
	}{
		{
			name:     "identical",
			t1:       "((a,b),((c,d),e));",
			t2:       "((a,b),((c,d),e));",
			jaccard:  1,
			coverage: 1,
		},
		{
			name:     "disjoint quartets",
			t1:       "((a,b),(c,d));",
			t2:       "((a,c),(b,d));",
			jaccard:  0,
			coverage: 0,
		},
		{
			// t1's quartets are a strict subset of t2's: coverage hits 1
			// while jaccard stays below it
			name:     "subset",
			t1:       "(a,b,(c,d),e);",
			t2:       "((a,b),((c,d),e));",
			jaccard:  3.0 / 5.0,
			coverage: 1,
		},
		{
			// star trees induce no quartets; both overlaps must stay in
			// range and treat the trees as identical
			name:     "two star trees",
			t1:       "(a,b,c,d,e);",
			t2:       "(a,b,c,d,e);",
			jaccard:  1,
			coverage: 1,
		},
		{
			// empty set is covered by anything; jaccard sees no shared quartets
			name:     "star vs resolved",
			t1:       "(a,b,c,d,e);",
			t2:       "((a,b),((c,d),e));",
			jaccard:  0,
			coverage: 1,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			ps := profiles(t, test.t1, test.t2)
			j, err := QuartetJaccard(ps[0], ps[1])
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(j-test.jaccard) > eps {
				t.Errorf("jaccard = %v, expected %v", j, test.jaccard)
			}
			jr, err := QuartetJaccard(ps[1], ps[0])
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(j-jr) > eps {
				t.Errorf("jaccard is not symmetric: %v vs %v", j, jr)
			}
			c, err := QuartetCoverage(ps[0], ps[1])
			if err != nil {
				t.Fatalf("produced err %+v", err)
			}
			if math.Abs(c-test.coverage) > eps {
				t.Errorf("coverage = %v, expected %v", c, test.coverage)
			}
			if c < 0 || c > 1 {
				t.Errorf("coverage %v outside [0,1]", c)
			}
		})
	}
}

func TestCompareTrees(t *testing.T) {
	d, err := CompareTrees(
		parseNewick(t, "((a,b),(c,d),e);"),
		parseNewick(t, "((a,c),(b,d),e);"),
		RobinsonFoulds, Options{Normalize: true},
	)
	if err != nil {
		t.Fatalf("produced err %+v", err)
	}
	if math.Abs(d-1) > eps {
		t.Errorf("normalized rf = %v, expected 1", d)
	}
	if _, err := CompareTrees(
		parseNewick(t, "((a,b),(c,d),e);"),
		parseNewick(t, "((a,b),(c,f),e);"),
		RobinsonFoulds, Options{},
	); !errors.Is(err, gr.ErrTipMismatch) {
		t.Errorf("expected ErrTipMismatch, got %+v", err)
	}
}
