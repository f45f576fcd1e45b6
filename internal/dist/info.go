package dist

import (
	"math"
	"sync"
)

// Phylogenetic information of a split (A|B) on n leaves, in bits:
//
//	h = -log2( dbl!(2|A|-3) * dbl!(2|B|-3) / dbl!(2n-5) )
//
// dbl!(2k-3) counts the resolved binary topologies on k leaves, so the ratio
// is the fraction of n-leaf topologies containing the split; rarer (deeper,
// more balanced) splits carry more bits. Everything is computed in log2 space
// from a cumulative table of odd factors; raw double factorials overflow for
// realistic leaf counts and are never materialized.
type splitInfo struct {
	n   int
	cum []float64 // cum[k] = sum of log2(j) over odd j <= k
}

func newSplitInfo(n int) *splitInfo {
	m := max(2*n-5, 1)
	cum := make([]float64, m+1)
	run := 0.0
	for k := 1; k <= m; k++ {
		if k%2 == 1 {
			run += math.Log2(float64(k))
		}
		cum[k] = run
	}
	return &splitInfo{n: n, cum: cum}
}

func (si *splitInfo) logDF(k int) float64 {
	if k < 1 {
		return 0 // dbl!(-1) = dbl!(1) = 1
	}
	return si.cum[k]
}

// Information of a split with side sizes a and b (a+b = n). Keyed purely by
// the two sizes, which recur heavily across splits and trees. Splits with a
// singleton side, and universes of two or fewer leaves, carry no information.
func (si *splitInfo) h(a, b uint) float64 {
	if si.n <= 2 || a <= 1 || b <= 1 {
		return 0
	}
	return si.logDF(2*si.n-5) - si.logDF(2*int(a)-3) - si.logDF(2*int(b)-3)
}

// Cache of per-leaf-count tables. Tables are immutable once built, so shared
// reads need no coordination; a race recomputes the same table idempotently.
var infoCache sync.Map

func splitInfoFor(n int) *splitInfo {
	if v, ok := infoCache.Load(n); ok {
		return v.(*splitInfo)
	}
	v, _ := infoCache.LoadOrStore(n, newSplitInfo(n))
	return v.(*splitInfo)
}
