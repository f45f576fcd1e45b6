// Package implementing distances between phylogenetic trees over their
// bipartition and quartet decompositions.
package dist

import (
	"fmt"
	"sync"

	"github.com/evolbioinfo/gotree/tree"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

// Distance method identifiers. Strings exist only at the flag-parsing
// boundary; the library dispatches on this enum and exposes each metric as a
// separately named function as well.
type Method int

const (
	RobinsonFoulds Method = iota
	InfoRobinsonFoulds
	QuartetJaccardMethod
	QuartetCoverageMethod
)

var ParseMethod = map[string]Method{
	"rf":  RobinsonFoulds,
	"rfi": InfoRobinsonFoulds,
	"qj":  QuartetJaccardMethod,
	"qc":  QuartetCoverageMethod,
}

func (m *Method) Set(s string) error {
	if method, ok := ParseMethod[s]; ok {
		*m = method
		return nil
	}
	return fmt.Errorf("%q is not a valid distance method", s)
}

func (m Method) String() string {
	for s, method := range ParseMethod {
		if method == m {
			return s
		}
	}
	panic(fmt.Sprintf("method (%d) does not exist", int(m)))
}

func (m Method) needsQuartets() bool {
	return m == QuartetJaccardMethod || m == QuartetCoverageMethod
}

// Normalization mode for the information-corrected distance: which of the two
// trees' total split information the distance is divided by.
type NormMode int

const (
	NormSum NormMode = iota // sum of both trees' totals (default)
	NormMin
	NormMax
	NormAvg
)

var ParseNorm = map[string]NormMode{
	"sum": NormSum,
	"min": NormMin,
	"max": NormMax,
	"avg": NormAvg,
}

func (n *NormMode) Set(s string) error {
	if mode, ok := ParseNorm[s]; ok {
		*n = mode
		return nil
	}
	return fmt.Errorf("%q is not a valid normalization mode", s)
}

func (n NormMode) String() string {
	for s, mode := range ParseNorm {
		if mode == n {
			return s
		}
	}
	panic(fmt.Sprintf("normalization mode (%d) does not exist", int(n)))
}

type Options struct {
	Normalize bool     // divide by the method's normalization constant
	Norm      NormMode // rfi normalization mode (ignored by other methods)
}

// One tree's reusable decomposition. Splits are extracted eagerly; the
// quartet set is built on first use (it is only needed by the quartet
// metrics, and is by far the more expensive set).
type Profile struct {
	Taxa   *gr.TaxonSet
	Splits gr.SplitSet

	tre      *tree.Tree
	qOnce    sync.Once
	quartets gr.QuartetSet
	qErr     error
}

// Decomposes a tree against a fixed taxon universe. The tree is read, never
// mutated; the profile stays valid as long as the tree is not edited.
func NewProfile(tre *tree.Tree, ts *gr.TaxonSet) (*Profile, error) {
	td, err := gr.MakeTreeData(tre, ts)
	if err != nil {
		return nil, err
	}
	splits, err := td.Splits(false)
	if err != nil {
		return nil, err
	}
	return &Profile{Taxa: ts, Splits: splits, tre: tre}, nil
}

// Induced quartet set, built once and cached. Safe for concurrent use.
func (p *Profile) Quartets() (gr.QuartetSet, error) {
	p.qOnce.Do(func() {
		p.quartets, p.qErr = gr.Quartets(p.tre, p.Taxa)
	})
	return p.quartets, p.qErr
}

func sameUniverse(a, b *Profile) error {
	if a.Taxa != b.Taxa && !a.Taxa.Equal(b.Taxa) {
		return fmt.Errorf("profiles %w", gr.ErrTipMismatch)
	}
	return nil
}

// Robinson-Foulds distance: size of the symmetric difference of the two
// non-pendant split sets. Normalized form divides by the total number of
// non-pendant splits in both trees and lies in [0,1].
func RF(a, b *Profile, normalize bool) (float64, error) {
	if err := sameUniverse(a, b); err != nil {
		return 0, err
	}
	sym := 0
	for k := range a.Splits {
		if _, ok := b.Splits[k]; !ok {
			sym++
		}
	}
	for k := range b.Splits {
		if _, ok := a.Splits[k]; !ok {
			sym++
		}
	}
	if !normalize {
		return float64(sym), nil
	}
	total := len(a.Splits) + len(b.Splits)
	if total == 0 { // two star trees; identical by definition
		return 0, nil
	}
	return float64(sym) / float64(total), nil
}

// Information-corrected Robinson-Foulds distance: total split information of
// the union of the two split sets minus that of their intersection, so
// disagreement on rare splits costs more bits than disagreement on common
// ones. Normalization divides by a combination of the two trees' total
// information selected by norm.
func RFInfo(a, b *Profile, normalize bool, norm NormMode) (float64, error) {
	if err := sameUniverse(a, b); err != nil {
		return 0, err
	}
	si := splitInfoFor(a.Taxa.Len())
	var unionSum, interSum, totalA, totalB float64
	for k, rec := range a.Splits {
		h := si.h(rec.Split.Sizes())
		totalA += h
		unionSum += h
		if _, ok := b.Splits[k]; ok {
			interSum += h
		}
	}
	for k, rec := range b.Splits {
		h := si.h(rec.Split.Sizes())
		totalB += h
		if _, ok := a.Splits[k]; !ok {
			unionSum += h
		}
	}
	d := unionSum - interSum
	if !normalize {
		return d, nil
	}
	var denom float64
	switch norm {
	case NormSum:
		denom = totalA + totalB
	case NormMin:
		denom = min(totalA, totalB)
	case NormMax:
		denom = max(totalA, totalB)
	case NormAvg:
		denom = (totalA + totalB) / 2
	default:
		panic(fmt.Sprintf("invalid normalization mode (%d)", int(norm)))
	}
	if denom == 0 {
		return 0, nil
	}
	return d / denom, nil
}

// Symmetric quartet overlap |A∩B| / |A∪B| between the two induced quartet
// sets; 1 for identical trees. Two star trees induce no quartets at all and
// count as identical (overlap 1), the similarity convention also used for the
// matrix diagonal.
func QuartetJaccard(a, b *Profile) (float64, error) {
	if err := sameUniverse(a, b); err != nil {
		return 0, err
	}
	qa, qb, err := quartetPair(a, b)
	if err != nil {
		return 0, err
	}
	inter := intersectionSize(qa, qb)
	union := len(qa) + len(qb) - inter
	if union == 0 {
		return 1, nil
	}
	return float64(inter) / float64(union), nil
}

// Asymmetric quartet coverage |A∩B| / |A|: the fraction of a's quartets also
// induced by b. Equals 1 exactly when a's quartet set is a subset of b's; the
// empty set is a subset of everything, so a star tree is fully covered.
func QuartetCoverage(a, b *Profile) (float64, error) {
	if err := sameUniverse(a, b); err != nil {
		return 0, err
	}
	qa, qb, err := quartetPair(a, b)
	if err != nil {
		return 0, err
	}
	if len(qa) == 0 {
		return 1, nil
	}
	return float64(intersectionSize(qa, qb)) / float64(len(qa)), nil
}

func quartetPair(a, b *Profile) (gr.QuartetSet, gr.QuartetSet, error) {
	qa, err := a.Quartets()
	if err != nil {
		return nil, nil, err
	}
	qb, err := b.Quartets()
	if err != nil {
		return nil, nil, err
	}
	return qa, qb, nil
}

func intersectionSize(qa, qb gr.QuartetSet) int {
	if len(qb) < len(qa) {
		qa, qb = qb, qa
	}
	inter := 0
	for q := range qa {
		if _, ok := qb[q]; ok {
			inter++
		}
	}
	return inter
}

// Dispatches to the metric selected by m.
func Distance(a, b *Profile, m Method, opts Options) (float64, error) {
	switch m {
	case RobinsonFoulds:
		return RF(a, b, opts.Normalize)
	case InfoRobinsonFoulds:
		return RFInfo(a, b, opts.Normalize, opts.Norm)
	case QuartetJaccardMethod:
		return QuartetJaccard(a, b)
	case QuartetCoverageMethod:
		return QuartetCoverage(a, b)
	default:
		panic(fmt.Sprintf("invalid method (%d)", int(m)))
	}
}

// Compares two trees directly; the first tree defines the taxon universe.
// Use profiles directly when comparing many pairs, so each tree is
// decomposed only once.
func CompareTrees(t1, t2 *tree.Tree, m Method, opts Options) (float64, error) {
	ts, err := gr.NewTaxonSet(t1)
	if err != nil {
		return 0, err
	}
	p1, err := NewProfile(t1, ts)
	if err != nil {
		return 0, err
	}
	p2, err := NewProfile(t2, ts)
	if err != nil {
		return 0, err
	}
	return Distance(p1, p2, m, opts)
}
