package dist

import (
	"context"
	"errors"
	"fmt"

	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/sartre/internal/graphs"
)

var ErrEmptyCollection = errors.New("empty tree collection")

// Pairwise distance table over a tree collection. The first tree defines the
// taxon universe; every tree is decomposed exactly once, then pairs are
// filled row-parallel (pairs are independent, nothing mutates the inputs).
// One malformed tree aborts the whole matrix.
func Matrix(trees []*tree.Tree, m Method, opts Options, nprocs int) ([][]float64, error) {
	if len(trees) == 0 {
		return nil, ErrEmptyCollection
	}
	ts, err := gr.NewTaxonSet(trees[0])
	if err != nil {
		return nil, err
	}
	profiles := make([]*Profile, len(trees))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i, tre := range trees {
		i, tre := i, tre
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := NewProfile(tre, ts)
			if err != nil {
				return fmt.Errorf("tree %d: %w", i+1, err)
			}
			if m.needsQuartets() {
				if _, err := p.Quartets(); err != nil {
					return fmt.Errorf("tree %d: %w", i+1, err)
				}
			}
			profiles[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result := make([][]float64, len(trees))
	g, ctx = errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i := range profiles {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result[i] = make([]float64, len(profiles))
			for j := range profiles {
				if i == j {
					if m == QuartetCoverageMethod || m == QuartetJaccardMethod {
						result[i][j] = 1 // overlap metrics are similarities
					}
					continue
				}
				d, err := Distance(profiles[i], profiles[j], m, opts)
				if err != nil {
					return fmt.Errorf("trees %d vs %d: %w", i+1, j+1, err)
				}
				result[i][j] = d
			}
			return nil
		})
	}
	return result, g.Wait()
}
