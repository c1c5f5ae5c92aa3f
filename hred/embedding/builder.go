package embedding

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ZanzyTHEbar/hred-go/hred/align"
	"github.com/ZanzyTHEbar/hred-go/hred/vocab"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// resolveChunk is the number of tokens one pool task resolves.
const resolveChunk = 512

// Options configures a Builder.
type Options struct {
	EmbDim int
	StdDev float64
	Seed   int64
	// Workers bounds concurrent token resolution; <= 0 uses all CPUs.
	Workers int
	Logger  zerolog.Logger
}

// Result is a built matrix plus the resolution record behind it.
type Result struct {
	Matrix      *Matrix
	Stats       *align.Stats
	Resolutions []align.Resolution
}

// Builder turns a vocabulary and a resolver over a pretrained table into an
// embedding matrix.
type Builder struct {
	resolver *align.Resolver
	opts     Options
	log      zerolog.Logger
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(resolver *align.Resolver, opts Options) (*Builder, error) {
	if resolver == nil {
		return nil, fmt.Errorf("invalid input: resolver cannot be nil")
	}
	if opts.EmbDim <= 0 {
		return nil, fmt.Errorf("%w: target %d", ErrDimensionMismatch, opts.EmbDim)
	}
	if opts.StdDev <= 0 {
		return nil, fmt.Errorf("invalid standard deviation %g", opts.StdDev)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Builder{resolver: resolver, opts: opts, log: opts.Logger}, nil
}

// Build resolves every vocabulary token, reduces and normalises the
// resolved rows, fills the rest from the seeded generator and returns the
// matrix with its mask. rawDim is the pretrained dimensionality.
func (b *Builder) Build(ctx context.Context, v *vocab.Vocabulary, rawDim int) (*Result, error) {
	if err := CheckDimensions(rawDim, b.opts.EmbDim); err != nil {
		return nil, err
	}

	resolutions, err := b.resolveAll(ctx, v.Entries())
	if err != nil {
		return nil, err
	}

	stats := align.NewStats()
	for _, e := range v.Entries() {
		stats.Observe(e, resolutions[e.ID])
	}
	if err := stats.Report(b.log); err != nil {
		return nil, err
	}
	if stats.Found == 0 {
		return nil, ErrNoResolvedRows
	}

	found := make([]int, 0, stats.Found)
	raw := mat.NewDense(stats.Found, rawDim, nil)
	row := make([]float64, rawDim)
	for id, res := range resolutions {
		if !res.Resolved() {
			continue
		}
		if len(res.Vector) != rawDim {
			return nil, fmt.Errorf("%w: %q has %d dims, want %d", ErrDimensionMismatch, res.Matched, len(res.Vector), rawDim)
		}
		for j, x := range res.Vector {
			row[j] = float64(x)
		}
		raw.SetRow(len(found), row)
		found = append(found, id)
	}

	if rawDim > b.opts.EmbDim {
		b.log.Info().Int("from", rawDim).Int("to", b.opts.EmbDim).Int("rows", len(found)).Msg("Reducing dimensionality with PCA")
	}
	reduced, err := Reduce(raw, b.opts.EmbDim)
	if err != nil {
		return nil, err
	}
	Standardize(reduced, b.opts.StdDev)

	weights := mat.NewDense(v.Len(), b.opts.EmbDim, nil)
	for k, id := range found {
		weights.SetRow(id, reduced.RawRowView(k))
	}

	leftOut := roaring.New()
	for _, l := range stats.LeftOut {
		leftOut.Add(uint32(l.ID))
	}
	if n := int(leftOut.GetCardinality()); n > 0 {
		random := RandomRows(n, b.opts.EmbDim, b.opts.StdDev, b.opts.Seed)
		i := 0
		it := leftOut.Iterator()
		for it.HasNext() {
			weights.SetRow(int(it.Next()), random.RawRowView(i))
			i++
		}
	}

	return &Result{
		Matrix:      &Matrix{Weights: weights, NonPretrained: leftOut},
		Stats:       stats,
		Resolutions: resolutions,
	}, nil
}

// resolveAll fans token resolution out over a bounded pool. Each task owns
// a disjoint slice of the result, so the outcome is independent of
// scheduling.
func (b *Builder) resolveAll(ctx context.Context, entries []vocab.Entry) ([]align.Resolution, error) {
	out := make([]align.Resolution, len(entries))
	p := pool.New().WithMaxGoroutines(b.opts.Workers).WithContext(ctx).WithCancelOnError()
	for start := 0; start < len(entries); start += resolveChunk {
		end := min(start+resolveChunk, len(entries))
		p.Go(func(ctx context.Context) error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = b.resolver.Resolve(entries[i].Token)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("token resolution interrupted: %w", err)
	}
	return out, nil
}
