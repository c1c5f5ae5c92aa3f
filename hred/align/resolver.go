package align

import (
	"github.com/ZanzyTHEbar/hred-go/hred/spelling"

	"github.com/rs/zerolog"
)

// Lookup is the read side of a pretrained embedding table.
type Lookup interface {
	Lookup(word string) ([]float32, bool)
}

// Resolution is the outcome of resolving one vocabulary token.
type Resolution struct {
	Token string
	// Matched is the table key that supplied the vector.
	Matched string
	// Strategy names the winning strategy; empty when left out.
	Strategy string
	Vector   []float32
	// Marker is set for non-lexical marker tokens.
	Marker bool
}

// Resolved reports whether a pretrained vector was found.
func (r Resolution) Resolved() bool { return r.Strategy != "" }

// Options configures a Resolver.
type Options struct {
	Markers                  []string
	ApplySpellingCorrections bool
	Suggester                spelling.Suggester
	MaxSuggestions           int
	Logger                   zerolog.Logger
}

// Resolver maps vocabulary tokens onto pretrained vectors. It only reads
// its table and suggester, so one Resolver may serve concurrent callers.
type Resolver struct {
	table      Lookup
	markers    map[string]struct{}
	strategies []Strategy
	log        zerolog.Logger
}

// NewResolver builds the default strategy chain. Correction strategies are
// dropped unless opts.ApplySpellingCorrections is set.
func NewResolver(table Lookup, opts Options) *Resolver {
	maxSuggestions := opts.MaxSuggestions
	if maxSuggestions <= 0 {
		maxSuggestions = 10
	}
	var chain []Strategy
	for _, s := range DefaultStrategies(opts.Suggester, maxSuggestions) {
		if s.Correction && !opts.ApplySpellingCorrections {
			continue
		}
		chain = append(chain, s)
	}
	return NewResolverWithStrategies(table, opts.Markers, chain, opts.Logger)
}

// NewResolverWithStrategies builds a resolver over an explicit chain.
func NewResolverWithStrategies(table Lookup, markers []string, chain []Strategy, logger zerolog.Logger) *Resolver {
	set := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		set[m] = struct{}{}
	}
	return &Resolver{
		table:      table,
		markers:    set,
		strategies: chain,
		log:        logger,
	}
}

// Strategies returns the active chain names in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// IsMarker reports whether token is a non-lexical marker.
func (r *Resolver) IsMarker(token string) bool {
	_, ok := r.markers[token]
	return ok
}

// Resolve runs the chain for token and stops at the first candidate found
// in the table. Markers are always left out.
func (r *Resolver) Resolve(token string) Resolution {
	res := Resolution{Token: token}
	if r.IsMarker(token) {
		res.Marker = true
		return res
	}
	for _, s := range r.strategies {
		for _, candidate := range s.Candidates(token) {
			vec, ok := r.table.Lookup(candidate)
			if !ok {
				continue
			}
			res.Matched = candidate
			res.Strategy = s.Name
			res.Vector = vec
			switch s.Name {
			case StrategySpelling:
				r.log.Info().Str("token", token).Str("correction", candidate).Msg("Correcting token")
			case StrategyExact:
			default:
				r.log.Debug().Str("token", token).Str("assumed", candidate).Str("strategy", s.Name).Msg("Assuming token")
			}
			return res
		}
	}
	return res
}
