package align

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/hred-go/hred/vocab"

	"github.com/rs/zerolog"
)

// ErrZeroFrequency is returned when coverage ratios are requested for a
// vocabulary whose frequencies sum to zero.
var ErrZeroFrequency = errors.New("total vocabulary frequency is zero")

// LeftOut records a token that received a random row.
type LeftOut struct {
	Token string
	ID    int
	Freq  int64
}

// Stats aggregates resolution outcomes over a vocabulary.
type Stats struct {
	VocabSize   int
	Found       int
	TotalFreq   int64
	LeftOutFreq int64
	MarkerFreq  int64
	LeftOut     []LeftOut
	ByStrategy  map[string]int
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{ByStrategy: make(map[string]int)}
}

// Observe folds one resolution into the statistics. Entries must be
// observed in id order for LeftOut to be ordered.
func (s *Stats) Observe(e vocab.Entry, res Resolution) {
	s.VocabSize++
	s.TotalFreq += e.Freq
	if res.Marker {
		s.MarkerFreq += e.Freq
	}
	if res.Resolved() {
		s.Found++
		s.ByStrategy[res.Strategy]++
		return
	}
	s.LeftOutFreq += e.Freq
	s.LeftOut = append(s.LeftOut, LeftOut{Token: e.Token, ID: e.ID, Freq: e.Freq})
}

// UniqueLeftOut is the number of vocabulary entries without a vector.
func (s *Stats) UniqueLeftOut() int { return s.VocabSize - s.Found }

// LeftOutRatio is the share of corpus terms that map to random rows.
func (s *Stats) LeftOutRatio() (float64, error) {
	if s.TotalFreq == 0 {
		return 0, ErrZeroFrequency
	}
	return float64(s.LeftOutFreq) / float64(s.TotalFreq), nil
}

// MarkerRatio is the share of corpus terms that are non-lexical markers.
func (s *Stats) MarkerRatio() (float64, error) {
	if s.TotalFreq == 0 {
		return 0, ErrZeroFrequency
	}
	return float64(s.MarkerFreq) / float64(s.TotalFreq), nil
}

// LeftOutTokens returns the left-out tokens in id order.
func (s *Stats) LeftOutTokens() []string {
	out := make([]string, len(s.LeftOut))
	for i, l := range s.LeftOut {
		out[i] = l.Token
	}
	return out
}

// Report logs the coverage summary.
func (s *Stats) Report(logger zerolog.Logger) error {
	leftOutRatio, err := s.LeftOutRatio()
	if err != nil {
		return fmt.Errorf("cannot report coverage: %w", err)
	}
	markerRatio, err := s.MarkerRatio()
	if err != nil {
		return fmt.Errorf("cannot report coverage: %w", err)
	}

	strategies := zerolog.Dict()
	for name, n := range s.ByStrategy {
		strategies.Int(name, n)
	}
	logger.Info().
		Int("unique_found", s.Found).
		Int("unique_left_out", s.UniqueLeftOut()).
		Int64("terms", s.TotalFreq).
		Int64("terms_left_out", s.LeftOutFreq).
		Float64("terms_left_out_ratio", leftOutRatio).
		Int64("non_word_terms", s.MarkerFreq).
		Float64("non_word_terms_ratio", markerRatio).
		Dict("by_strategy", strategies).
		Msg("Vocabulary coverage")
	logger.Info().Strs("tokens", s.LeftOutTokens()).Msg("Unique words left out")
	return nil
}
