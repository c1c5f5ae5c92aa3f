// Package align resolves vocabulary tokens against a pretrained embedding
// table through an ordered chain of string-transform strategies.
package align

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/hred-go/hred/spelling"
)

// DefaultMarkers are structural tokens of the dialogue corpus. They are
// never looked up in the pretrained table.
var DefaultMarkers = []string{
	"<s>", "</s>", "<t>", "</t>", "<unk>", ".", ",", "``", "''", "[", "]", "`",
	"-", "--", "'", "<pause>", "<first_speaker>", "<second_speaker>",
	"<third_speaker>", "<minor_speaker>", "<voice_over>", "<off_screen>", "</d>",
}

// Strategy names, in resolution order.
const (
	StrategyExact       = "exact"
	StrategyPunctuation = "strip-punctuation"
	StrategyTitle       = "title-case"
	StrategyUpper       = "upper-case"
	StrategyDehyphen    = "dehyphen"
	StrategySubword     = "hyphen-subword"
	StrategySpelling    = "spelling"
)

// Strategy generates lookup candidates for a token. Candidates are tried in
// order and the first one present in the table wins.
type Strategy struct {
	Name string
	// Correction strategies only run when spelling corrections are enabled.
	Correction bool
	Candidates func(token string) []string
}

func exactStrategy() Strategy {
	return Strategy{Name: StrategyExact, Candidates: func(token string) []string {
		return []string{token}
	}}
}

// stripPunctuationStrategy drops one trailing punctuation rune from tokens
// longer than three bytes; short tokens such as "mr." or "..." are left
// alone.
func stripPunctuationStrategy() Strategy {
	return Strategy{Name: StrategyPunctuation, Candidates: func(token string) []string {
		if len(token) <= 3 {
			return nil
		}
		r, size := utf8.DecodeLastRuneInString(token)
		if !unicode.IsPunct(r) {
			return nil
		}
		return []string{token[:len(token)-size]}
	}}
}

func titleStrategy() Strategy {
	return Strategy{Name: StrategyTitle, Candidates: func(token string) []string {
		return []string{Title(token)}
	}}
}

func upperStrategy() Strategy {
	return Strategy{Name: StrategyUpper, Candidates: func(token string) []string {
		return []string{strings.ToUpper(token)}
	}}
}

func dehyphenStrategy() Strategy {
	return Strategy{Name: StrategyDehyphen, Correction: true, Candidates: func(token string) []string {
		if !strings.Contains(token, "-") {
			return nil
		}
		return []string{strings.ReplaceAll(token, "-", "")}
	}}
}

func subwordStrategy() Strategy {
	return Strategy{Name: StrategySubword, Correction: true, Candidates: func(token string) []string {
		if !strings.Contains(token, "-") {
			return nil
		}
		var out []string
		for _, part := range strings.Split(token, "-") {
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	}}
}

// spellingStrategy keeps only suggestions the token can be reached from in
// at most two insert/replace/transpose edits.
func spellingStrategy(s spelling.Suggester, max int) Strategy {
	return Strategy{Name: StrategySpelling, Correction: true, Candidates: func(token string) []string {
		if s == nil {
			return nil
		}
		var out []string
		for _, suggestion := range s.Suggest(token, max) {
			if spelling.WithinTwoEdits(suggestion, token) {
				out = append(out, suggestion)
			}
		}
		return out
	}}
}

// DefaultStrategies returns the resolution chain in priority order.
func DefaultStrategies(s spelling.Suggester, maxSuggestions int) []Strategy {
	return []Strategy{
		exactStrategy(),
		stripPunctuationStrategy(),
		titleStrategy(),
		upperStrategy(),
		dehyphenStrategy(),
		subwordStrategy(),
		spellingStrategy(s, maxSuggestions),
	}
}

// Title upper-cases every letter that follows a non-letter and lower-cases
// the rest, so "new-york" becomes "New-York" and "it's" becomes "It'S".
func Title(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
