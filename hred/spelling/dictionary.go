package spelling

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/armon/go-radix"
)

// maxSuggestDistance bounds the optimal-string-alignment distance of
// suggestions returned by Dictionary.Suggest.
const maxSuggestDistance = 2

// Suggester proposes corrections for a misspelled word, best first.
type Suggester interface {
	Suggest(word string, max int) []string
}

// Dictionary is a word list held in a radix tree keyed by word, with a
// frequency per word used to rank suggestions. It is safe for concurrent
// readers once built.
type Dictionary struct {
	tree *radix.Tree
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{tree: radix.New()}
}

// Add inserts word, keeping the larger frequency on repeats.
func (d *Dictionary) Add(word string, freq int64) {
	if word == "" {
		return
	}
	if old, ok := d.tree.Get(word); ok && old.(int64) >= freq {
		return
	}
	d.tree.Insert(word, freq)
}

// Len returns the number of words.
func (d *Dictionary) Len() int { return d.tree.Len() }

// Contains reports whether word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.tree.Get(word)
	return ok
}

// LoadDictionary reads a word list with one "word [frequency]" entry per
// line. Words without a frequency rank by position, earlier lines first.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spelling dictionary %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		lines = append(lines, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spelling dictionary %s: %w", path, err)
	}

	d := NewDictionary()
	for i, fields := range lines {
		freq := int64(len(lines) - i)
		if len(fields) > 1 {
			if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				freq = n
			}
		}
		d.Add(fields[0], freq)
	}
	return d, nil
}

// DictionaryFromWords builds a dictionary from the lowercase alphabetic
// entries of words, ranked by position. Pretrained embedding files are
// ordered by corpus frequency, so position stands in for frequency.
func DictionaryFromWords(words []string) *Dictionary {
	d := NewDictionary()
	for i, w := range words {
		if !isLowerAlpha(w) {
			continue
		}
		d.Add(w, int64(len(words)-i))
	}
	return d
}

type suggestion struct {
	word string
	dist int
	freq int64
}

// Suggest returns up to max dictionary words within two edits of word,
// ordered by distance, then frequency, then lexically. Candidates are
// drawn from the subtrees of the word's first and second letters, which
// covers a typo anywhere except both leading letters at once.
func (d *Dictionary) Suggest(word string, max int) []string {
	lower := strings.ToLower(word)
	if lower == "" || max <= 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var found []suggestion
	visit := func(key string, v interface{}) bool {
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		if key == lower || abs(len(key)-len(lower)) > maxSuggestDistance {
			return false
		}
		if dist := OSADistance(lower, key); dist <= maxSuggestDistance {
			found = append(found, suggestion{word: key, dist: dist, freq: v.(int64)})
		}
		return false
	}

	d.tree.WalkPrefix(lower[:1], visit)
	if len(lower) > 1 && lower[1] != lower[0] {
		d.tree.WalkPrefix(lower[1:2], visit)
	}

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.freq != b.freq {
			return a.freq > b.freq
		}
		return a.word < b.word
	})

	if len(found) > max {
		found = found[:max]
	}
	out := make([]string, len(found))
	for i, s := range found {
		out[i] = s.word
	}
	return out
}

// OSADistance is the optimal string alignment distance (Levenshtein plus
// adjacent transpositions, each substring edited at most once).
func OSADistance(a, b string) int {
	la, lb := len(a), len(b)
	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[lb]
}

func isLowerAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
