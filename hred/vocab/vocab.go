// Package vocab loads the model vocabulary produced by the dialogue corpus
// preprocessing step: one (token, id, frequency, extra) tuple per entry.
package vocab

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrEmpty       = errors.New("vocabulary is empty")
	ErrDuplicateID = errors.New("duplicate vocabulary id")
	ErrSparseIDs   = errors.New("vocabulary ids are not dense and 0-based")
	ErrMalformed   = errors.New("malformed vocabulary entry")
)

// Entry is a single vocabulary record.
type Entry struct {
	Token string
	ID    int
	Freq  int64
	// Extra is the auxiliary count carried alongside the frequency
	// (document frequency in the corpus preprocessing output).
	Extra int64
}

// Vocabulary holds entries indexed by id.
type Vocabulary struct {
	entries []Entry
	byToken map[string]int
}

// New validates entries and builds a Vocabulary. Ids must be unique and
// cover [0, len(entries)).
func New(entries []Entry) (*Vocabulary, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	ordered := make([]Entry, len(entries))
	seen := make([]bool, len(entries))
	byToken := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.ID < 0 || e.ID >= len(entries) {
			return nil, fmt.Errorf("%w: id %d for %q with %d entries", ErrSparseIDs, e.ID, e.Token, len(entries))
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = true
		ordered[e.ID] = e
		byToken[e.Token] = e.ID
	}
	return &Vocabulary{entries: ordered, byToken: byToken}, nil
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return len(v.entries) }

// Entry returns the entry with the given id.
func (v *Vocabulary) Entry(id int) Entry { return v.entries[id] }

// Entries returns the entries in id order. The slice must not be modified.
func (v *Vocabulary) Entries() []Entry { return v.entries }

// ID looks up a token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.byToken[token]
	return id, ok
}

// TotalFreq sums the corpus frequency of every entry.
func (v *Vocabulary) TotalFreq() int64 {
	var total int64
	for _, e := range v.entries {
		total += e.Freq
	}
	return total
}

// Load reads a vocabulary file. Files ending in .json hold an array of
// [token, id, freq, extra] tuples; anything else is tab-separated text.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		entries, err = decodeJSON(f)
	} else {
		entries, err = decodeTSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary %s: %w", path, err)
	}
	return New(entries)
}

func decodeJSON(f *os.File) ([]Entry, error) {
	var raw [][]json.RawMessage
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for i, tuple := range raw {
		if len(tuple) < 3 {
			return nil, fmt.Errorf("%w: tuple %d has %d fields", ErrMalformed, i, len(tuple))
		}
		var e Entry
		if err := json.Unmarshal(tuple[0], &e.Token); err != nil {
			return nil, fmt.Errorf("%w: tuple %d token: %v", ErrMalformed, i, err)
		}
		if err := json.Unmarshal(tuple[1], &e.ID); err != nil {
			return nil, fmt.Errorf("%w: tuple %d id: %v", ErrMalformed, i, err)
		}
		if err := json.Unmarshal(tuple[2], &e.Freq); err != nil {
			return nil, fmt.Errorf("%w: tuple %d freq: %v", ErrMalformed, i, err)
		}
		if len(tuple) > 3 {
			extra, err := decodeExtra(tuple[3])
			if err != nil {
				return nil, fmt.Errorf("%w: tuple %d extra: %v", ErrMalformed, i, err)
			}
			e.Extra = extra
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// decodeExtra keeps an integer extra. Non-numeric values carry no count and
// decode to zero.
func decodeExtra(raw json.RawMessage) (int64, error) {
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, nil
	}
	return n.Int64()
}

func decodeTSV(f *os.File) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformed, line, len(fields))
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d id: %v", ErrMalformed, line, err)
		}
		freq, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d freq: %v", ErrMalformed, line, err)
		}
		e := Entry{Token: fields[0], ID: id, Freq: freq}
		if len(fields) > 3 && fields[3] != "" {
			if e.Extra, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
				return nil, fmt.Errorf("%w: line %d extra: %v", ErrMalformed, line, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
