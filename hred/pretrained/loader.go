package pretrained

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed embedding file")

// MaxDimensions caps the vector width a header may declare.
const MaxDimensions = 1 << 16

// Format identifies an on-disk embedding layout.
type Format int

const (
	// FormatText is one "word v1 ... vd" record per line, with an optional
	// word2vec "<count> <dims>" header line.
	FormatText Format = iota
	// FormatWord2VecBinary is the word2vec C tool binary layout.
	FormatWord2VecBinary
)

func (f Format) String() string {
	switch f {
	case FormatWord2VecBinary:
		return "word2vec-binary"
	default:
		return "text"
	}
}

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return FormatWord2VecBinary
	}
	return FormatText
}

// Load reads a pretrained table from path using the format implied by its
// extension.
func Load(path string) (*Table, Format, error) {
	format := DetectFormat(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, format, fmt.Errorf("failed to open embeddings %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var table *Table
	switch format {
	case FormatWord2VecBinary:
		table, err = ReadWord2VecBinary(r)
	default:
		table, err = ReadText(r)
	}
	if err != nil {
		return nil, format, fmt.Errorf("failed to read embeddings %s: %w", path, err)
	}
	if table.Len() == 0 {
		return nil, format, fmt.Errorf("%w: %s", ErrEmptyTable, path)
	}
	return table, format, nil
}

// ReadWord2VecBinary decodes the word2vec binary layout: a text header
// "<count> <dims>\n" followed by count records of "word " plus dims
// little-endian float32 values, each optionally followed by a newline.
func ReadWord2VecBinary(r *bufio.Reader) (*Table, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	count, dims, ok := parseHeader(header)
	if !ok {
		return nil, fmt.Errorf("%w: header %q", ErrMalformed, strings.TrimSpace(header))
	}

	table := NewTable(dims)
	vec := make([]float32, dims)
	for i := 0; i < count; i++ {
		word, err := r.ReadString(' ')
		if err != nil {
			return nil, fmt.Errorf("%w: record %d word: %v", ErrMalformed, i, err)
		}
		word = strings.TrimLeft(strings.TrimSuffix(word, " "), "\n")
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: record %d vector: %v", ErrMalformed, i, err)
		}
		if err := table.Add(word, vec); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// ReadText decodes whitespace-separated text vectors.
func ReadText(r *bufio.Reader) (*Table, error) {
	var table *Table
	line := 0
	for {
		text, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line++
		fields := strings.Fields(text)
		_, headerDims, isHeader := parseHeader(text)
		switch {
		case len(fields) == 0:
		case table == nil && line == 1 && isHeader:
			table = NewTable(headerDims)
		default:
			if table == nil {
				table = NewTable(len(fields) - 1)
			}
			if addErr := addTextRecord(table, fields, line); addErr != nil {
				return nil, addErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if table == nil {
		return NewTable(0), nil
	}
	return table, nil
}

func addTextRecord(table *Table, fields []string, line int) error {
	dims := table.Dimensions()
	if dims <= 0 || len(fields) <= dims {
		return fmt.Errorf("%w: line %d has %d fields for %d dims", ErrMalformed, line, len(fields), dims)
	}
	// words may contain spaces, the vector is always the trailing dims fields
	split := len(fields) - dims
	vec := make([]float32, dims)
	for j, s := range fields[split:] {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return fmt.Errorf("%w: line %d value %d: %v", ErrMalformed, line, j, err)
		}
		vec[j] = float32(v)
	}
	return table.Add(strings.Join(fields[:split], " "), vec)
}

func parseHeader(s string) (count, dims int, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return 0, 0, false
	}
	dims, err = strconv.Atoi(fields[1])
	if err != nil || dims <= 0 || dims > MaxDimensions {
		return 0, 0, false
	}
	return count, dims, true
}
