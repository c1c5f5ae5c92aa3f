package embedding

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	roaring "github.com/RoaringBitmap/roaring"
	"gonum.org/v1/gonum/mat"
)

var ErrCorruptMatrix = errors.New("corrupt embedding matrix file")

const (
	storeMagic   = "HEMB"
	storeVersion = uint32(1)
)

// OutputPath appends the artifact suffix to the requested output name.
func OutputPath(base, suffix string) string { return base + suffix }

// Save writes m to path. Format (little-endian):
// [magic 'HEMB'] [u32 version] [gonum mat.Dense binary weights]
// [u64 mask length] [roaring bitmap of non-pretrained rows].
// The file is written next to path and renamed into place, so a failed
// save leaves no partial artifact.
func Save(path string, m *Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := encode(f, m); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(storeMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, storeVersion); err != nil {
		return err
	}
	if _, err := m.Weights.MarshalBinaryTo(bw); err != nil {
		return err
	}
	mask, err := m.NonPretrained.ToBytes()
	if err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(mask))); err != nil {
		return err
	}
	if _, err := bw.Write(mask); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads a matrix persisted with Save.
func Load(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(bufio.NewReader(f))
}

func decode(r io.Reader) (*Matrix, error) {
	magic := make([]byte, len(storeMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptMatrix, err)
	}
	if string(magic) != storeMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptMatrix, magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrCorruptMatrix, err)
	}
	if version != storeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptMatrix, version)
	}

	weights := &mat.Dense{}
	if _, err := weights.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("%w: weights: %v", ErrCorruptMatrix, err)
	}
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: mask length: %v", ErrCorruptMatrix, err)
	}
	rows, _ := weights.Dims()
	if limit := maxMaskBytes(rows); n > limit {
		return nil, fmt.Errorf("%w: mask length %d exceeds %d for %d rows", ErrCorruptMatrix, n, limit, rows)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrCorruptMatrix, err)
	}
	mask := roaring.New()
	if err := mask.UnmarshalBinary(buf); err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrCorruptMatrix, err)
	}

	m := &Matrix{Weights: weights, NonPretrained: mask}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// maxMaskBytes bounds the serialised size of a bitmap over rows ids.
func maxMaskBytes(rows int) uint64 {
	return uint64(rows)*4 + 1<<16
}
