package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	formatVersion uint32 = 1
	headerSize    uint64 = 16
)

var magic = [4]byte{'P', 'W', 'I', 'X'}

type header struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint32
}

// Save writes the index to path, replacing any previous file atomically.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := ix.encode(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads an index written by Save. An index holding zero vectors is rejected.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}

	ix, err := decode(bufio.NewReader(f), uint64(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	return ix, nil
}

func (ix *Index) encode(w io.Writer) error {
	h := header{Magic: magic, Version: formatVersion, Dim: uint32(ix.dim), Count: uint32(len(ix.vectors))}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	for _, vec := range ix.vectors {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

// decode reads an index of exactly size bytes. The header is checked against
// size before anything is allocated.
func decode(r io.Reader, size uint64) (*Index, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if h.Magic != magic {
		return nil, errors.New("not an index file")
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported index version %d", h.Version)
	}
	if h.Count == 0 {
		return nil, ErrEmptyIndex
	}
	if h.Dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrDimensionMismatch)
	}
	// Dim and Count are uint32, so the product fits in uint64 and 4*product cannot overflow.
	if want := headerSize + 4*uint64(h.Dim)*uint64(h.Count); want != size {
		return nil, fmt.Errorf("index holds %d bytes, header describes %d (dim %d, count %d)", size, want, h.Dim, h.Count)
	}

	vectors := make([][]float32, h.Count)
	for i := range vectors {
		vec := make([]float32, h.Dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return &Index{dim: int(h.Dim), vectors: vectors}, nil
}
