package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File layout, all little-endian:
//
//	magic "AVIX" | version u8 | metric u8 | dim u32 | count u32
//	count × ( id i64 | dim × f32 )
var fileMagic = [4]byte{'A', 'V', 'I', 'X'}

const fileVersion = 1

// Save writes the index to path atomically: temp file in the same
// directory, fsync, rename over the destination.
func (f *Flat) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vecindex-*")
	if err != nil {
		return fmt.Errorf("vecindex: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if err := f.encode(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("vecindex: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("vecindex: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vecindex: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vecindex: rename: %w", err)
	}
	return nil
}

// Load reads an index file. A missing file surfaces as os.ErrNotExist; any
// decoding problem surfaces as ErrCorrupt so the caller can rebuild.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return f, nil
}

func (f *Flat) encode(w io.Writer) error {
	if _, err := w.Write(fileMagic[:]); err != nil {
		return err
	}
	header := []interface{}{
		uint8(fileVersion),
		uint8(f.metric),
		uint32(f.dim),
		uint32(len(f.ids)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for i, id := range f.ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, f.vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

func decode(r io.Reader) (*Flat, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var (
		version uint8
		metric  uint8
		dim     uint32
		count   uint32
	)
	for _, dst := range []interface{}{&version, &metric, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, err
		}
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	if metric > uint8(IP) {
		return nil, fmt.Errorf("unknown metric %d", metric)
	}
	if dim == 0 || dim > 1<<16 {
		return nil, fmt.Errorf("implausible dimension %d", dim)
	}

	// count comes from an untrusted file; cap the preallocation so a bogus
	// header cannot exhaust memory before the row reads detect truncation.
	capHint := int(count)
	if capHint > 4096 {
		capHint = 4096
	}
	f := NewFlat(Metric(metric), int(dim))
	f.ids = make([]int64, 0, capHint)
	f.vecs = make([][]float32, 0, capHint)
	for i := uint32(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		f.ids = append(f.ids, id)
		f.vecs = append(f.vecs, vec)
	}
	return f, nil
}
