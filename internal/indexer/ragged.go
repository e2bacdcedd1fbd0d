package indexer

import (
	"encoding/binary"
	"os"

	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// raggedEntry records that data row Row was observed with Width fields
// instead of the file's inferred column count — always Width < cols,
// since wide rows only cause discarded trailing fields, not a gap a
// reader needs to know about.
type raggedEntry struct {
	Row   uint32
	Width uint32
}

// writeRaggedMap persists the sparse ragged-row map as a flat count
// followed by (row, width) pairs, big-endian. Most files have zero
// entries, in which case this is just the 4-byte count.
func writeRaggedMap(path string, entries []raggedEntry) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return lazyerr.Wrap(lazyerr.Io, "create ragged-row map", err)
	}
	defer f.Close()

	buf := make([]byte, 4+8*len(entries))
	binary.BigEndian.PutUint32(buf, uint32(len(entries)))
	for i, e := range entries {
		off := 4 + i*8
		binary.BigEndian.PutUint32(buf[off:], e.Row)
		binary.BigEndian.PutUint32(buf[off+4:], e.Width)
	}
	if _, err := f.Write(buf); err != nil {
		return lazyerr.Wrap(lazyerr.Io, "write ragged-row map", err)
	}
	return nil
}

// ReadRaggedMap loads a ragged-row map into memory, keyed by data row
// index. An empty or absent file yields an empty, non-nil map.
func ReadRaggedMap(path string) (map[uint32]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint32]uint32{}, nil
		}
		return nil, lazyerr.Wrap(lazyerr.Io, "read ragged-row map", err)
	}
	if len(data) < 4 {
		return map[uint32]uint32{}, nil
	}
	count := binary.BigEndian.Uint32(data)
	m := make(map[uint32]uint32, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*8
		if off+8 > len(data) {
			break
		}
		row := binary.BigEndian.Uint32(data[off:])
		width := binary.BigEndian.Uint32(data[off+4:])
		m[row] = width
	}
	return m, nil
}
