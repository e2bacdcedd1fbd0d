package indexer

import (
	"encoding/binary"
	"os"

	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// writeHeadersBlob persists headers as an unsigned count followed by,
// for each header, an unsigned length then the raw bytes, per spec.
func writeHeadersBlob(path string, headers [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return lazyerr.Wrap(lazyerr.Io, "create headers.blob", err)
	}
	defer f.Close()

	size := 4
	for _, h := range headers {
		size += 4 + len(h)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf, uint32(len(headers)))
	pos := 4
	for _, h := range headers {
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(h)))
		pos += 4
		copy(buf[pos:], h)
		pos += len(h)
	}
	if _, err := f.Write(buf); err != nil {
		return lazyerr.Wrap(lazyerr.Io, "write headers.blob", err)
	}
	return nil
}

// ReadHeadersBlob loads headers.blob back into memory. An absent or
// zero-count file yields an empty, non-nil slice.
func ReadHeadersBlob(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return [][]byte{}, nil
		}
		return nil, lazyerr.Wrap(lazyerr.Io, "read headers.blob", err)
	}
	if len(data) < 4 {
		return [][]byte{}, nil
	}
	count := binary.BigEndian.Uint32(data)
	headers := make([][]byte, 0, count)
	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, lazyerr.New(lazyerr.Io, "headers.blob is truncated")
		}
		l := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if pos+l > len(data) {
			return nil, lazyerr.New(lazyerr.Io, "headers.blob is truncated")
		}
		cell := make([]byte, l)
		copy(cell, data[pos:pos+l])
		headers = append(headers, cell)
		pos += l
	}
	return headers, nil
}
