//go:build windows

package bytesrc

import (
	"io"
	"os"
)

// mmapFile falls back to reading the whole file on Windows, avoiding the
// unsafe pointer arithmetic a real mapping would need without an external
// library. This mirrors the source repo's own Windows fallback.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	return io.ReadAll(f)
}

// munmapFile is a no-op for the ReadAll fallback.
func munmapFile(data []byte) error {
	return nil
}
