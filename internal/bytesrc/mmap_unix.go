//go:build !windows

package bytesrc

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile memory-maps f read-only for its full size.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		// unix.Mmap rejects a zero-length mapping; callers treat an empty
		// byte source as len() == 0 without ever dereferencing it.
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// munmapFile unmaps a mapping obtained from mmapFile.
func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
