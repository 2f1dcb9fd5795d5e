// Package blockreader defines the random-access reader the archive engine
// consumes, plus a plain-file implementation. The engine never writes
// through this interface — patches are handed back to the caller as
// ciphertext spans instead (see pkg/nca.PatchSet).
package blockreader

import (
	"fmt"
	"io"
	"os"
)

// Reader is the block-reader interface the engine consumes. storage
// implementations (raw device, host filesystem, game card) satisfy it;
// this package ships only the plain-file case.
type Reader interface {
	// ReadAt reads len(out) bytes starting at the given absolute offset
	// into the archive.
	ReadAt(out []byte, absoluteOffset int64) error

	// Size reports the total readable size of the archive.
	Size() int64
}

// FileReader reads an archive that lives at a fixed base offset inside an
// underlying file — the raw-device case from spec.md §6 ("the reader adds
// a fixed base offset").
type FileReader struct {
	f      *os.File
	base   int64
	size   int64
	closed bool
}

// OpenFile opens path and wraps it as a Reader whose archive content
// starts at baseOffset and is archiveSize bytes long.
func OpenFile(path string, baseOffset, archiveSize int64) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockreader: open %s: %w", path, err)
	}
	return &FileReader{f: f, base: baseOffset, size: archiveSize}, nil
}

// NewFileReader wraps an already-open file, taking ownership of closing it.
func NewFileReader(f *os.File, baseOffset, archiveSize int64) *FileReader {
	return &FileReader{f: f, base: baseOffset, size: archiveSize}
}

func (r *FileReader) ReadAt(out []byte, absoluteOffset int64) error {
	if r.closed {
		return fmt.Errorf("blockreader: read from closed reader")
	}
	if absoluteOffset < 0 || absoluteOffset+int64(len(out)) > r.size {
		return fmt.Errorf("blockreader: read [%d, %d) out of range [0, %d)", absoluteOffset, absoluteOffset+int64(len(out)), r.size)
	}
	n, err := r.f.ReadAt(out, r.base+absoluteOffset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("blockreader: read at %d: %w", absoluteOffset, err)
	}
	if n != len(out) {
		return fmt.Errorf("blockreader: short read at %d: got %d want %d", absoluteOffset, n, len(out))
	}
	return nil
}

func (r *FileReader) Size() int64 { return r.size }

// Close releases the underlying file.
func (r *FileReader) Close() error {
	r.closed = true
	return r.f.Close()
}

// MemReader is an in-memory Reader, used by tests and by callers that
// already hold the archive bytes.
type MemReader struct {
	data []byte
}

// NewMemReader wraps data as a Reader. data is not copied.
func NewMemReader(data []byte) *MemReader {
	return &MemReader{data: data}
}

func (r *MemReader) ReadAt(out []byte, absoluteOffset int64) error {
	if absoluteOffset < 0 || absoluteOffset+int64(len(out)) > int64(len(r.data)) {
		return fmt.Errorf("blockreader: read [%d, %d) out of range [0, %d)", absoluteOffset, absoluteOffset+int64(len(out)), len(r.data))
	}
	copy(out, r.data[absoluteOffset:absoluteOffset+int64(len(out))])
	return nil
}

func (r *MemReader) Size() int64 { return int64(len(r.data)) }
