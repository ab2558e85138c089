// Package mp4 implements the low-level ISO Base Media File Format box
// writer: big-endian primitives, the box stack (placeholder-size then
// back-patch), the sample-table box bodies and the AVC codec-config
// parser. It knows nothing about tracks, samples or files on disk beyond
// the two Sink implementations below.
package mp4

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Sink is the output a Writer patches boxes into. There are two
// implementations: FileSink writes directly to an *os.File using pwrite
// semantics (WriteAt), and MemSink accumulates into a growable in-memory
// buffer. Both support appending at the current position and patching an
// already-written region in place, which is all a box writer needs.
type Sink interface {
	// WriteRaw appends p at the sink's current position and advances it.
	WriteRaw(p []byte) error
	// Pos returns the current position, in the sink's own coordinate
	// space (absolute file offset for FileSink, buffer offset for
	// MemSink).
	Pos() int64
	// PatchAt overwrites len(p) bytes at off, which must already have
	// been written. It never changes Pos().
	PatchAt(off int64, p []byte) error
}

// FileSink writes to a file via WriteAt (pwrite), so patches never
// disturb the position other writers advance. This is the direct-to-file
// mode of §4.1: the sequential seek-write-seek-back dance the spec
// describes for a single-cursor file handle collapses to independent
// pwrite calls under Go's os.File.
type FileSink struct {
	file   *os.File
	offset int64
}

// NewFileSink wraps f, starting appends at startOffset.
func NewFileSink(f *os.File, startOffset int64) *FileSink {
	return &FileSink{file: f, offset: startOffset}
}

// WriteRaw implements Sink.
func (s *FileSink) WriteRaw(p []byte) error {
	n, err := s.file.WriteAt(p, s.offset)
	s.offset += int64(n)
	if err != nil {
		return fmt.Errorf("filesink: write at %d: %w", s.offset, err)
	}
	return nil
}

// Pos implements Sink.
func (s *FileSink) Pos() int64 { return s.offset }

// PatchAt implements Sink.
func (s *FileSink) PatchAt(off int64, p []byte) error {
	if _, err := s.file.WriteAt(p, off); err != nil {
		return fmt.Errorf("filesink: patch at %d: %w", off, err)
	}
	return nil
}

// MemSink accumulates writes into an in-memory buffer, used while
// assembling `moov` so that recursive box-writing code does not need to
// know final box sizes up front (§4.1, §9 "Back-patched box sizes vs.
// buffered moov").
type MemSink struct {
	buf []byte
}

// NewMemSink returns an empty MemSink with cap pre-reserved.
func NewMemSink(cap int) *MemSink {
	return &MemSink{buf: make([]byte, 0, cap)}
}

// WriteRaw implements Sink.
func (s *MemSink) WriteRaw(p []byte) error {
	s.buf = append(s.buf, p...)
	return nil
}

// Pos implements Sink.
func (s *MemSink) Pos() int64 { return int64(len(s.buf)) }

// PatchAt implements Sink.
func (s *MemSink) PatchAt(off int64, p []byte) error {
	if off < 0 || off+int64(len(p)) > int64(len(s.buf)) {
		return fmt.Errorf("memsink: patch at %d len %d out of range (buf len %d)",
			off, len(p), len(s.buf))
	}
	copy(s.buf[off:], p)
	return nil
}

// Bytes returns the buffer written so far. The slice is only valid until
// the next WriteRaw call.
func (s *MemSink) Bytes() []byte { return s.buf }

// Len returns the number of bytes written so far (the spec's moovFill).
func (s *MemSink) Len() int { return len(s.buf) }

func putUint32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}
