package mp4

import (
	"encoding/binary"
	"fmt"
)

// Writer is the box stack and byte-primitive writer of §4.1. It holds no
// file or track state of its own beyond the current Sink and the stack
// of open box start offsets; the muxer package owns everything above
// that (mdat bookkeeping, reservation, spill policy).
type Writer struct {
	sink  Sink
	stack []int64
}

// NewWriter returns a Writer over sink.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// Sink returns the current output sink.
func (w *Writer) Sink() Sink { return w.sink }

// SetSink swaps the output sink in place, used by the memory-to-file
// spill in §4.1. The box stack is left untouched by this call; the
// caller is responsible for rewriting stack offsets into the new sink's
// coordinate space first (see StackOffsets/SetStackOffsets).
func (w *Writer) SetSink(sink Sink) { w.sink = sink }

// Pos returns the current output position.
func (w *Writer) Pos() int64 { return w.sink.Pos() }

// StackDepth returns the number of currently-open boxes.
func (w *Writer) StackDepth() int { return len(w.stack) }

// StackOffsets returns a copy of the open box start offsets, oldest
// first.
func (w *Writer) StackOffsets() []int64 {
	out := make([]int64, len(w.stack))
	copy(out, w.stack)
	return out
}

// SetStackOffsets replaces the open box start offsets wholesale. Used
// after a spill to rebase buffer-relative offsets to file-relative ones.
func (w *Writer) SetStackOffsets(offs []int64) {
	w.stack = append(w.stack[:0], offs...)
}

// WriteI8 writes one byte.
func (w *Writer) WriteI8(v uint8) error {
	return w.sink.WriteRaw([]byte{v})
}

// WriteI16 writes a big-endian uint16.
func (w *Writer) WriteI16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return w.sink.WriteRaw(b[:])
}

// WriteI32 writes a big-endian uint32.
func (w *Writer) WriteI32(v uint32) error {
	return w.sink.WriteRaw(putUint32(v))
}

// WriteI64 writes a big-endian uint64.
func (w *Writer) WriteI64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return w.sink.WriteRaw(b[:])
}

// WriteFourCC writes a four-character box type. Panics if s is not
// exactly four bytes, matching the CHECK() assertion of §4.1 — a
// mismatched fourcc is a programmer error, not a runtime condition.
func (w *Writer) WriteFourCC(s string) error {
	if len(s) != 4 {
		panic(fmt.Sprintf("mp4: fourcc must be four characters, got %q", s))
	}
	return w.sink.WriteRaw([]byte(s))
}

// WriteCString writes s followed by a terminating NUL.
func (w *Writer) WriteCString(s string) error {
	return w.sink.WriteRaw(append([]byte(s), 0))
}

// WriteRaw writes p verbatim.
func (w *Writer) WriteRaw(p []byte) error {
	return w.sink.WriteRaw(p)
}

// BeginBox pushes the current position and emits a zero size placeholder
// followed by fourcc. The matching EndBox patches the placeholder with
// the real size once the box body and any children have been written.
func (w *Writer) BeginBox(fourcc string) error {
	if len(fourcc) != 4 {
		panic(fmt.Sprintf("mp4: fourcc must be four characters, got %q", fourcc))
	}
	w.stack = append(w.stack, w.sink.Pos())
	if err := w.WriteI32(0); err != nil {
		return err
	}
	return w.WriteFourCC(fourcc)
}

// EndBox pops the most recently opened box and patches its size field.
// Panics if the stack is empty, matching the CHECK() assertion of §4.1.
func (w *Writer) EndBox() error {
	if len(w.stack) == 0 {
		panic("mp4: endBox called with empty box stack")
	}
	start := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	size := w.sink.Pos() - start
	if size < 0 || size > 1<<32-1 {
		return fmt.Errorf("mp4: box size %d out of range for 32-bit size field", size)
	}
	return w.sink.PatchAt(start, putUint32(uint32(size)))
}
