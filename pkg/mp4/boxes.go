package mp4

import "fmt"

// WriteFtyp emits the file-type box mandated by §4.2 step 1: major brand
// "isom", minor version 0, with "isom" as the sole compatible brand.
func WriteFtyp(w *Writer) error {
	if err := w.BeginBox("ftyp"); err != nil {
		return err
	}
	if err := w.WriteFourCC("isom"); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil {
		return err
	}
	if err := w.WriteFourCC("isom"); err != nil {
		return err
	}
	return w.EndBox()
}

// WriteFree emits a `free` box occupying exactly size bytes on disk,
// size >= 8. Used both for the initial moov reservation (§4.2 step 3)
// and for the trailing pad after moov is written back into it.
func WriteFree(w *Writer, size int64) error {
	if size < 8 {
		return fmt.Errorf("mp4: free box size %d must be at least 8", size)
	}
	if err := w.BeginBox("free"); err != nil {
		return err
	}
	if err := w.WriteRaw(make([]byte, size-8)); err != nil {
		return err
	}
	return w.EndBox()
}

// MdatLargeHeaderSize is the size in bytes of the large-size mdat header
// emitted by WriteMdatHeaderPlaceholder: 4 (size=1) + 4 (type) + 8
// (64-bit large size).
const MdatLargeHeaderSize = 16

// WriteMdatHeaderPlaceholder emits the 16-byte large-size mdat header
// with the 64-bit size field left as zero, per §4.2 step 4. The caller
// must remember the offset this call started at (== the sink's Pos()
// before calling it) and pass it to PatchMdatSize once mOffset is known.
func WriteMdatHeaderPlaceholder(w *Writer) error {
	if err := w.WriteI32(1); err != nil { // size==1 signals large-size form follows
		return err
	}
	if err := w.WriteFourCC("mdat"); err != nil {
		return err
	}
	return w.WriteI64(0)
}

// PatchMdatSize patches the 64-bit large-size field of the mdat box that
// starts at mdatOffset with size (the total box size, header included),
// per §4.2 step 3 of stop().
func PatchMdatSize(w *Writer, mdatOffset int64, size uint64) error {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(size)
		size >>= 8
	}
	return w.Sink().PatchAt(mdatOffset+8, b[:])
}
