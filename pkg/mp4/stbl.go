package mp4

// SttsEntry is a run-length encoded inter-sample duration run.
type SttsEntry struct {
	SampleCount uint32
	Duration    uint32
}

// StscEntry is a run-length encoded chunk-to-sample-count run.
type StscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	DescriptionID   uint32
}

// WriteStts emits the sample-to-time box.
func WriteStts(w *Writer, entries []SttsEntry) error {
	if err := w.BeginBox("stts"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.WriteI32(e.SampleCount); err != nil {
			return err
		}
		if err := w.WriteI32(e.Duration); err != nil {
			return err
		}
	}
	return w.EndBox()
}

// WriteStss emits the sync-sample box. Callers must not call this for
// tracks with no sync samples recorded (audio tracks omit stss entirely,
// per §4.3's trak tree — "stss (video only)").
func WriteStss(w *Writer, sampleNumbers []uint32) error {
	if err := w.BeginBox("stss"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(uint32(len(sampleNumbers))); err != nil {
		return err
	}
	for _, n := range sampleNumbers {
		if err := w.WriteI32(n); err != nil {
			return err
		}
	}
	return w.EndBox()
}

// WriteStsz emits the sample-size box. When allSameSize is true, size is
// the common sample size and every per-sample entry is omitted, per the
// default-size form described in §4.3.
func WriteStsz(w *Writer, sizes []uint32, allSameSize bool) error {
	if err := w.BeginBox("stsz"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if allSameSize {
		var sampleSize uint32
		if len(sizes) > 0 {
			sampleSize = sizes[0]
		}
		if err := w.WriteI32(sampleSize); err != nil {
			return err
		}
		if err := w.WriteI32(uint32(len(sizes))); err != nil {
			return err
		}
		return w.EndBox()
	}
	if err := w.WriteI32(0); err != nil {
		return err
	}
	if err := w.WriteI32(uint32(len(sizes))); err != nil {
		return err
	}
	for _, s := range sizes {
		if err := w.WriteI32(s); err != nil {
			return err
		}
	}
	return w.EndBox()
}

// WriteStsc emits the sample-to-chunk box.
func WriteStsc(w *Writer, entries []StscEntry) error {
	if err := w.BeginBox("stsc"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.WriteI32(e.FirstChunk); err != nil {
			return err
		}
		if err := w.WriteI32(e.SamplesPerChunk); err != nil {
			return err
		}
		if err := w.WriteI32(e.DescriptionID); err != nil {
			return err
		}
	}
	return w.EndBox()
}

// WriteCo64 emits the 64-bit chunk-offset box. The spec's Non-goals rule
// out the 32-bit `stco` form entirely.
func WriteCo64(w *Writer, offsets []int64) error {
	if err := w.BeginBox("co64"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(uint32(len(offsets))); err != nil {
		return err
	}
	for _, o := range offsets {
		if err := w.WriteI64(uint64(o)); err != nil {
			return err
		}
	}
	return w.EndBox()
}

func writeFullBoxHeader(w *Writer, version uint8, flags uint32) error {
	if err := w.WriteI8(version); err != nil {
		return err
	}
	// flags is a 24-bit field.
	if err := w.WriteI8(byte(flags >> 16)); err != nil {
		return err
	}
	if err := w.WriteI8(byte(flags >> 8)); err != nil {
		return err
	}
	return w.WriteI8(byte(flags))
}
