package mp4

// identityMatrix is the unity transformation matrix shared by mvhd and
// tkhd, per §4.3's "matrix identity".
var identityMatrix = [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func writeMatrix(w *Writer) error {
	for _, v := range identityMatrix {
		if err := w.WriteI32(v); err != nil {
			return err
		}
	}
	return nil
}

// TkhdParams carries the fields WriteTkhd needs beyond the identity
// matrix and version-0 timestamps, which are always zero for a freshly
// muxed file.
type TkhdParams struct {
	TrackID     uint32
	DurationMs  uint32
	IsAudio     bool
	WidthPixels uint32 // 0 for audio tracks
	HeightPixel uint32 // 0 for audio tracks
}

// WriteTkhd emits the track header box, per §4.3's "trak" tree
// description: duration in ms, matrix identity, width/height as 16.16
// fixed-point for video, volume 0x100 for audio.
func WriteTkhd(w *Writer, p TkhdParams) error {
	if err := w.BeginBox("tkhd"); err != nil {
		return err
	}
	// flags = 0x7 (track enabled | in movie | in preview).
	if err := writeFullBoxHeader(w, 0, 0x000007); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // creation time
		return err
	}
	if err := w.WriteI32(0); err != nil { // modification time
		return err
	}
	if err := w.WriteI32(p.TrackID); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved
		return err
	}
	if err := w.WriteI32(p.DurationMs); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved[0]
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved[1]
		return err
	}
	if err := w.WriteI16(0); err != nil { // layer
		return err
	}
	if err := w.WriteI16(0); err != nil { // alternate group
		return err
	}
	var volume uint16
	if p.IsAudio {
		volume = 0x0100
	}
	if err := w.WriteI16(volume); err != nil {
		return err
	}
	if err := w.WriteI16(0); err != nil { // reserved
		return err
	}
	if err := writeMatrix(w); err != nil {
		return err
	}
	if err := w.WriteI32(p.WidthPixels << 16); err != nil {
		return err
	}
	if err := w.WriteI32(p.HeightPixel << 16); err != nil {
		return err
	}
	return w.EndBox()
}

// WriteEdtsSingleOffset emits `edts>elst` describing a single empty edit
// followed by the media, per §4.3: media-time -1, rate 1, duration
// startOffsetMs. Only called when mStartTimestampUs != 0.
func WriteEdtsSingleOffset(w *Writer, startOffsetMs uint32) error {
	if err := w.BeginBox("edts"); err != nil {
		return err
	}
	if err := w.BeginBox("elst"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(1); err != nil { // entry count
		return err
	}
	if err := w.WriteI32(startOffsetMs); err != nil { // segment duration
		return err
	}
	negOne := int32(-1)
	if err := w.WriteI32(uint32(negOne)); err != nil { // media time
		return err
	}
	if err := w.WriteI16(1); err != nil { // media rate integer
		return err
	}
	if err := w.WriteI16(0); err != nil { // media rate fraction
		return err
	}
	if err := w.EndBox(); err != nil { // elst
		return err
	}
	return w.EndBox() // edts
}

// WriteMdhd emits the media header box.
func WriteMdhd(w *Writer, timescale uint32, durationInTimescale uint32) error {
	if err := w.BeginBox("mdhd"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // creation time
		return err
	}
	if err := w.WriteI32(0); err != nil { // modification time
		return err
	}
	if err := w.WriteI32(timescale); err != nil {
		return err
	}
	if err := w.WriteI32(durationInTimescale); err != nil {
		return err
	}
	// language "und", packed ISO-639-2/T + 1 pad bit.
	if err := w.WriteI16(0x55C4); err != nil {
		return err
	}
	if err := w.WriteI16(0); err != nil { // pre_defined
		return err
	}
	return w.EndBox()
}

// WriteHdlr emits the handler box; handlerType is "vide" or "soun".
func WriteHdlr(w *Writer, handlerType, name string) error {
	if err := w.BeginBox("hdlr"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // pre_defined
		return err
	}
	if err := w.WriteFourCC(handlerType); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteI32(0); err != nil { // reserved
			return err
		}
	}
	if err := w.WriteCString(name); err != nil {
		return err
	}
	return w.EndBox()
}

// WriteVmhd emits the video media header box.
func WriteVmhd(w *Writer) error {
	if err := w.BeginBox("vmhd"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 1); err != nil { // flags=1, always set
		return err
	}
	if err := w.WriteI16(0); err != nil { // graphics mode
		return err
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteI16(0); err != nil { // opcolor
			return err
		}
	}
	return w.EndBox()
}

// WriteSmhd emits the sound media header box.
func WriteSmhd(w *Writer) error {
	if err := w.BeginBox("smhd"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI16(0); err != nil { // balance
		return err
	}
	if err := w.WriteI16(0); err != nil { // reserved
		return err
	}
	return w.EndBox()
}

// WriteDinf emits `dinf>dref>url ` with the self-contained flag set,
// per §4.3.
func WriteDinf(w *Writer) error {
	if err := w.BeginBox("dinf"); err != nil {
		return err
	}
	if err := w.BeginBox("dref"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(1); err != nil { // entry count
		return err
	}
	if err := w.BeginBox("url "); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 1); err != nil { // self-contained flag
		return err
	}
	if err := w.EndBox(); err != nil { // url
		return err
	}
	if err := w.EndBox(); err != nil { // dref
		return err
	}
	return w.EndBox() // dinf
}

// WriteMvhd emits the movie header box: timescale 1000, duration in ms,
// per §4.2 step 5.
func WriteMvhd(w *Writer, durationMs uint32, nextTrackID uint32) error {
	if err := w.BeginBox("mvhd"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // creation time
		return err
	}
	if err := w.WriteI32(0); err != nil { // modification time
		return err
	}
	if err := w.WriteI32(1000); err != nil { // timescale
		return err
	}
	if err := w.WriteI32(durationMs); err != nil {
		return err
	}
	if err := w.WriteI32(0x00010000); err != nil { // rate 1.0
		return err
	}
	if err := w.WriteI16(0x0100); err != nil { // volume 1.0
		return err
	}
	if err := w.WriteI16(0); err != nil { // reserved
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved[0]
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved[1]
		return err
	}
	if err := writeMatrix(w); err != nil {
		return err
	}
	for i := 0; i < 6; i++ {
		if err := w.WriteI32(0); err != nil { // pre_defined
			return err
		}
	}
	if err := w.WriteI32(nextTrackID); err != nil {
		return err
	}
	return w.EndBox()
}
