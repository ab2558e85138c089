package mp4

import "fmt"

// WriteStsdHeader opens `stsd` and writes its one-entry-count FullBox
// header. The caller writes the single sample entry box and then calls
// EndBox. This mirrors the rest of this package's low-level style
// instead of hiding the single entry behind a callback, since every
// track this muxer emits has exactly one sample description.
func WriteStsdHeader(w *Writer) error {
	if err := w.BeginBox("stsd"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}
	return w.WriteI32(1) // entry count
}

func writeSampleEntryCommon(w *Writer) error {
	for i := 0; i < 6; i++ {
		if err := w.WriteI8(0); err != nil { // reserved
			return err
		}
	}
	return w.WriteI16(1) // data_reference_index
}

// BeginVisualSampleEntry opens a VisualSampleEntry box (avc1/mp4v/s263)
// with the given fourcc, width and height in pixels. The caller writes
// any codec-config child boxes and then calls EndBox.
func BeginVisualSampleEntry(w *Writer, fourcc string, width, height uint16) error {
	if err := w.BeginBox(fourcc); err != nil {
		return err
	}
	if err := writeSampleEntryCommon(w); err != nil {
		return err
	}
	if err := w.WriteI16(0); err != nil { // pre_defined
		return err
	}
	if err := w.WriteI16(0); err != nil { // reserved
		return err
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteI32(0); err != nil { // pre_defined
			return err
		}
	}
	if err := w.WriteI16(width); err != nil {
		return err
	}
	if err := w.WriteI16(height); err != nil {
		return err
	}
	if err := w.WriteI32(0x00480000); err != nil { // horizresolution, 72dpi
		return err
	}
	if err := w.WriteI32(0x00480000); err != nil { // vertresolution, 72dpi
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved
		return err
	}
	if err := w.WriteI16(1); err != nil { // frame_count
		return err
	}
	if err := w.WriteRaw(make([]byte, 32)); err != nil { // compressorname
		return err
	}
	if err := w.WriteI16(0x0018); err != nil { // depth
		return err
	}
	return w.WriteI16(0xFFFF) // pre_defined = -1
}

// BeginAudioSampleEntry opens an AudioSampleEntry box (samr/sawb/mp4a)
// with the given channel count and sample rate in Hz. The caller writes
// any codec-config child boxes and then calls EndBox.
func BeginAudioSampleEntry(w *Writer, fourcc string, channelCount uint16, sampleRate uint32) error {
	if err := w.BeginBox(fourcc); err != nil {
		return err
	}
	if err := writeSampleEntryCommon(w); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved (version+revision)
		return err
	}
	if err := w.WriteI32(0); err != nil { // reserved (vendor)
		return err
	}
	if err := w.WriteI16(channelCount); err != nil {
		return err
	}
	if err := w.WriteI16(16); err != nil { // sample size in bits
		return err
	}
	if err := w.WriteI16(0); err != nil { // pre_defined
		return err
	}
	if err := w.WriteI16(0); err != nil { // reserved
		return err
	}
	if sampleRate > 0xFFFF {
		return fmt.Errorf("mp4: sample rate %d too large for 16.16 fixed point", sampleRate)
	}
	return w.WriteI32(sampleRate << 16)
}

// WriteD263 emits the h263-specific-config box mandated by 3GPP TS
// 26.244 for `s263` sample entries: vendor 0, version 0, level 10,
// profile 0, per §4.3.
func WriteD263(w *Writer) error {
	if err := w.BeginBox("d263"); err != nil {
		return err
	}
	if err := w.WriteI32(0); err != nil { // vendor
		return err
	}
	if err := w.WriteI8(0); err != nil { // decoder version
		return err
	}
	if err := w.WriteI8(10); err != nil { // level
		return err
	}
	if err := w.WriteI8(0); err != nil { // profile
		return err
	}
	return w.EndBox()
}

// WriteAvcC embeds the pre-assembled AVCDecoderConfigurationRecord from
// §4.4 as the body of an `avcC` box.
func WriteAvcC(w *Writer, config []byte) error {
	if err := w.BeginBox("avcC"); err != nil {
		return err
	}
	if err := w.WriteRaw(config); err != nil {
		return err
	}
	return w.EndBox()
}

// ES descriptor tags, ISO/IEC 14496-1.
const (
	ESDescrTag            = 0x03
	DecoderConfigDescrTag = 0x04
	DecSpecificInfoTag    = 0x05
	SLConfigDescrTag      = 0x06
)

// EsdsStreamKind selects the object-type/stream-type byte pair `esds`
// embeds, per §4.3: audio (AAC) uses 0x40/0x15, visual (MPEG-4 Visual)
// uses 0x20/0x11.
type EsdsStreamKind uint8

// Stream kinds accepted by WriteEsds.
const (
	EsdsAudio EsdsStreamKind = iota
	EsdsVisual
)

// WriteEsds embeds an Elementary Stream Descriptor carrying config as
// DecoderSpecificInfo, per §4.3's esds field layout.
func WriteEsds(w *Writer, esID uint16, kind EsdsStreamKind, config []byte) error {
	if len(config) > 0xFF {
		return fmt.Errorf("mp4: codec config too large for esds one-byte length field")
	}
	if err := w.BeginBox("esds"); err != nil {
		return err
	}
	if err := writeFullBoxHeader(w, 0, 0); err != nil {
		return err
	}

	specificInfoLen := uint8(len(config))

	if err := w.WriteI8(ESDescrTag); err != nil {
		return err
	}
	if err := writeVarLength(w, 32+uint32(specificInfoLen)); err != nil {
		return err
	}
	if err := w.WriteI16(esID); err != nil {
		return err
	}
	if err := w.WriteI8(0); err != nil { // flags
		return err
	}

	if err := w.WriteI8(DecoderConfigDescrTag); err != nil {
		return err
	}
	if err := writeVarLength(w, 18+uint32(specificInfoLen)); err != nil {
		return err
	}
	objectType, streamType := byte(0x40), byte(0x15)
	if kind == EsdsVisual {
		objectType, streamType = 0x20, 0x11
	}
	if err := w.WriteI8(objectType); err != nil {
		return err
	}
	if err := w.WriteI8(streamType); err != nil {
		return err
	}
	if err := w.WriteRaw([]byte{0, 0, 0}); err != nil { // bufferSizeDB
		return err
	}
	if err := w.WriteI32(0x0001F739); err != nil { // maxBitrate
		return err
	}
	if err := w.WriteI32(0x0001F739); err != nil { // avgBitrate
		return err
	}

	if err := w.WriteI8(DecSpecificInfoTag); err != nil {
		return err
	}
	if err := writeVarLength(w, uint32(specificInfoLen)); err != nil {
		return err
	}
	if err := w.WriteRaw(config); err != nil {
		return err
	}

	if err := w.WriteI8(SLConfigDescrTag); err != nil {
		return err
	}
	if err := writeVarLength(w, 1); err != nil {
		return err
	}
	if err := w.WriteI8(2); err != nil { // SLConfig flags
		return err
	}

	return w.EndBox()
}

// writeVarLength writes n using the fixed 4-byte 0x80 0x80 0x80 <len>
// expanded-length encoding the source's esds fields use throughout
// (rather than the minimal-byte-count form ISO/IEC 14496-1 also allows).
func writeVarLength(w *Writer, n uint32) error {
	if n > 0xFF {
		return fmt.Errorf("mp4: esds descriptor length %d exceeds one byte", n)
	}
	if err := w.WriteI8(0x80); err != nil {
		return err
	}
	if err := w.WriteI8(0x80); err != nil {
		return err
	}
	if err := w.WriteI8(0x80); err != nil {
		return err
	}
	return w.WriteI8(byte(n))
}
