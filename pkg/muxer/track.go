package muxer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"mp4mux/pkg/log"
	"mp4mux/pkg/mp4"
	"mp4mux/pkg/mp4/aacconfig"
)

// ErrSecondCodecConfigFrame is the fatal condition of §4.3: a Source
// delivered a second IsCodecConfig frame after codec-config bootstrap
// already completed. Codec-config is assumed immutable for the lifetime
// of a track, so this is a programmer/producer contract violation, not a
// recoverable runtime error — run panics with it rather than returning
// it, and nothing recovers that panic.
var ErrSecondCodecConfigFrame = errors.New("muxer: second codec-config frame on track")

// mpeg4VisualVOPStartCode marks the first Video Object Plane in an
// MPEG-4 Visual elementary stream, per §4.3 case 2.
var mpeg4VisualVOPStartCode = []byte{0x00, 0x00, 0x01, 0xB6}

type sampleInfo struct {
	size        uint32
	timestampMs uint32
}

// track holds the per-track state of §3's data model: the growing
// sample tables, the transient chunk queue, and the codec-config
// bootstrap state machine of §4.3. A track is driven entirely by its own
// goroutine (run); the only cross-goroutine surface is the shared
// Muxer, which the sample-write path reaches through its own mutex.
type track struct {
	mux      *Muxer
	source   Source
	format   Format
	trackID  uint32
	isAudio  bool
	fourcc   string
	handlerName string

	csd          []byte
	csdComplete  bool
	csdStaging   []byte
	csdStagingN  int

	firstTimestampUs      int64
	haveFirstTimestamp    bool
	startTimestampOffsetUs int64
	maxTimestampUs        int64
	estimatedSizeBytes    int64

	sampleInfos       []sampleInfo
	allSamplesSameSize bool
	sttsEntries       []mp4.SttsEntry
	stssEntries       []uint32
	stscEntries       []mp4.StscEntry
	chunkOffsets      []int64

	chunkSamples        [][]byte
	chunkWindowStartUs  int64

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	eos bool
	log *log.Logger
}

func newTrack(mux *Muxer, trackID uint32, src Source, logger *log.Logger) *track {
	format := src.Format()
	t := &track{
		mux:                mux,
		source:             src,
		format:             format,
		trackID:            trackID,
		isAudio:            !format.MediaType.isVideo(),
		allSamplesSameSize: true,
		log:                logger,
	}
	t.pauseCond = sync.NewCond(&t.pauseMu)

	switch format.MediaType {
	case MediaAVC, MediaMPEG4Visual, MediaAAC:
		// Codec-config bootstrap applies; csdComplete starts false.
	default:
		// H.263 and both AMR variants carry no separate codec-config
		// stage: the first frame is already a sample.
		t.csdComplete = true
	}

	switch format.MediaType {
	case MediaAVC:
		t.fourcc, t.handlerName = "avc1", "VideoHandler"
	case MediaMPEG4Visual:
		t.fourcc, t.handlerName = "mp4v", "VideoHandler"
	case MediaH263:
		t.fourcc, t.handlerName = "s263", "VideoHandler"
	case MediaAAC:
		t.fourcc, t.handlerName = "mp4a", "SoundHandler"
	case MediaAMRNB:
		t.fourcc, t.handlerName = "samr", "SoundHandler"
	case MediaAMRWB:
		t.fourcc, t.handlerName = "sawb", "SoundHandler"
	}
	return t
}

// run is the Track Pipeline goroutine of §4.3. It reads frames until ctx
// is canceled, the source reaches EOS, or a muxer limit is exceeded, then
// finalizes the track's sample tables.
func (t *track) run(ctx context.Context) {
	defer t.finish()

	for {
		t.waitIfPaused(ctx)
		if ctx.Err() != nil {
			return
		}

		buf, err := t.source.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				t.log.Error().Src("track").Track(t.trackID).Msgf("read: %v", err)
			}
			return
		}
		if len(buf.Payload) == 0 {
			continue
		}

		payload := append([]byte(nil), buf.Payload...)

		if !t.csdComplete {
			consumed, sample, err := t.ingestCSD(payload, buf)
			if err != nil {
				panic(fmt.Errorf("track %d: codec-config bootstrap: %w", t.trackID, err))
			}
			if consumed {
				continue
			}
			payload = sample
		}

		if t.format.MediaType == MediaAVC {
			payload = stripLeadingAnnexBStartCode(payload)
		}

		if !t.addSample(payload, buf) {
			return
		}
	}
}

func (t *track) waitIfPaused(ctx context.Context) {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	for t.paused && ctx.Err() == nil {
		t.pauseCond.Wait()
	}
}

// setPaused implements the paused/resumed supplemented feature: the
// pipeline stops consuming frames from its Source without tearing down
// the track's accumulated sample tables.
func (t *track) setPaused(p bool) {
	t.pauseMu.Lock()
	t.paused = p
	t.pauseMu.Unlock()
	t.pauseCond.Broadcast()
}

// stripLeadingAnnexBStartCode removes the 4-byte Annex-B prefix a Source
// may still be attaching to AVC access units; the on-disk `mdat` form
// uses a 4-byte length prefix instead (assembled at chunk-flush time).
func stripLeadingAnnexBStartCode(payload []byte) []byte {
	if bytes.HasPrefix(payload, mp4.AnnexBStartCode) {
		return payload[len(mp4.AnnexBStartCode):]
	}
	return payload
}

// ingestCSD implements the three codec-config bootstrap cases of §4.3.
// consumed reports whether the frame was entirely codec-config material
// (and must not also be treated as a sample); sample, when non-nil, is
// the payload remainder that should still be emitted as the track's
// first sample.
func (t *track) ingestCSD(payload []byte, buf Buffer) (consumed bool, sample []byte, err error) {
	if buf.IsCodecConfig {
		if t.csdComplete {
			return false, nil, fmt.Errorf("%w: track %d", ErrSecondCodecConfigFrame, t.trackID)
		}
		if t.format.MediaType == MediaAVC {
			sps, pps, err := mp4.SplitAnnexBSPSPPS(payload)
			if err != nil {
				return false, nil, err
			}
			csd, err := mp4.AssembleAVCDecoderConfig(sps, pps)
			if err != nil {
				return false, nil, err
			}
			t.csd = csd
		} else {
			t.csd = append([]byte(nil), payload...)
		}
		if t.format.MediaType == MediaAAC {
			if cfg, err := aacconfig.Decode(t.csd); err == nil {
				t.log.Info().Src("track").Track(t.trackID).Msgf("aac %dHz %dch", cfg.SampleRate, cfg.ChannelCount)
			}
		}
		t.csdComplete = true
		return true, nil, nil
	}

	switch t.format.MediaType {
	case MediaMPEG4Visual:
		idx := bytes.Index(payload, mpeg4VisualVOPStartCode)
		if idx < 0 {
			t.csd = append([]byte(nil), payload...)
			t.csdComplete = true
			return true, nil, nil
		}
		t.csd = append([]byte(nil), payload[:idx]...)
		t.csdComplete = true
		return false, payload[idx:], nil

	case MediaAVC:
		t.csdStaging = append(append(t.csdStaging, mp4.AnnexBStartCode...), payload...)
		t.csdStagingN++
		if t.csdStagingN < 2 {
			return true, nil, nil
		}
		sps, pps, err := mp4.SplitAnnexBSPSPPS(t.csdStaging)
		if err != nil {
			return false, nil, err
		}
		csd, err := mp4.AssembleAVCDecoderConfig(sps, pps)
		if err != nil {
			return false, nil, err
		}
		t.csd = csd
		t.csdComplete = true
		return true, nil, nil

	default:
		// AAC and non-bootstrapped types never reach here with
		// csdComplete false unless the producer never sends a
		// declared-CSD frame; treat the frame as an ordinary sample.
		t.csdComplete = true
		return false, payload, nil
	}
}

// addSample implements the per-frame sample-loop bullets of §4.3. It
// returns false when a muxer limit was exceeded and the caller should
// stop reading from this track.
func (t *track) addSample(payload []byte, buf Buffer) bool {
	onDiskSize := int64(len(payload))
	if t.format.MediaType == MediaAVC {
		onDiskSize += 4 // length-prefix replacing the stripped start code
	}
	t.estimatedSizeBytes += onDiskSize

	if t.mux.exceedsFileSizeLimit() {
		t.mux.notifier.Notify(Event{Kind: EventMaxFilesizeReached, TrackID: t.trackID})
		return false
	}
	if t.mux.exceedsFileDurationLimit() {
		t.mux.notifier.Notify(Event{Kind: EventMaxDurationReached, TrackID: t.trackID})
		return false
	}

	ts := buf.PresentationTimeUs
	if !t.haveFirstTimestamp {
		t.haveFirstTimestamp = true
		t.firstTimestampUs = ts
		t.startTimestampOffsetUs = ts - t.mux.setStartTimestamp(ts)
	} else if ts <= t.maxTimestampUs {
		t.log.Warn().Src("track").Track(t.trackID).Msgf("non-monotonic timestamp %dus (previous max %dus)", ts, t.maxTimestampUs)
	}
	if ts > t.maxTimestampUs {
		t.maxTimestampUs = ts
	}

	ms := uint32((ts + 500) / 1000)
	size := uint32(onDiskSize)

	if len(t.sampleInfos) > 0 && size != t.sampleInfos[0].size {
		t.allSamplesSameSize = false
	}
	t.sampleInfos = append(t.sampleInfos, sampleInfo{size: size, timestampMs: ms})
	n := len(t.sampleInfos)

	if n >= 2 {
		delta := t.sampleInfos[n-1].timestampMs - t.sampleInfos[n-2].timestampMs
		if len(t.sttsEntries) > 0 && t.sttsEntries[len(t.sttsEntries)-1].Duration == delta {
			t.sttsEntries[len(t.sttsEntries)-1].SampleCount++
		} else {
			t.sttsEntries = append(t.sttsEntries, mp4.SttsEntry{SampleCount: 1, Duration: delta})
		}
	}

	if !t.isAudio && buf.IsSyncFrame {
		t.stssEntries = append(t.stssEntries, uint32(n))
	}

	t.enqueueChunk(payload, ts)
	return true
}

// enqueueChunk implements §4.3's "Chunking" bullet: with a zero
// interleave duration every sample is its own chunk; otherwise samples
// accumulate until the current sample's timestamp exceeds the window
// anchor by more than the interleave duration.
func (t *track) enqueueChunk(payload []byte, tsUs int64) {
	if t.mux.interleaveDurationUs == 0 {
		t.chunkSamples = append(t.chunkSamples, payload)
		t.pushStscIfChanged(1)
		t.flushChunk()
		return
	}

	if len(t.chunkSamples) == 0 {
		t.chunkWindowStartUs = tsUs
	} else if tsUs-t.chunkWindowStartUs > t.mux.interleaveDurationUs {
		t.pushStscIfChanged(len(t.chunkSamples))
		t.flushChunk()
		t.chunkWindowStartUs = tsUs
	}
	t.chunkSamples = append(t.chunkSamples, payload)
}

func (t *track) pushStscIfChanged(samplesPerChunk int) {
	chunkNumber := uint32(len(t.chunkOffsets) + 1)
	if len(t.stscEntries) == 0 || t.stscEntries[len(t.stscEntries)-1].SamplesPerChunk != uint32(samplesPerChunk) {
		t.stscEntries = append(t.stscEntries, mp4.StscEntry{
			FirstChunk:      chunkNumber,
			SamplesPerChunk: uint32(samplesPerChunk),
			DescriptionID:   1,
		})
	}
}

// flushChunk writes the queued samples to mdat under the muxer lock and
// records the offset of the first one, per §4.3's addSample_l /
// addLengthPrefixedSample_l split.
func (t *track) flushChunk() {
	if len(t.chunkSamples) == 0 {
		return
	}

	t.mux.mu.Lock()
	var firstOffset int64
	for i, p := range t.chunkSamples {
		var off int64
		var err error
		if t.format.MediaType == MediaAVC {
			off, err = t.mux.addLengthPrefixedSample_l(p)
		} else {
			off, err = t.mux.addSample_l(p)
		}
		if err != nil {
			t.mux.mu.Unlock()
			panic(fmt.Errorf("track %d: write sample: %w", t.trackID, err))
		}
		if i == 0 {
			firstOffset = off
		}
	}
	t.mux.mu.Unlock()

	t.chunkOffsets = append(t.chunkOffsets, firstOffset)
	t.chunkSamples = t.chunkSamples[:0]
}

// finish implements the loop-exit bullets of §4.3: flush any residual
// chunk, append the final stts entry, mark EOS, and fire
// STOP_PREMATURELY when the source produced nothing at all.
func (t *track) finish() {
	if len(t.chunkSamples) > 0 {
		t.pushStscIfChanged(len(t.chunkSamples))
		t.flushChunk()
	}
	t.finalizeStts()
	t.eos = true

	if len(t.sampleInfos) == 0 {
		t.mux.notifier.Notify(Event{Kind: EventStopPrematurely, TrackID: t.trackID})
	}
	t.source.Stop()
}

func (t *track) finalizeStts() {
	n := len(t.sampleInfos)
	switch {
	case n == 0:
		return
	case n == 1:
		t.sttsEntries = append(t.sttsEntries, mp4.SttsEntry{SampleCount: 1, Duration: 0})
	default:
		t.sttsEntries[len(t.sttsEntries)-1].SampleCount++
	}
}

// durationUs is this track's estimated media duration since its first
// sample, used by the muxer's duration-limit check.
func (t *track) durationUs() int64 {
	if !t.haveFirstTimestamp {
		return 0
	}
	return t.maxTimestampUs - t.firstTimestampUs
}

// durationMs is the duration written into tkhd/mdhd/mvhd, per §4.2/§4.3's
// getDurationUs()/1000. It reuses durationUs rather than a second,
// independent duration definition — see DESIGN.md's resolved Open
// Question for why it is measured from the first sample rather than
// taken from the raw maximum timestamp.
func (t *track) durationMs() uint32 {
	return uint32(t.durationUs() / 1000)
}

func (t *track) sizes() []uint32 {
	sizes := make([]uint32, len(t.sampleInfos))
	for i, s := range t.sampleInfos {
		sizes[i] = s.size
	}
	return sizes
}

// writeTrakBox emits the full `trak` tree described in §4.3's trak
// table: tkhd, an optional edts>elst for a nonzero start offset, and the
// mdia subtree down to stbl's five-or-six sample tables.
func (t *track) writeTrakBox(w *mp4.Writer) error {
	if err := w.BeginBox("trak"); err != nil {
		return err
	}

	startOffsetMs := uint32((t.startTimestampOffsetUs + 500) / 1000)
	durationMs := t.durationMs()

	tkhd := mp4.TkhdParams{
		TrackID:    t.trackID,
		DurationMs: durationMs,
		IsAudio:    t.isAudio,
	}
	if !t.isAudio {
		tkhd.WidthPixels = uint32(t.format.Width)
		tkhd.HeightPixel = uint32(t.format.Height)
	}
	if err := mp4.WriteTkhd(w, tkhd); err != nil {
		return err
	}

	if t.startTimestampOffsetUs != 0 {
		if err := mp4.WriteEdtsSingleOffset(w, startOffsetMs); err != nil {
			return err
		}
	}

	if err := w.BeginBox("mdia"); err != nil {
		return err
	}
	if err := mp4.WriteMdhd(w, 1000, durationMs); err != nil {
		return err
	}
	handlerType := "soun"
	if !t.isAudio {
		handlerType = "vide"
	}
	if err := mp4.WriteHdlr(w, handlerType, t.handlerName); err != nil {
		return err
	}

	if err := w.BeginBox("minf"); err != nil {
		return err
	}
	if t.isAudio {
		if err := mp4.WriteSmhd(w); err != nil {
			return err
		}
	} else {
		if err := mp4.WriteVmhd(w); err != nil {
			return err
		}
	}
	if err := mp4.WriteDinf(w); err != nil {
		return err
	}

	if err := w.BeginBox("stbl"); err != nil {
		return err
	}
	if err := t.writeStsd(w); err != nil {
		return err
	}
	if err := mp4.WriteStts(w, t.sttsEntries); err != nil {
		return err
	}
	if !t.isAudio && len(t.stssEntries) > 0 {
		if err := mp4.WriteStss(w, t.stssEntries); err != nil {
			return err
		}
	}
	if err := mp4.WriteStsz(w, t.sizes(), t.allSamplesSameSize); err != nil {
		return err
	}
	if err := mp4.WriteStsc(w, t.stscEntries); err != nil {
		return err
	}
	if err := mp4.WriteCo64(w, t.chunkOffsets); err != nil {
		return err
	}
	if err := w.EndBox(); err != nil { // stbl
		return err
	}
	if err := w.EndBox(); err != nil { // minf
		return err
	}
	if err := w.EndBox(); err != nil { // mdia
		return err
	}
	return w.EndBox() // trak
}

func (t *track) writeStsd(w *mp4.Writer) error {
	if err := mp4.WriteStsdHeader(w); err != nil {
		return err
	}

	switch t.format.MediaType {
	case MediaAVC:
		if err := mp4.BeginVisualSampleEntry(w, t.fourcc, uint16(t.format.Width), uint16(t.format.Height)); err != nil {
			return err
		}
		if err := mp4.WriteAvcC(w, t.csd); err != nil {
			return err
		}
		if err := w.EndBox(); err != nil {
			return err
		}
	case MediaMPEG4Visual:
		if err := mp4.BeginVisualSampleEntry(w, t.fourcc, uint16(t.format.Width), uint16(t.format.Height)); err != nil {
			return err
		}
		if err := mp4.WriteEsds(w, uint16(t.trackID), mp4.EsdsVisual, t.csd); err != nil {
			return err
		}
		if err := w.EndBox(); err != nil {
			return err
		}
	case MediaH263:
		if err := mp4.BeginVisualSampleEntry(w, t.fourcc, uint16(t.format.Width), uint16(t.format.Height)); err != nil {
			return err
		}
		if err := mp4.WriteD263(w); err != nil {
			return err
		}
		if err := w.EndBox(); err != nil {
			return err
		}
	case MediaAAC:
		if err := mp4.BeginAudioSampleEntry(w, t.fourcc, uint16(t.format.ChannelCount), uint32(t.format.SampleRate)); err != nil {
			return err
		}
		if err := mp4.WriteEsds(w, uint16(t.trackID), mp4.EsdsAudio, t.csd); err != nil {
			return err
		}
		if err := w.EndBox(); err != nil {
			return err
		}
	case MediaAMRNB, MediaAMRWB:
		if err := mp4.BeginAudioSampleEntry(w, t.fourcc, uint16(t.format.ChannelCount), uint32(t.format.SampleRate)); err != nil {
			return err
		}
		if err := w.EndBox(); err != nil {
			return err
		}
	}

	return w.EndBox() // stsd
}
