package muxer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"mp4mux/pkg/log"
	"mp4mux/pkg/mp4"
)

// defaultMoovReservationBytes is the size of the `free` box reserved
// after `ftyp`, per §4.2 step 3. If the assembled `moov` does not fit,
// Stop spills to writing it directly after mdat instead (§9's "moov
// spill").
const defaultMoovReservationBytes = 32 * 1024

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("muxer: already started")

// ErrNotStarted is returned by Stop when called before Start.
var ErrNotStarted = errors.New("muxer: not started")

// ErrNoTracks is returned by Start when no source was added.
var ErrNoTracks = errors.New("muxer: no tracks added")

// Muxer is the File Writer / Muxer Lifecycle component of §4.2. One
// Muxer writes exactly one output file across the lifetime of a single
// Start/Stop pair; every field it exposes to a Track Pipeline goroutine
// is guarded by mu.
type Muxer struct {
	file *os.File
	w    *mp4.Writer

	mdatOffset       int64
	freeBoxOffset    int64
	reservedMoovSize int64
	streamable       bool

	interleaveDurationUs int64
	fileSizeLimitBytes   int64
	durationLimitUs      int64

	locationLatLong *[2]float32

	tracks   []*track
	nextTID  uint32
	notifier Notifier
	logger   *log.Logger

	mu               sync.Mutex
	startTimestampUs int64
	started          bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// Option configures a Muxer at construction time.
type Option func(*Muxer)

// WithInterleaveDuration sets the chunk-interleave window, per §4.3's
// chunking bullet. Zero (the default) makes every sample its own chunk.
func WithInterleaveDuration(usec int64) Option {
	return func(m *Muxer) { m.interleaveDurationUs = usec }
}

// WithFileSizeLimit stops the session once the estimated output size
// would exceed limit bytes.
func WithFileSizeLimit(limit int64) Option {
	return func(m *Muxer) { m.fileSizeLimitBytes = limit }
}

// WithDurationLimit stops the session once any track's estimated
// duration would exceed limit.
func WithDurationLimit(limit int64) Option {
	return func(m *Muxer) { m.durationLimitUs = limit }
}

// WithMoovReservation overrides the size of the `free` box reserved
// after `ftyp` for the buffered `moov` (§4.2 step 2's "choose
// reservedMoovSize"). The default is defaultMoovReservationBytes; a
// caller can shrink it to force the moov-spill path of §8 scenario 5.
func WithMoovReservation(bytes int64) Option {
	return func(m *Muxer) { m.reservedMoovSize = bytes }
}

// WithNotifier installs the Notifier events are delivered to. The
// default is NopNotifier.
func WithNotifier(n Notifier) Option {
	return func(m *Muxer) { m.notifier = n }
}

// WithLogger installs the ambient structured logger. The default is a
// started NewMockLogger with no subscribers, which discards every event.
func WithLogger(l *log.Logger) Option {
	return func(m *Muxer) { m.logger = l }
}

// WithLocation records a GPS fix to embed as a `udta>©xyz` ISO-6709
// string when the file is finalized, per the supplemented geodata
// feature.
func WithLocation(latitude, longitude float32) Option {
	return func(m *Muxer) {
		m.locationLatLong = &[2]float32{latitude, longitude}
	}
}

// New returns a Muxer that will write to file. file must be a regular,
// writable, seekable file positioned at offset 0; the Muxer takes no
// ownership of closing it beyond what Stop does.
func New(file *os.File, opts ...Option) *Muxer {
	m := &Muxer{
		file:             file,
		reservedMoovSize: defaultMoovReservationBytes,
		notifier:         NopNotifier{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		// An unstarted Logger blocks every Msg call; the default one is
		// started so that its events are fanned out to no one.
		m.logger = log.NewMockLogger()
		_ = m.logger.Start(context.Background())
	}
	return m
}

// AddSource registers a track backed by src. Must be called before
// Start. Returns the assigned track ID (1-based, per ISO-BMFF
// convention).
func (m *Muxer) AddSource(src Source) uint32 {
	m.nextTID++
	t := newTrack(m, m.nextTID, src, m.logger)
	m.tracks = append(m.tracks, t)
	return t.trackID
}

// PauseSource pauses the track pipeline for trackID without tearing
// down its accumulated sample tables (supplemented pause/resume
// feature, §9 SUPPLEMENTED FEATURES).
func (m *Muxer) PauseSource(trackID uint32) {
	if t := m.trackByID(trackID); t != nil {
		t.setPaused(true)
	}
}

// ResumeSource resumes a previously paused track.
func (m *Muxer) ResumeSource(trackID uint32) {
	if t := m.trackByID(trackID); t != nil {
		t.setPaused(false)
	}
}

func (m *Muxer) trackByID(trackID uint32) *track {
	for _, t := range m.tracks {
		if t.trackID == trackID {
			return t
		}
	}
	return nil
}

// Start implements §4.2's startup sequence: ftyp, the moov reservation,
// the mdat placeholder header, then one goroutine per track pipeline.
// If any track's Source fails to start, every already-started source is
// stopped and the error is returned.
func (m *Muxer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(m.tracks) == 0 {
		m.mu.Unlock()
		return ErrNoTracks
	}
	m.started = true
	m.mu.Unlock()

	sink := mp4.NewFileSink(m.file, 0)
	m.w = mp4.NewWriter(sink)

	if err := mp4.WriteFtyp(m.w); err != nil {
		return fmt.Errorf("muxer: write ftyp: %w", err)
	}

	m.freeBoxOffset = m.w.Pos()
	if err := mp4.WriteFree(m.w, m.reservedMoovSize); err != nil {
		return fmt.Errorf("muxer: reserve moov: %w", err)
	}

	m.mdatOffset = m.w.Pos()
	if err := mp4.WriteMdatHeaderPlaceholder(m.w); err != nil {
		return fmt.Errorf("muxer: write mdat header: %w", err)
	}

	trackCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for i, t := range m.tracks {
		if err := t.source.Start(trackCtx); err != nil {
			for _, s := range m.tracks[:i] {
				s.source.Stop()
			}
			cancel()
			return fmt.Errorf("muxer: start track %d source: %w", t.trackID, err)
		}
	}
	for _, t := range m.tracks {
		m.wg.Add(1)
		go func(t *track) {
			defer m.wg.Done()
			t.run(trackCtx)
		}(t)
	}

	return nil
}

// Streamable reports whether the finalized file has `moov` before
// `mdat`, per §3's derived streamable flag. It is only meaningful after
// Stop has returned; before that it reports false.
func (m *Muxer) Streamable() bool {
	return m.streamable
}

// Wait blocks until every track pipeline has exited on its own, whether
// by source EOF or by a muxer limit tripping. Callers that want to run
// until sources are naturally exhausted rather than on an external
// cancellation should select on Wait and their own shutdown signal.
func (m *Muxer) Wait() {
	m.wg.Wait()
}

// Stop implements §4.2's shutdown sequence: cancel every track pipeline,
// join them, back-patch the mdat size, assemble and write `moov`
// (buffered, spilling to a direct file write if it outgrows the
// reservation), then pad the rest of the reservation with a `free` box.
func (m *Muxer) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	for _, t := range m.tracks {
		t.setPaused(false) // wake any pipeline blocked in waitIfPaused
	}
	m.wg.Wait()

	mdatEnd := m.w.Pos()
	mdatSize := uint64(mdatEnd - m.mdatOffset)
	if err := mp4.PatchMdatSize(m.w, m.mdatOffset, mdatSize); err != nil {
		return fmt.Errorf("muxer: patch mdat size: %w", err)
	}

	if err := m.writeMoov(); err != nil {
		return fmt.Errorf("muxer: write moov: %w", err)
	}

	return m.file.Sync()
}

// writeMoov assembles `moov` into a MemSink first (§9 "back-patched box
// sizes vs. buffered moov"), then either copies it into the reservation
// after ftyp or, if it overflowed the reservation, spills to writing it
// directly at the current end of file and lets the original reservation
// become one plain `free` box.
func (m *Muxer) writeMoov() error {
	memSink := mp4.NewMemSink(int(m.reservedMoovSize))
	memWriter := mp4.NewWriter(memSink)

	if err := m.writeMoovBody(memWriter); err != nil {
		return err
	}

	moovBytes := memSink.Bytes()

	if int64(len(moovBytes)) <= m.reservedMoovSize {
		if _, err := m.file.WriteAt(moovBytes, m.freeBoxOffset); err != nil {
			return fmt.Errorf("write moov into reservation: %w", err)
		}
		remaining := m.reservedMoovSize - int64(len(moovBytes))
		if remaining > 0 {
			padSink := mp4.NewFileSink(m.file, m.freeBoxOffset+int64(len(moovBytes)))
			padWriter := mp4.NewWriter(padSink)
			if remaining >= 8 {
				if err := mp4.WriteFree(padWriter, remaining); err != nil {
					return fmt.Errorf("write moov padding: %w", err)
				}
			}
		}
		m.streamable = true
		return nil
	}

	// Spill (§4.1 "Memory-to-file spill", §8 scenario 5): the reservation
	// stays a `free` box of its original size (already on disk, correctly
	// sized), and moov is appended after mdat instead. The file is still
	// valid ISO-BMFF, just no longer streamable.
	end := m.w.Pos()
	fileSink := mp4.NewFileSink(m.file, end)
	if err := fileSink.WriteRaw(moovBytes); err != nil {
		return fmt.Errorf("write spilled moov: %w", err)
	}
	m.w.SetSink(fileSink)
	m.streamable = false
	return nil
}

func (m *Muxer) writeMoovBody(w *mp4.Writer) error {
	if err := w.BeginBox("moov"); err != nil {
		return err
	}

	durationMs := uint32(0)
	for _, t := range m.tracks {
		if d := t.durationMs(); d > durationMs {
			durationMs = d
		}
	}

	if err := mp4.WriteMvhd(w, durationMs, m.nextTID+1); err != nil {
		return err
	}
	for _, t := range m.tracks {
		if err := t.writeTrakBox(w); err != nil {
			return err
		}
	}
	if m.locationLatLong != nil {
		if err := writeUdtaLocation(w, m.locationLatLong[0], m.locationLatLong[1]); err != nil {
			return err
		}
	}
	return w.EndBox() // moov
}

// setStartTimestamp records ts as the session's start timestamp on a
// first-writer-wins basis (§4.3/§4.5's mutual-exclusion contract) and
// returns whatever value ended up recorded, whether or not this call
// won the race.
func (m *Muxer) setStartTimestamp(ts int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startTimestampUs == 0 {
		m.startTimestampUs = ts
	}
	return m.startTimestampUs
}

// addSample_l appends payload to `mdat` verbatim and returns the offset
// it was written at. Caller must hold mu.
func (m *Muxer) addSample_l(payload []byte) (int64, error) {
	off := m.w.Pos()
	if err := m.w.WriteRaw(payload); err != nil {
		return 0, err
	}
	return off, nil
}

// addLengthPrefixedSample_l appends a 4-byte big-endian length prefix
// followed by payload, the on-disk form AVC access units use in `mdat`.
// Caller must hold mu.
func (m *Muxer) addLengthPrefixedSample_l(payload []byte) (int64, error) {
	off := m.w.Pos()
	if err := m.w.WriteI32(uint32(len(payload))); err != nil {
		return 0, err
	}
	if err := m.w.WriteRaw(payload); err != nil {
		return 0, err
	}
	return off, nil
}

func (m *Muxer) exceedsFileSizeLimit() bool {
	if m.fileSizeLimitBytes == 0 {
		return false
	}
	var total int64
	for _, t := range m.tracks {
		total += t.estimatedSizeBytes
	}
	// §4.2: reservedMoovSize + Σ track.estimatedSize >= limit.
	return m.reservedMoovSize + total >= m.fileSizeLimitBytes
}

func (m *Muxer) exceedsFileDurationLimit() bool {
	if m.durationLimitUs == 0 {
		return false
	}
	for _, t := range m.tracks {
		if t.durationUs() >= m.durationLimitUs {
			return true
		}
	}
	return false
}

// reachedEOS reports whether every track pipeline has finished.
func (m *Muxer) reachedEOS() bool {
	for _, t := range m.tracks {
		if !t.eos {
			return false
		}
	}
	return true
}

// MdatHeaderOverhead is the large-size mdat header length, exported so
// callers estimating file size ahead of Start can account for it.
const MdatHeaderOverhead = mp4.MdatLargeHeaderSize
