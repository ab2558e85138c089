package muxer

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mp4mux-e2e-*.mp4")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMuxerSingleTrackEndToEnd(t *testing.T) {
	f := newTestFile(t)
	m := New(f)

	csd := []byte{0x12, 0x10} // AAC-LC 44.1kHz stereo AudioSpecificConfig
	buffers := []Buffer{
		{Payload: csd, IsCodecConfig: true, PresentationTimeUs: 0},
		{Payload: []byte{0xAA, 0xBB}, IsSyncFrame: true, PresentationTimeUs: 0},
		{Payload: []byte{0xCC, 0xDD}, IsSyncFrame: true, PresentationTimeUs: 23000},
		{Payload: []byte{0xEE, 0xFF}, IsSyncFrame: true, PresentationTimeUs: 46000},
	}
	src := newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 2, SampleRate: 44100}, buffers)
	m.AddSource(src)

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	require.True(t, src.stopped)

	out, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("ftyp")))
	assert.True(t, bytes.Contains(out, []byte("mdat")))
	assert.True(t, bytes.Contains(out, []byte("moov")))
	assert.True(t, bytes.Contains(out, []byte("mp4a")))
	assert.True(t, bytes.Contains(out, []byte("esds")))
	assert.True(t, bytes.Contains(out, []byte("co64")))

	tr := m.tracks[0]
	require.Len(t, tr.sampleInfos, 3)
	require.Len(t, tr.sttsEntries, 1)
	assert.EqualValues(t, 3, tr.sttsEntries[0].SampleCount)
	assert.EqualValues(t, 23, tr.sttsEntries[0].Duration)
}

func TestMuxerZeroFrameSourceNotifiesStopPrematurely(t *testing.T) {
	f := newTestFile(t)
	rec := &recordingNotifier{}
	m := New(f, WithNotifier(rec))

	src := newFakeSource(Format{MediaType: MediaAMRNB, ChannelCount: 1, SampleRate: 8000}, nil)
	m.AddSource(src)

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	require.Len(t, rec.events, 1)
	assert.Equal(t, EventStopPrematurely, rec.events[0].Kind)
}

func TestMuxerTwoTrackInterleaving(t *testing.T) {
	f := newTestFile(t)
	m := New(f, WithInterleaveDuration(0))

	audioBuffers := []Buffer{
		{Payload: []byte{0x12, 0x10}, IsCodecConfig: true},
		{Payload: []byte{0x01}, IsSyncFrame: true, PresentationTimeUs: 0},
		{Payload: []byte{0x02}, IsSyncFrame: true, PresentationTimeUs: 20000},
	}
	videoBuffers := []Buffer{
		{Payload: []byte{0x67, 0x42, 0x00, 0x1E}, PresentationTimeUs: 0},
		{Payload: []byte{0x68, 0xCE, 0x3C, 0x80}, PresentationTimeUs: 0},
		{Payload: []byte{0x00, 0x00, 0x00, 0x01, 0xAA}, IsSyncFrame: true, PresentationTimeUs: 0},
		{Payload: []byte{0x00, 0x00, 0x00, 0x01, 0xBB}, PresentationTimeUs: 33000},
	}

	m.AddSource(newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 1, SampleRate: 8000}, audioBuffers))
	m.AddSource(newFakeSource(Format{MediaType: MediaAVC, Width: 320, Height: 240}, videoBuffers))

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	require.Len(t, m.tracks, 2)
	assert.Len(t, m.tracks[0].sampleInfos, 2)
	assert.Len(t, m.tracks[1].sampleInfos, 2)
	assert.Len(t, m.tracks[1].stssEntries, 1)

	out, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("avc1")))
	assert.True(t, bytes.Contains(out, []byte("avcC")))
	assert.True(t, bytes.Contains(out, []byte("mp4a")))
}

func TestMuxerStartTwiceFails(t *testing.T) {
	f := newTestFile(t)
	m := New(f)
	m.AddSource(newFakeSource(Format{MediaType: MediaAMRNB, ChannelCount: 1, SampleRate: 8000}, nil))

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	require.NoError(t, m.Stop())
}

func TestMuxerStartWithNoTracksFails(t *testing.T) {
	f := newTestFile(t)
	m := New(f)
	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoTracks)
}

// TestMuxerMoovSpillWhenReservationTooSmall is §8 scenario 5: a
// reservation too small for the assembled moov forces the spill path,
// after which the file is no longer streamable but moov still lands
// after mdat and the reservation stays a plain `free` box.
func TestMuxerMoovSpillWhenReservationTooSmall(t *testing.T) {
	f := newTestFile(t)
	m := New(f, WithMoovReservation(0x100))

	buffers := []Buffer{{Payload: []byte{0x12, 0x10}, IsCodecConfig: true}}
	for i := 0; i < 100; i++ {
		buffers = append(buffers, Buffer{
			Payload:            []byte{byte(i)},
			IsSyncFrame:        true,
			PresentationTimeUs: int64(i) * 20000,
		})
	}
	src := newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 1, SampleRate: 8000}, buffers)
	m.AddSource(src)

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	assert.False(t, m.Streamable())

	out, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("free")))
	moovIdx := bytes.Index(out, []byte("moov"))
	mdatIdx := bytes.Index(out, []byte("mdat"))
	require.True(t, moovIdx >= 0 && mdatIdx >= 0)
	assert.Greater(t, moovIdx, mdatIdx)
}

func TestMuxerMoovFitsReservationStaysStreamable(t *testing.T) {
	f := newTestFile(t)
	m := New(f)

	buffers := []Buffer{
		{Payload: []byte{0x12, 0x10}, IsCodecConfig: true},
		{Payload: []byte{0xAA}, IsSyncFrame: true, PresentationTimeUs: 0},
	}
	m.AddSource(newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 1, SampleRate: 8000}, buffers))

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	assert.True(t, m.Streamable())

	out, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	moovIdx := bytes.Index(out, []byte("moov"))
	mdatIdx := bytes.Index(out, []byte("mdat"))
	require.True(t, moovIdx >= 0 && mdatIdx >= 0)
	assert.Less(t, moovIdx, mdatIdx)
}

// TestMuxerFileSizeLimitReachedMidStream is §8 scenario 4: once the
// estimated output size would cross the configured limit, the track
// notifies MAX_FILESIZE_REACHED and stops accepting further samples,
// but Stop still finalizes a valid file.
func TestMuxerFileSizeLimitReachedMidStream(t *testing.T) {
	f := newTestFile(t)
	rec := &recordingNotifier{}
	m := New(f, WithFileSizeLimit(defaultMoovReservationBytes+50), WithNotifier(rec))

	buffers := []Buffer{{Payload: []byte{0x12, 0x10}, IsCodecConfig: true}}
	for i := 0; i < 20; i++ {
		buffers = append(buffers, Buffer{
			Payload:            []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE},
			IsSyncFrame:        true,
			PresentationTimeUs: int64(i) * 20000,
		})
	}
	src := newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 1, SampleRate: 8000}, buffers)
	m.AddSource(src)

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	require.Len(t, rec.events, 1)
	assert.Equal(t, EventMaxFilesizeReached, rec.events[0].Kind)
	assert.Less(t, len(m.tracks[0].sampleInfos), 20)

	out, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("moov")))
}

// TestMuxerDurationLimitReachedMidStream is the duration-limit half of
// §8 scenario 4.
func TestMuxerDurationLimitReachedMidStream(t *testing.T) {
	f := newTestFile(t)
	rec := &recordingNotifier{}
	m := New(f, WithDurationLimit(50000), WithNotifier(rec))

	buffers := []Buffer{{Payload: []byte{0x12, 0x10}, IsCodecConfig: true}}
	for i := 0; i < 20; i++ {
		buffers = append(buffers, Buffer{
			Payload:            []byte{0xAA},
			IsSyncFrame:        true,
			PresentationTimeUs: int64(i) * 20000,
		})
	}
	src := newFakeSource(Format{MediaType: MediaAAC, ChannelCount: 1, SampleRate: 8000}, buffers)
	m.AddSource(src)

	require.NoError(t, m.Start(context.Background()))
	m.wg.Wait()
	require.NoError(t, m.Stop())

	require.Len(t, rec.events, 1)
	assert.Equal(t, EventMaxDurationReached, rec.events[0].Kind)
	assert.Less(t, len(m.tracks[0].sampleInfos), 20)
}
