// Package muxer implements the File Writer/Muxer and Track Pipeline
// components: the per-track sample ingestion pipeline, chunk
// interleaving, sample-table bookkeeping and the mdat/moov file
// lifecycle built on top of pkg/mp4's box primitives.
package muxer

import "context"

// MediaType identifies the compressed elementary stream carried by a
// track, per §1's supported codec list.
type MediaType uint8

// Supported media types.
const (
	MediaH263 MediaType = iota
	MediaMPEG4Visual
	MediaAVC
	MediaAMRNB
	MediaAMRWB
	MediaAAC
)

func (m MediaType) isVideo() bool {
	return m == MediaH263 || m == MediaMPEG4Visual || m == MediaAVC
}

// Format is the static per-track metadata a Source reports once, before
// any frames are read. Width/Height apply to video tracks,
// ChannelCount/SampleRate to audio tracks.
type Format struct {
	MediaType    MediaType
	Width        int
	Height       int
	ChannelCount int
	SampleRate   int
}

// Buffer is a single compressed frame plus the metadata the sample loop
// needs, per the producer contract of §6: MIME type is implied by the
// track's Format, so a Buffer only carries the per-frame fields.
type Buffer struct {
	Payload            []byte
	IsSyncFrame        bool
	IsCodecConfig      bool
	PresentationTimeUs int64
}

// Source is the external media-source producer collaborator of §1:
// "referenced only by interface" — no implementation ships in the muxer
// core. pkg/rtpsource supplies one concrete example adapter.
type Source interface {
	// Start begins producing frames. It must return once the source is
	// ready to be Read from, or with an error if it could not start.
	Start(ctx context.Context) error
	// Stop releases the source's resources. Called at most once, after
	// the last Read.
	Stop()
	// Format returns the track's static metadata. Called once, before
	// the first Read.
	Format() Format
	// Read blocks until a frame is available, ctx is done, or the
	// source reaches end-of-stream (returned as io.EOF). There is no
	// forcible cancellation of a pending Read: ctx must be honored by
	// the source's own implementation for cancellation to be timely.
	Read(ctx context.Context) (Buffer, error)
}
