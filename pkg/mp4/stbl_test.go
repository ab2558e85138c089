package mp4

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStszDefaultSizeForm(t *testing.T) {
	sink := NewMemSink(64)
	w := NewWriter(sink)

	require.NoError(t, WriteStsz(w, []uint32{100, 100, 100}, true))

	buf := sink.Bytes()
	// size(4) + type(4) + fullbox(4) + sampleSize(4) + sampleCount(4), no per-sample table.
	require.Len(t, buf, 20)
	sampleSize := binary.BigEndian.Uint32(buf[12:16])
	sampleCount := binary.BigEndian.Uint32(buf[16:20])
	assert.EqualValues(t, 100, sampleSize)
	assert.EqualValues(t, 3, sampleCount)
}

func TestWriteStszVariableSizeForm(t *testing.T) {
	sink := NewMemSink(64)
	w := NewWriter(sink)

	require.NoError(t, WriteStsz(w, []uint32{10, 20, 30}, false))

	buf := sink.Bytes()
	require.Len(t, buf, 12+4+4+3*4)
	sampleSize := binary.BigEndian.Uint32(buf[12:16])
	assert.EqualValues(t, 0, sampleSize)
	sizes := []uint32{
		binary.BigEndian.Uint32(buf[20:24]),
		binary.BigEndian.Uint32(buf[24:28]),
		binary.BigEndian.Uint32(buf[28:32]),
	}
	assert.Equal(t, []uint32{10, 20, 30}, sizes)
}

func TestWriteCo64Is64Bit(t *testing.T) {
	sink := NewMemSink(64)
	w := NewWriter(sink)

	offsets := []int64{16, 5000000000}
	require.NoError(t, WriteCo64(w, offsets))

	buf := sink.Bytes()
	require.Len(t, buf, 12+4+2*8)
	got0 := binary.BigEndian.Uint64(buf[16:24])
	got1 := binary.BigEndian.Uint64(buf[24:32])
	assert.EqualValues(t, offsets[0], got0)
	assert.EqualValues(t, offsets[1], got1)
}

func TestWriteSttsExpandsToDeltaSequence(t *testing.T) {
	sink := NewMemSink(64)
	w := NewWriter(sink)

	entries := []SttsEntry{{SampleCount: 2, Duration: 23}, {SampleCount: 1, Duration: 0}}
	require.NoError(t, WriteStts(w, entries))

	var expanded []uint32
	for _, e := range entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			expanded = append(expanded, e.Duration)
		}
	}
	assert.Equal(t, []uint32{23, 23, 0}, expanded)
}
