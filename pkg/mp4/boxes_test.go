package mp4

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFtyp(t *testing.T) {
	sink := NewMemSink(32)
	w := NewWriter(sink)
	require.NoError(t, WriteFtyp(w))

	buf := sink.Bytes()
	require.Len(t, buf, 20)
	assert.Equal(t, "ftyp", string(buf[4:8]))
	assert.Equal(t, "isom", string(buf[8:12]))
	assert.Equal(t, "isom", string(buf[16:20]))
}

func TestWriteFreeReservesExactSize(t *testing.T) {
	sink := NewMemSink(4096)
	w := NewWriter(sink)
	require.NoError(t, WriteFree(w, 0x0F00))

	buf := sink.Bytes()
	assert.Len(t, buf, 0x0F00)
	size := binary.BigEndian.Uint32(buf[0:4])
	assert.EqualValues(t, 0x0F00, size)
}

func TestMdatHeaderPlaceholderAndPatch(t *testing.T) {
	sink := NewMemSink(64)
	w := NewWriter(sink)

	mdatOffset := w.Pos()
	require.NoError(t, WriteMdatHeaderPlaceholder(w))
	require.NoError(t, w.WriteRaw([]byte{1, 2, 3, 4, 5}))

	mOffset := w.Pos()
	size := uint64(mOffset - mdatOffset)
	require.NoError(t, PatchMdatSize(w, mdatOffset, size))

	buf := sink.Bytes()
	gotSize := binary.BigEndian.Uint32(buf[0:4])
	assert.EqualValues(t, 1, gotSize)
	assert.Equal(t, "mdat", string(buf[4:8]))
	gotLargeSize := binary.BigEndian.Uint64(buf[8:16])
	assert.EqualValues(t, MdatLargeHeaderSize+5, gotLargeSize)
}
