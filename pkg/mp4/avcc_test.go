package mp4

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAnnexBSPSPPS(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1E, 0xAB, 0xCD}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	blob := append(append(append([]byte{}, AnnexBStartCode...), sps...), AnnexBStartCode...)
	blob = append(blob, pps...)

	gotSPS, gotPPS, err := SplitAnnexBSPSPPS(blob)
	require.NoError(t, err)
	assert.Equal(t, sps, gotSPS)
	assert.Equal(t, pps, gotPPS)
}

func TestSplitAnnexBSPSPPSMissingLeadingStartCode(t *testing.T) {
	_, _, err := SplitAnnexBSPSPPS([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	assert.ErrorIs(t, err, ErrMalformedAVCConfig)
}

func TestSplitAnnexBSPSPPSMissingSecondStartCode(t *testing.T) {
	blob := append(append([]byte{}, AnnexBStartCode...), []byte{0x67, 0x42, 0x00, 0x1E}...)
	_, _, err := SplitAnnexBSPSPPS(blob)
	assert.ErrorIs(t, err, ErrMalformedAVCConfig)
}

func TestAssembleAVCDecoderConfig(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	got, err := AssembleAVCDecoderConfig(sps, pps)
	require.NoError(t, err)

	want := []byte{0x01, 0x42, 0x80, 0x1E, 0xFF, 0xE1}
	want = append(want, byte(len(sps)>>8), byte(len(sps)))
	want = append(want, sps...)
	want = append(want, 0x01, byte(len(pps)>>8), byte(len(pps)))
	want = append(want, pps...)

	assert.True(t, bytes.Equal(want, got))
	// The exact anomaly-free length: 7+len(sps)+3+len(pps).
	assert.Len(t, got, 7+len(sps)+3+len(pps))
}
