package mp4

import (
	"bytes"
	"errors"
	"fmt"
)

// AnnexBStartCode is the 4-byte Annex-B NAL start code prefix.
var AnnexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// ErrMalformedAVCConfig is returned when a blob handed to SplitAnnexBSPSPPS
// does not contain two Annex-B start codes, per §4.4.
var ErrMalformedAVCConfig = errors.New("mp4: malformed avc codec-config: missing second start code")

// SplitAnnexBSPSPPS splits a byte span of the form
// `00 00 00 01 <SPS> 00 00 00 01 <PPS>` into its two NAL units, per §4.4.
// It verifies the leading start code and scans byte-by-byte from offset 4
// for the second one.
func SplitAnnexBSPSPPS(data []byte) (sps, pps []byte, err error) {
	if len(data) < 8 || !bytes.HasPrefix(data, AnnexBStartCode) {
		return nil, nil, fmt.Errorf("%w: leading start code absent", ErrMalformedAVCConfig)
	}

	picParamOffset := -1
	for i := 4; i <= len(data)-4; i++ {
		if bytes.Equal(data[i:i+4], AnnexBStartCode) {
			picParamOffset = i
			break
		}
	}
	if picParamOffset == -1 {
		return nil, nil, fmt.Errorf("%w: second start code absent", ErrMalformedAVCConfig)
	}

	sps = data[4:picParamOffset]
	pps = data[picParamOffset+4:]
	return sps, pps, nil
}

// AVCDecoderConfigurationRecord constants, hard-coded per §4.4/§9 rather
// than parsed from the SPS (see the Open Question decision in DESIGN.md).
const (
	avcConfigurationVersion   = 0x01
	avcProfileIndicationConst = 0x42 // Baseline placeholder.
	avcProfileCompatibility   = 0x80
	avcLevelIndicationConst   = 0x1E // Placeholder.
	avcLengthSizeMinusOne     = 3    // 4-byte NAL length (§9 USE_NALLEN_FOUR, hard-coded).
)

// AssembleAVCDecoderConfig builds the AVCDecoderConfigurationRecord byte
// sequence for `avcC` from a single SPS and single PPS NAL unit, per the
// layout table in §4.4.
//
// The source implementation this spec is drawn from allocates two bytes
// more than it writes (§9's "AVC avcC size anomaly"); this implementation
// follows the design note's recommendation and allocates exactly the
// written length.
func AssembleAVCDecoderConfig(sps, pps []byte) ([]byte, error) {
	if len(sps) > 0xFFFF || len(pps) > 0xFFFF {
		return nil, fmt.Errorf("mp4: sps/pps too large for 16-bit length field")
	}

	out := make([]byte, 0, 8+len(sps)+3+len(pps))
	out = append(out,
		avcConfigurationVersion,
		avcProfileIndicationConst,
		avcProfileCompatibility,
		avcLevelIndicationConst,
		0xFC|avcLengthSizeMinusOne, // reserved 111111 + lengthSizeMinusOne
		0xE0|1,                     // reserved 111 + numOfSequenceParameterSets=1
		byte(len(sps)>>8), byte(len(sps)),
	)
	out = append(out, sps...)
	out = append(out, 1, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out, nil
}
