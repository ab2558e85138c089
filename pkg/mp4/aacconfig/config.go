// Package aacconfig decodes just enough of an MPEG-4 AudioSpecificConfig
// to recover channel count and sample rate for diagnostics logging. The
// muxer core treats AAC codec-specific data as an opaque blob (§4.3 case
// 1); this package exists purely so the ambient logging layer can report
// something more useful than a byte count when a track bootstraps.
package aacconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// ErrUnsupportedType is returned for any audio object type other than
// AAC-LC, which is the only one this muxer's ambient logging needs to
// describe.
var ErrUnsupportedType = errors.New("aacconfig: unsupported audio object type")

// ErrInvalidSampleRateIndex is returned for a sample-rate index outside
// the standard table and not the escape value 15.
var ErrInvalidSampleRateIndex = errors.New("aacconfig: invalid sample rate index")

// ErrInvalidChannelConfig is returned for a channel configuration value
// this table does not define.
var ErrInvalidChannelConfig = errors.New("aacconfig: invalid channel configuration")

const audioObjectTypeAACLC = 2

var sampleRates = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// Config is the subset of AudioSpecificConfig this package decodes.
type Config struct {
	SampleRate   int
	ChannelCount int
}

// Decode parses the leading fields of an AudioSpecificConfig blob, per
// ISO/IEC 14496-3 and https://wiki.multimedia.cx/index.php/MPEG-4_Audio.
func Decode(csd []byte) (Config, error) {
	r := bitio.NewReader(bytes.NewReader(csd))

	objectType, err := r.ReadBits(5)
	if err != nil {
		return Config{}, fmt.Errorf("aacconfig: read object type: %w", err)
	}
	if objectType != audioObjectTypeAACLC {
		return Config{}, fmt.Errorf("%w: %d", ErrUnsupportedType, objectType)
	}

	sampleRateIndex, err := r.ReadBits(4)
	if err != nil {
		return Config{}, fmt.Errorf("aacconfig: read sample rate index: %w", err)
	}

	var sampleRate int
	switch {
	case sampleRateIndex <= 12:
		sampleRate = sampleRates[sampleRateIndex]
	case sampleRateIndex == 15:
		freq, err := r.ReadBits(24)
		if err != nil {
			return Config{}, fmt.Errorf("aacconfig: read explicit sample rate: %w", err)
		}
		sampleRate = int(freq)
	default:
		return Config{}, fmt.Errorf("%w: %d", ErrInvalidSampleRateIndex, sampleRateIndex)
	}

	channelConfig, err := r.ReadBits(4)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("aacconfig: truncated config")
		}
		return Config{}, fmt.Errorf("aacconfig: read channel config: %w", err)
	}

	var channelCount int
	switch {
	case channelConfig >= 1 && channelConfig <= 6:
		channelCount = int(channelConfig)
	case channelConfig == 7:
		channelCount = 8
	default:
		return Config{}, fmt.Errorf("%w: %d", ErrInvalidChannelConfig, channelConfig)
	}

	return Config{SampleRate: sampleRate, ChannelCount: channelCount}, nil
}
