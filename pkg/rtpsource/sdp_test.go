package rtpsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1;sprop-parameter-sets=Z0LAHtoAqAKa,aM48gA==;profile-level-id=42001e\r\n"

func TestParseH264ParameterSets(t *testing.T) {
	sps, pps, err := ParseH264ParameterSets([]byte(testSDP))
	require.NoError(t, err)
	assert.NotEmpty(t, sps)
	assert.NotEmpty(t, pps)
}

func TestParseH264ParameterSetsMissingFmtp(t *testing.T) {
	sdp := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=stream\r\nt=0 0\r\nm=video 0 RTP/AVP 96\r\n"
	_, _, err := ParseH264ParameterSets([]byte(sdp))
	assert.Error(t, err)
}
