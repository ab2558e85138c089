// Package rtpsource implements an example muxer.Source: an H.264-in-RTP
// depacketizer fed by a UDP socket, its parameter sets recovered from an
// SDP offer. Nothing in pkg/muxer depends on this package; it exists to
// demonstrate the "media-source producer" collaborator §1 treats as
// external, and is wired up by cmd/mp4mux.
package rtpsource

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// ParseH264ParameterSets recovers the SPS/PPS pair carried in the
// sprop-parameter-sets fmtp attribute of an H.264 video media
// description, per RFC 6184 §8.1. It returns raw NAL units with no
// Annex-B start code.
func ParseH264ParameterSets(sessionDescription []byte) (sps, pps []byte, err error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(sessionDescription); err != nil {
		return nil, nil, fmt.Errorf("rtpsource: unmarshal sdp: %w", err)
	}

	for _, media := range sd.MediaDescriptions {
		if media.MediaName.Media != "video" {
			continue
		}
		for _, attr := range media.Attributes {
			if attr.Key != "fmtp" {
				continue
			}
			sps, pps, err = parseFmtp(attr.Value)
			if err != nil {
				continue
			}
			return sps, pps, nil
		}
	}

	return nil, nil, fmt.Errorf("rtpsource: no H.264 sprop-parameter-sets in sdp")
}

// parseFmtp extracts sprop-parameter-sets from an fmtp attribute value
// of the form "<payload type> packetization-mode=1;sprop-parameter-sets=<b64sps>,<b64pps>;...".
func parseFmtp(value string) (sps, pps []byte, err error) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("rtpsource: malformed fmtp attribute %q", value)
	}

	for _, param := range strings.Split(fields[1], ";") {
		param = strings.TrimSpace(param)
		const key = "sprop-parameter-sets="
		if !strings.HasPrefix(param, key) {
			continue
		}
		sets := strings.Split(strings.TrimPrefix(param, key), ",")
		if len(sets) < 2 {
			return nil, nil, fmt.Errorf("rtpsource: sprop-parameter-sets missing pps")
		}
		sps, err = base64.StdEncoding.DecodeString(sets[0])
		if err != nil {
			return nil, nil, fmt.Errorf("rtpsource: decode sps: %w", err)
		}
		pps, err = base64.StdEncoding.DecodeString(sets[1])
		if err != nil {
			return nil, nil, fmt.Errorf("rtpsource: decode pps: %w", err)
		}
		return sps, pps, nil
	}

	return nil, nil, fmt.Errorf("rtpsource: fmtp attribute has no sprop-parameter-sets")
}
