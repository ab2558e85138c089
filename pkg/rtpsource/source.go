package rtpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"mp4mux/pkg/mp4"
	"mp4mux/pkg/muxer"
)

// h264ClockRateHz is the fixed RTP clock rate RFC 6184 mandates for
// H.264 payloads.
const h264ClockRateHz = 90000

// nalUnitTypeIDR is the NAL unit type of an IDR slice, used to flag a
// depacketized access unit as a sync frame.
const nalUnitTypeIDR = 5

// Source reads H.264-in-RTP packets from a UDP socket, reassembles them
// into Annex-B access units and exposes them as a muxer.Source. Exactly
// one call to Start/Read/Stop sequence is supported, matching the
// producer contract of §6.
type Source struct {
	conn   net.PacketConn
	sps    []byte
	pps    []byte
	width  int
	height int

	depacketizer codecs.H264Packet

	haveBaseTimestamp bool
	baseTimestamp     uint32

	mu        sync.Mutex
	csdSent   bool
	closeOnce sync.Once
}

// New returns a Source that reads RTP packets from conn. sps/pps are the
// raw (start-code-free) parameter set NAL units recovered from the
// session's SDP offer via ParseH264ParameterSets.
func New(conn net.PacketConn, sps, pps []byte, width, height int) *Source {
	return &Source{conn: conn, sps: sps, pps: pps, width: width, height: height}
}

// Start implements muxer.Source. The UDP socket is expected to already
// be bound; Start only arranges for Read to unblock when ctx is done.
func (s *Source) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()
	return nil
}

// Stop implements muxer.Source.
func (s *Source) Stop() {
	s.closeOnce.Do(func() { s.conn.Close() })
}

// Format implements muxer.Source.
func (s *Source) Format() muxer.Format {
	return muxer.Format{MediaType: muxer.MediaAVC, Width: s.width, Height: s.height}
}

// Read implements muxer.Source. The first call always returns the
// declared codec-config frame assembled from the SDP parameter sets, per
// §4.3 case 1; subsequent calls depacketize RTP payloads into access
// units.
func (s *Source) Read(ctx context.Context) (muxer.Buffer, error) {
	s.mu.Lock()
	sendCSD := !s.csdSent
	s.csdSent = true
	s.mu.Unlock()

	if sendCSD {
		blob := append(append(append([]byte{}, mp4.AnnexBStartCode...), s.sps...), mp4.AnnexBStartCode...)
		blob = append(blob, s.pps...)
		return muxer.Buffer{Payload: blob, IsCodecConfig: true}, nil
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return muxer.Buffer{}, io.EOF
			}
			return muxer.Buffer{}, fmt.Errorf("rtpsource: read: %w", err)
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			return muxer.Buffer{}, fmt.Errorf("rtpsource: unmarshal rtp packet: %w", err)
		}

		nalu, err := s.depacketizer.Unmarshal(pkt.Payload)
		if err != nil {
			return muxer.Buffer{}, fmt.Errorf("rtpsource: depacketize: %w", err)
		}
		if len(nalu) == 0 {
			continue // FU-A fragment, not yet a complete access unit
		}

		if !s.haveBaseTimestamp {
			s.haveBaseTimestamp = true
			s.baseTimestamp = pkt.Timestamp
		}
		ptsUs := int64(pkt.Timestamp-s.baseTimestamp) * 1_000_000 / h264ClockRateHz

		return muxer.Buffer{
			Payload:            nalu,
			IsSyncFrame:        isSyncFrame(nalu),
			PresentationTimeUs: ptsUs,
		}, nil
	}
}

// isSyncFrame reports whether the Annex-B access unit nalu carries an
// IDR slice.
func isSyncFrame(nalu []byte) bool {
	idx := 0
	for idx+4 < len(nalu) {
		if nalu[idx] == 0 && nalu[idx+1] == 0 && nalu[idx+2] == 0 && nalu[idx+3] == 1 {
			nalType := nalu[idx+4] & 0x1F
			if nalType == nalUnitTypeIDR {
				return true
			}
			idx += 4
			continue
		}
		idx++
	}
	return false
}
