package metadata

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Structure of a JPEG file is:
//
//	FFD8 [FFxx SSSS DD...] [FFyy SSSS DD...] ...
//
// where SSSS is the 16 bit big-endian segment length, including itself.
// A Start-Of-Frame segment FFCn carries [PP HHHH WWWW ...]: 8 bit sample
// precision, then height and width.
const markerSOI = 0xFFD8

func isMarker(m uint16) bool { return m&0xFF00 == 0xFF00 }

func isSOF(m uint16) bool { return m >= 0xFFC0 && m <= 0xFFC3 }

type segmentHeader struct {
	Marker uint16
	Length uint16
}

type frameHeader struct {
	Precision uint8
	Height    uint16
	Width     uint16
}

// ParseDimensions reads pixel dimensions from the JPEG marker stream.
// It fails with ErrMalformedImage when the stream has no start of image,
// holds a non-marker where a segment should start, or ends before a
// Start-Of-Frame segment is found.
func ParseDimensions(r io.Reader) (width, height int, err error) {
	br := bufio.NewReader(r)

	var soi uint16
	if err := binary.Read(br, binary.BigEndian, &soi); err != nil {
		return 0, 0, malformed("missing start of image marker")
	}
	if soi != markerSOI {
		return 0, 0, malformed("bad start of image marker 0x%04x", soi)
	}

	for {
		var seg segmentHeader
		if err := binary.Read(br, binary.BigEndian, &seg); err != nil {
			return 0, 0, malformed("no start of frame marker before end of file")
		}
		if !isMarker(seg.Marker) {
			return 0, 0, malformed("unexpected data 0x%04x where a marker was expected", seg.Marker)
		}
		if isSOF(seg.Marker) {
			var frame frameHeader
			if err := binary.Read(br, binary.BigEndian, &frame); err != nil {
				return 0, 0, malformed("truncated start of frame segment")
			}
			return int(frame.Width), int(frame.Height), nil
		}
		if seg.Length < 2 {
			return 0, 0, malformed("segment 0x%04x has invalid length %d", seg.Marker, seg.Length)
		}
		if _, err := io.CopyN(io.Discard, br, int64(seg.Length)-2); err != nil {
			return 0, 0, malformed("truncated segment 0x%04x", seg.Marker)
		}
	}
}
