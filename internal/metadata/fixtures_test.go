package metadata

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// Synthetic JPEG/EXIF fixtures
// =============================================================================

const (
	tiffASCII    = 2
	tiffLong     = 4
	tiffRational = 5

	tagDateTime          = 0x0132
	tagExifPointer       = 0x8769
	tagGPSPointer        = 0x8825
	tagDateTimeOriginal  = 0x9003
	tagDateTimeDigitized = 0x9004
	tagImageUniqueID     = 0xA420
	tagGPSLatitudeRef    = 0x0001
	tagGPSLatitude       = 0x0002
	tagGPSLongitudeRef   = 0x0003
	tagGPSLongitude      = 0x0004
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiTag(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: tiffASCII, count: uint32(len(b)), data: b}
}

func rationalTag(tag uint16, vals ...[2]uint32) ifdEntry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = binary.BigEndian.AppendUint32(b, v[0])
		b = binary.BigEndian.AppendUint32(b, v[1])
	}
	return ifdEntry{tag: tag, typ: tiffRational, count: uint32(len(vals)), data: b}
}

func longTag(tag uint16, v uint32) ifdEntry {
	return ifdEntry{tag: tag, typ: tiffLong, count: 1, data: binary.BigEndian.AppendUint32(nil, v)}
}

func ifdLen(entries []ifdEntry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

// encodeIFD lays out one IFD at offset (relative to the TIFF header) with
// its out-of-line values right after it.
func encodeIFD(entries []ifdEntry, offset int) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
	dataOff := offset + 2 + 12*len(entries) + 4
	var head, data []byte
	head = binary.BigEndian.AppendUint16(head, uint16(len(entries)))
	for _, e := range entries {
		head = binary.BigEndian.AppendUint16(head, e.tag)
		head = binary.BigEndian.AppendUint16(head, e.typ)
		head = binary.BigEndian.AppendUint32(head, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head = append(head, v...)
			continue
		}
		head = binary.BigEndian.AppendUint32(head, uint32(dataOff+len(data)))
		data = append(data, e.data...)
		if len(e.data)%2 == 1 {
			data = append(data, 0)
		}
	}
	head = binary.BigEndian.AppendUint32(head, 0)
	return append(head, data...)
}

// buildTIFF returns a big-endian TIFF blob with IFD0 plus optional Exif
// and GPS sub-IFDs linked from it.
func buildTIFF(ifd0, exifIFD, gpsIFD []ifdEntry) []byte {
	ifd0 = append([]ifdEntry(nil), ifd0...)
	exifIdx, gpsIdx := -1, -1
	if len(exifIFD) > 0 {
		exifIdx = len(ifd0)
		ifd0 = append(ifd0, longTag(tagExifPointer, 0))
	}
	if len(gpsIFD) > 0 {
		gpsIdx = len(ifd0)
		ifd0 = append(ifd0, longTag(tagGPSPointer, 0))
	}

	off := 8 + ifdLen(ifd0)
	if exifIdx >= 0 {
		ifd0[exifIdx] = longTag(tagExifPointer, uint32(off))
		off += ifdLen(exifIFD)
	}
	if gpsIdx >= 0 {
		ifd0[gpsIdx] = longTag(tagGPSPointer, uint32(off))
	}

	out := []byte{'M', 'M', 0x00, 0x2A}
	out = binary.BigEndian.AppendUint32(out, 8)
	out = append(out, encodeIFD(ifd0, 8)...)
	if exifIdx >= 0 {
		out = append(out, encodeIFD(exifIFD, len(out))...)
	}
	if gpsIdx >= 0 {
		out = append(out, encodeIFD(gpsIFD, len(out))...)
	}
	return out
}

func appendSegment(b []byte, marker uint16, payload []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, marker)
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)+2))
	return append(b, payload...)
}

// sofPayload is a one-component SOF payload: precision, height, width, components.
func sofPayload(width, height int) []byte {
	p := []byte{8}
	p = binary.BigEndian.AppendUint16(p, uint16(height))
	p = binary.BigEndian.AppendUint16(p, uint16(width))
	return append(p, 1, 1, 0x11, 0)
}

// buildJPEG returns SOI, an optional APP1 Exif segment, a dummy DQT segment,
// a SOF0 segment and EOI.
func buildJPEG(width, height int, tiffData []byte) []byte {
	b := []byte{0xFF, 0xD8}
	if tiffData != nil {
		b = appendSegment(b, 0xFFE1, append([]byte("Exif\x00\x00"), tiffData...))
	}
	b = appendSegment(b, 0xFFDB, []byte{0x00, 0x01, 0x02})
	b = appendSegment(b, 0xFFC0, sofPayload(width, height))
	return append(b, 0xFF, 0xD9)
}

// parisGPS is 48°51'29.6"N 2°17'40.2"E.
func parisGPS() []ifdEntry {
	return []ifdEntry{
		asciiTag(tagGPSLatitudeRef, "N"),
		rationalTag(tagGPSLatitude, [2]uint32{48, 1}, [2]uint32{51, 1}, [2]uint32{296, 10}),
		asciiTag(tagGPSLongitudeRef, "E"),
		rationalTag(tagGPSLongitude, [2]uint32{2, 1}, [2]uint32{17, 1}, [2]uint32{402, 10}),
	}
}

func writeFixture(t *testing.T, dir, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
