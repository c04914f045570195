package exifmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	markerTEM  = 0x01
)

// APP1 payload limit: 16-bit segment length minus the length field itself
const maxSegmentPayload = 0xFFFF - 2

var exifHeader = []byte("Exif\x00\x00")

var errNotJPEG = errors.New("not a JPEG stream")

type segment struct {
	marker     byte
	standalone bool
	data       []byte
}

// splitJPEG cuts a JPEG stream into the header segments preceding the first scan and
// the tail starting at the SOS (or EOI) marker. The tail is returned as a subslice of
// data and must be written back verbatim.
func splitJPEG(data []byte) ([]segment, []byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, nil, errNotJPEG
	}

	var segs []segment
	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, nil, fmt.Errorf("expected marker at offset %d, got 0x%02X", i, data[i])
		}
		// пропускаем байты-заполнители 0xFF перед маркером
		j := i + 1
		for j < len(data) && data[j] == 0xFF {
			j++
		}
		if j >= len(data) {
			break
		}

		marker := data[j]
		switch {
		case marker == markerSOS || marker == markerEOI:
			return segs, data[i:], nil
		case marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7):
			segs = append(segs, segment{marker: marker, standalone: true})
			i = j + 1
			continue
		}

		if j+3 > len(data) {
			break
		}
		n := int(binary.BigEndian.Uint16(data[j+1 : j+3]))
		if n < 2 || j+1+n > len(data) {
			return nil, nil, fmt.Errorf("segment 0x%02X at offset %d overruns the stream", marker, i)
		}
		segs = append(segs, segment{marker: marker, data: data[j+3 : j+1+n]})
		i = j + 1 + n
	}

	return nil, nil, errors.New("truncated JPEG: no scan data")
}

func isExifSegment(s segment) bool {
	return s.marker == markerAPP1 && bytes.HasPrefix(s.data, exifHeader)
}

// findExif returns the TIFF part of the first Exif APP1 segment, or nil.
func findExif(segs []segment) []byte {
	for _, s := range segs {
		if isExifSegment(s) {
			return s.data[len(exifHeader):]
		}
	}
	return nil
}

// Insert puts tiffData as an Exif APP1 segment into a JPEG stream right after SOI
// (after a leading APP0/JFIF if present), dropping any Exif APP1 the stream had.
// Everything from the first SOS marker on is copied byte for byte.
func Insert(jpegData, tiffData []byte) ([]byte, error) {
	segs, tail, err := splitJPEG(jpegData)
	if err != nil {
		return nil, err
	}

	app1 := make([]byte, 0, len(exifHeader)+len(tiffData))
	app1 = append(app1, exifHeader...)
	app1 = append(app1, tiffData...)
	if len(app1) > maxSegmentPayload {
		return nil, fmt.Errorf("EXIF block of %d bytes does not fit into APP1", len(app1))
	}

	var out bytes.Buffer
	out.Grow(len(jpegData) + len(app1) + 4)
	out.Write([]byte{0xFF, markerSOI})

	inserted := false
	for _, s := range segs {
		if isExifSegment(s) {
			continue
		}
		if !inserted && s.marker != markerAPP0 {
			writeSegment(&out, segment{marker: markerAPP1, data: app1})
			inserted = true
		}
		writeSegment(&out, s)
	}
	if !inserted {
		writeSegment(&out, segment{marker: markerAPP1, data: app1})
	}

	out.Write(tail)
	return out.Bytes(), nil
}

func writeSegment(buf *bytes.Buffer, s segment) {
	buf.WriteByte(0xFF)
	buf.WriteByte(s.marker)
	if s.standalone {
		return
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s.data)+2))
	buf.Write(length[:])
	buf.Write(s.data)
}
