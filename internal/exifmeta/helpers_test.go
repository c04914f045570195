package exifmeta

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

const (
	testMake     = "Acme"
	testDateTime = "2024:01:02 03:04:05"
)

var testThumb = []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

type tiffWriter struct {
	order binary.ByteOrder
	buf   bytes.Buffer
}

func (w *tiffWriter) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *tiffWriter) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *tiffWriter) entry(tag, typ uint16, count, value uint32) {
	w.u16(tag)
	w.u16(typ)
	w.u32(count)
	w.u32(value)
}

// shortEntry пишет SHORT с выравниванием влево, как того требует TIFF
func (w *tiffWriter) shortEntry(tag uint16, v uint16) {
	w.u16(tag)
	w.u16(TypeShort)
	w.u32(1)
	w.u16(v)
	w.u16(0)
}

// buildTIFF assembles an EXIF payload by hand: IFD0{Make, Orientation=6, ExifPointer},
// Exif{DateTimeOriginal} and, when thumb is set, IFD1{Compression, Orientation=6, thumbnail}.
func buildTIFF(order binary.ByteOrder, thumb []byte) []byte {
	w := &tiffWriter{order: order}

	const (
		ifd0Off = 8
		makeOff = ifd0Off + 2 + 12*3 + 4
		exifOff = makeOff + len(testMake) + 2 // "Acme\0" + выравнивание
		dtOff   = exifOff + 2 + 12 + 4
		ifd1Off = dtOff + len(testDateTime) + 1
	)
	thumbOff := ifd1Off + 2 + 12*4 + 4

	if order == binary.LittleEndian {
		w.buf.WriteString("II")
	} else {
		w.buf.WriteString("MM")
	}
	w.u16(42)
	w.u32(ifd0Off)

	// IFD0
	w.u16(3)
	w.entry(0x010F, TypeASCII, uint32(len(testMake)+1), makeOff)
	w.shortEntry(TagOrientation, 6)
	w.entry(tagExifPointer, TypeLong, 1, uint32(exifOff))
	if thumb != nil {
		w.u32(uint32(ifd1Off))
	} else {
		w.u32(0)
	}
	w.buf.WriteString(testMake + "\x00\x00")

	// Exif
	w.u16(1)
	w.entry(0x9003, TypeASCII, uint32(len(testDateTime)+1), uint32(dtOff))
	w.u32(0)
	w.buf.WriteString(testDateTime + "\x00")

	if thumb == nil {
		return w.buf.Bytes()
	}

	// IFD1
	w.u16(4)
	w.shortEntry(0x0103, 6)
	w.shortEntry(TagOrientation, 6)
	w.entry(tagThumbOffset, TypeLong, 1, uint32(thumbOff))
	w.entry(tagThumbLength, TypeLong, 1, uint32(len(thumb)))
	w.u32(0)
	w.buf.Write(thumb)

	return w.buf.Bytes()
}

// plainJPEG - JPEG из стандартного энкодера, без APP-сегментов
func plainJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 15), G: uint8(y * 30), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func jpegWithExif(t *testing.T, tiffData []byte) []byte {
	t.Helper()

	out, err := Insert(plainJPEG(t), tiffData)
	require.NoError(t, err)
	return out
}

// withSegment вставляет произвольный сегмент сразу после SOI
func withSegment(data []byte, marker byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(data[:2])
	writeSegment(&buf, segment{marker: marker, data: payload})
	buf.Write(data[2:])
	return buf.Bytes()
}

func scanTail(t *testing.T, data []byte) []byte {
	t.Helper()

	_, tail, err := splitJPEG(data)
	require.NoError(t, err)
	return tail
}
