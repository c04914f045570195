package exifmeta

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/require"
)

func TestPreserve(t *testing.T) {
	orders := []struct {
		name  string
		order binary.ByteOrder
	}{
		{name: "big endian", order: binary.BigEndian},
		{name: "little endian", order: binary.LittleEndian},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			original := jpegWithExif(t, buildTIFF(tt.order, testThumb))
			encoded := plainJPEG(t)

			out, err := Preserve(original, encoded)
			require.NoError(t, err)

			// сжатые данные картинки не тронуты
			require.Equal(t, scanTail(t, encoded), scanTail(t, out))

			x, err := exif.Decode(bytes.NewReader(out))
			require.NoError(t, err)

			_, err = x.Get(exif.Orientation)
			require.True(t, exif.IsTagNotPresentError(err), "orientation must be stripped, got %v", err)

			tag, err := x.Get(exif.Make)
			require.NoError(t, err)
			val, err := tag.StringVal()
			require.NoError(t, err)
			require.Equal(t, testMake, val)

			tag, err = x.Get(exif.DateTimeOriginal)
			require.NoError(t, err)
			val, err = tag.StringVal()
			require.NoError(t, err)
			require.Equal(t, testDateTime, val)

			block, err := Extract(out)
			require.NoError(t, err)
			require.Equal(t, tt.order, block.Order())
			require.Equal(t, testThumb, block.Thumbnail())
			_, ok := block.Get(IFD1, TagOrientation)
			require.False(t, ok)
			_, ok = block.Get(IFD1, 0x0103)
			require.True(t, ok)
		})
	}
}

func TestPreserveNoExif(t *testing.T) {
	encoded := plainJPEG(t)

	out, err := Preserve(plainJPEG(t), encoded)
	require.NoError(t, err)
	require.Equal(t, encoded, out)
}

func TestPreserveFailures(t *testing.T) {
	encoded := plainJPEG(t)

	tests := []struct {
		name     string
		original []byte
		encoded  []byte
	}{
		{
			name:     "broken EXIF payload",
			original: withSegment(plainJPEG(t), markerAPP1, append([]byte("Exif\x00\x00"), []byte("garbage!")...)),
			encoded:  encoded,
		},
		{
			name:     "original is not a JPEG",
			original: []byte("\x89PNG\r\n\x1a\n"),
			encoded:  encoded,
		},
		{
			name:     "encoded is not a JPEG",
			original: jpegWithExif(t, buildTIFF(binary.BigEndian, nil)),
			encoded:  []byte("not-a-jpeg"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Preserve(tt.original, tt.encoded)
			require.ErrorIs(t, err, model.ErrExif)
			require.Equal(t, tt.encoded, out)
		})
	}
}

func TestInsert(t *testing.T) {
	tiffData := buildTIFF(binary.BigEndian, nil)

	t.Run("after APP0", func(t *testing.T) {
		jfif := []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
		src := withSegment(plainJPEG(t), markerAPP0, jfif)

		out, err := Insert(src, tiffData)
		require.NoError(t, err)

		segs, _, err := splitJPEG(out)
		require.NoError(t, err)
		require.Equal(t, byte(markerAPP0), segs[0].marker)
		require.Equal(t, byte(markerAPP1), segs[1].marker)
		require.True(t, isExifSegment(segs[1]))
	})

	t.Run("replaces old EXIF", func(t *testing.T) {
		src := jpegWithExif(t, buildTIFF(binary.LittleEndian, testThumb))

		out, err := Insert(src, tiffData)
		require.NoError(t, err)

		segs, _, err := splitJPEG(out)
		require.NoError(t, err)

		count := 0
		for _, s := range segs {
			if isExifSegment(s) {
				count++
			}
		}
		require.Equal(t, 1, count)
		require.Equal(t, tiffData, findExif(segs))
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Insert(plainJPEG(t), make([]byte, maxSegmentPayload))
		require.Error(t, err)
	})
}

func TestSplitJPEG(t *testing.T) {
	valid := plainJPEG(t)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "OK", data: valid},
		{name: "fill bytes before marker", data: append([]byte{0xFF, markerSOI, 0xFF, 0xFF}, valid[2:]...)},
		{name: "not a JPEG", data: []byte("GIF89a..."), wantErr: true},
		{name: "too short", data: []byte{0xFF, markerSOI}, wantErr: true},
		{name: "segment overruns", data: []byte{0xFF, markerSOI, 0xFF, markerAPP1, 0x40, 0x00, 0x01}, wantErr: true},
		{name: "no scan", data: []byte{0xFF, markerSOI, 0xFF, markerAPP0, 0x00, 0x02}, wantErr: true},
		{name: "garbage between segments", data: []byte{0xFF, markerSOI, 0x12, 0x34, 0xFF, markerEOI}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, tail, err := splitJPEG(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []byte{0xFF, markerSOS}, tail[:2])
		})
	}
}

func TestBlock(t *testing.T) {
	t.Run("decode and marshal round trip", func(t *testing.T) {
		raw := buildTIFF(binary.LittleEndian, testThumb)

		block, err := DecodeBlock(raw)
		require.NoError(t, err)
		require.Equal(t, uint64(0), block.Version())
		require.Equal(t, []uint16{0x010F, TagOrientation}, block.Tags(IFD0))
		require.Equal(t, []uint16{0x9003}, block.Tags(IFDExif))

		out, err := block.Marshal()
		require.NoError(t, err)

		again, err := DecodeBlock(out)
		require.NoError(t, err)
		for _, ifd := range ifdOrder {
			require.Equal(t, block.Tags(ifd), again.Tags(ifd), ifd.String())
			for _, tag := range block.Tags(ifd) {
				want, _ := block.Get(ifd, tag)
				got, _ := again.Get(ifd, tag)
				require.Equal(t, want, got)
			}
		}
		require.Equal(t, testThumb, again.Thumbnail())
	})

	t.Run("maker note bytes kept verbatim", func(t *testing.T) {
		block, err := DecodeBlock(buildTIFF(binary.BigEndian, testThumb))
		require.NoError(t, err)

		note := bytes.Repeat([]byte{0xAB, 0x01, 0x00, 0x2A}, 10)
		require.NoError(t, block.Set(IFDExif, Entry{Tag: TagMakerNote, Type: TypeUndefined, Count: uint32(len(note)), Value: note}))

		out, err := block.Marshal()
		require.NoError(t, err)
		again, err := DecodeBlock(out)
		require.NoError(t, err)

		got, ok := again.Get(IFDExif, TagMakerNote)
		require.True(t, ok)
		require.Equal(t, note, got.Value)
		require.Equal(t, testThumb, again.Thumbnail())
	})

	t.Run("orientation value", func(t *testing.T) {
		block, err := DecodeBlock(buildTIFF(binary.BigEndian, nil))
		require.NoError(t, err)

		e, ok := block.Get(IFD0, TagOrientation)
		require.True(t, ok)
		require.Equal(t, Entry{Tag: TagOrientation, Type: TypeShort, Count: 1, Value: []byte{0x00, 0x06}}, e)
	})

	t.Run("mutations bump version", func(t *testing.T) {
		block := NewBlock(binary.BigEndian)

		require.NoError(t, block.Set(IFDGPS, Entry{Tag: 0x0000, Type: TypeByte, Count: 4, Value: []byte{2, 3, 0, 0}}))
		require.Equal(t, uint64(1), block.Version())

		require.False(t, block.Delete(IFD0, TagOrientation))
		require.Equal(t, uint64(1), block.Version())

		require.True(t, block.Delete(IFDGPS, 0x0000))
		require.Equal(t, uint64(2), block.Version())
	})

	t.Run("set rejects invalid entries", func(t *testing.T) {
		block := NewBlock(binary.BigEndian)

		require.Error(t, block.Set(IFD0, Entry{Tag: tagExifPointer, Type: TypeLong, Count: 1, Value: make([]byte, 4)}))
		require.Error(t, block.Set(IFD0, Entry{Tag: 0x010F, Type: 99, Count: 1, Value: []byte{0}}))
		require.Error(t, block.Set(IFD0, Entry{Tag: 0x010F, Type: TypeShort, Count: 2, Value: []byte{0, 1}}))
		require.Equal(t, uint64(0), block.Version())
	})

	t.Run("GPS directory gets a pointer", func(t *testing.T) {
		block := NewBlock(binary.BigEndian)
		require.NoError(t, block.Set(IFD0, Entry{Tag: 0x010F, Type: TypeASCII, Count: 5, Value: []byte("Acme\x00")}))
		require.NoError(t, block.Set(IFDGPS, Entry{Tag: 0x0000, Type: TypeByte, Count: 4, Value: []byte{2, 3, 0, 0}}))

		out, err := block.Marshal()
		require.NoError(t, err)

		again, err := DecodeBlock(out)
		require.NoError(t, err)
		e, ok := again.Get(IFDGPS, 0x0000)
		require.True(t, ok)
		require.Equal(t, []byte{2, 3, 0, 0}, e.Value)
	})

	t.Run("broken payload", func(t *testing.T) {
		_, err := DecodeBlock([]byte("MM\x00\x2a"))
		require.Error(t, err)
	})
}

func TestStripOrientation(t *testing.T) {
	block, err := DecodeBlock(buildTIFF(binary.BigEndian, testThumb))
	require.NoError(t, err)

	require.True(t, StripOrientation(block))
	require.False(t, StripOrientation(block))

	_, ok := block.Get(IFD0, TagOrientation)
	require.False(t, ok)
	_, ok = block.Get(IFD0, 0x010F)
	require.True(t, ok)
}
