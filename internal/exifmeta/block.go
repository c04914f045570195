package exifmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rwcarlsen/goexif/tiff"
)

// IFD names a directory of the EXIF TIFF structure.
type IFD int

const (
	IFD0 IFD = iota
	IFDExif
	IFDGPS
	IFDInterop
	IFD1
)

// порядок, в котором директории лежат в сериализованном блоке
var ifdOrder = []IFD{IFD0, IFDExif, IFDGPS, IFDInterop, IFD1}

func (d IFD) String() string {
	switch d {
	case IFD0:
		return "IFD0"
	case IFDExif:
		return "Exif"
	case IFDGPS:
		return "GPS"
	case IFDInterop:
		return "Interop"
	case IFD1:
		return "IFD1"
	}
	return fmt.Sprintf("IFD(%d)", int(d))
}

const (
	TagOrientation uint16 = 0x0112

	// TagMakerNote is carried as opaque bytes. Marshal moves it like any other value,
	// so vendor notes with offsets relative to the TIFF header lose their internal links.
	TagMakerNote uint16 = 0x927C

	tagExifPointer    uint16 = 0x8769
	tagGPSPointer     uint16 = 0x8825
	tagInteropPointer uint16 = 0xA005
	tagThumbOffset    uint16 = 0x0201
	tagThumbLength    uint16 = 0x0202
)

const (
	TypeByte      uint16 = 1
	TypeASCII     uint16 = 2
	TypeShort     uint16 = 3
	TypeLong      uint16 = 4
	TypeRational  uint16 = 5
	TypeSByte     uint16 = 6
	TypeUndefined uint16 = 7
	TypeSShort    uint16 = 8
	TypeSLong     uint16 = 9
	TypeSRational uint16 = 10
	TypeFloat     uint16 = 11
	TypeDouble    uint16 = 12
)

var typeSize = map[uint16]uint32{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
}

// Entry is one raw tag. Value holds exactly Count*size(Type) bytes in the block's byte order.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Value []byte
}

// Block is an EXIF structure kept as an arena of tag -> raw bytes per IFD.
// Directory pointers and the thumbnail location are not stored as tags: they are
// rebuilt by Marshal. Every mutation bumps Version.
type Block struct {
	order     binary.ByteOrder
	dirs      map[IFD]map[uint16]Entry
	thumbnail []byte
	version   uint64
}

func NewBlock(order binary.ByteOrder) *Block {
	if order == nil {
		order = binary.BigEndian
	}
	return &Block{order: order, dirs: make(map[IFD]map[uint16]Entry)}
}

func (b *Block) Order() binary.ByteOrder { return b.order }
func (b *Block) Version() uint64         { return b.version }
func (b *Block) Thumbnail() []byte       { return b.thumbnail }

func (b *Block) Get(ifd IFD, tag uint16) (Entry, bool) {
	e, ok := b.dirs[ifd][tag]
	return e, ok
}

// Tags lists the tags of a directory in ascending order.
func (b *Block) Tags(ifd IFD) []uint16 {
	tags := make([]uint16, 0, len(b.dirs[ifd]))
	for t := range b.dirs[ifd] {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Set stores a raw entry. Pointer tags are managed by the block and cannot be set.
func (b *Block) Set(ifd IFD, e Entry) error {
	if isPointerTag(ifd, e.Tag) {
		return fmt.Errorf("tag 0x%04X in %s is managed by the block", e.Tag, ifd)
	}
	size, ok := typeSize[e.Type]
	if !ok {
		return fmt.Errorf("tag 0x%04X: unknown type %d", e.Tag, e.Type)
	}
	if uint32(len(e.Value)) != size*e.Count {
		return fmt.Errorf("tag 0x%04X: value has %d bytes, want %d", e.Tag, len(e.Value), size*e.Count)
	}

	if b.dirs[ifd] == nil {
		b.dirs[ifd] = make(map[uint16]Entry)
	}
	e.Value = append([]byte(nil), e.Value...)
	b.dirs[ifd][e.Tag] = e
	b.version++
	return nil
}

// Delete removes a tag and reports whether it was present.
func (b *Block) Delete(ifd IFD, tag uint16) bool {
	if _, ok := b.dirs[ifd][tag]; !ok {
		return false
	}
	delete(b.dirs[ifd], tag)
	b.version++
	return true
}

func (b *Block) SetThumbnail(data []byte) {
	b.thumbnail = append([]byte(nil), data...)
	b.version++
}

func isPointerTag(ifd IFD, tag uint16) bool {
	switch ifd {
	case IFD0:
		return tag == tagExifPointer || tag == tagGPSPointer
	case IFDExif:
		return tag == tagInteropPointer
	case IFD1:
		return tag == tagThumbOffset || tag == tagThumbLength
	}
	return false
}

//---------------------- decode

// DecodeBlock parses a TIFF-structured EXIF payload (the part after "Exif\0\0").
func DecodeBlock(data []byte) (*Block, error) {
	t, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode TIFF header: %w", err)
	}
	if len(t.Dirs) == 0 {
		return nil, errors.New("EXIF block has no IFD0")
	}

	b := NewBlock(t.Order)
	ptr := make(map[uint16]int)

	if err := b.load(IFD0, t.Dirs[0], ptr); err != nil {
		return nil, err
	}
	if len(t.Dirs) > 1 {
		if err := b.load(IFD1, t.Dirs[1], ptr); err != nil {
			return nil, err
		}
	}

	// вложенные директории: Interop адресуется из Exif, поэтому порядок важен
	subDirs := []struct {
		ifd IFD
		tag uint16
	}{
		{IFDExif, tagExifPointer},
		{IFDGPS, tagGPSPointer},
		{IFDInterop, tagInteropPointer},
	}
	for _, sd := range subDirs {
		off, ok := ptr[sd.tag]
		if !ok {
			continue
		}
		dir, err := decodeDirAt(data, off, t.Order)
		if err != nil {
			return nil, fmt.Errorf("decode %s IFD: %w", sd.ifd, err)
		}
		if err := b.load(sd.ifd, dir, ptr); err != nil {
			return nil, err
		}
	}

	off, hasOff := ptr[tagThumbOffset]
	n, hasLen := ptr[tagThumbLength]
	if hasOff && hasLen && off > 0 && n > 0 && off+n <= len(data) {
		b.thumbnail = append([]byte(nil), data[off:off+n]...)
	}

	b.version = 0
	return b, nil
}

func (b *Block) load(ifd IFD, dir *tiff.Dir, ptr map[uint16]int) error {
	for _, tag := range dir.Tags {
		if isPointerTag(ifd, tag.Id) {
			v, err := tag.Int(0)
			if err != nil {
				return fmt.Errorf("%s pointer tag 0x%04X: %w", ifd, tag.Id, err)
			}
			ptr[tag.Id] = v
			continue
		}

		typ := uint16(tag.Type)
		size, ok := typeSize[typ]
		if !ok {
			return fmt.Errorf("%s tag 0x%04X: unknown type %d", ifd, tag.Id, typ)
		}
		need := int(size * tag.Count)
		if len(tag.Val) < need {
			return fmt.Errorf("%s tag 0x%04X: short value", ifd, tag.Id)
		}

		if err := b.Set(ifd, Entry{Tag: tag.Id, Type: typ, Count: tag.Count, Value: tag.Val[:need]}); err != nil {
			return err
		}
	}
	return nil
}

func decodeDirAt(data []byte, off int, order binary.ByteOrder) (*tiff.Dir, error) {
	if off < 8 || off >= len(data) {
		return nil, fmt.Errorf("offset %d out of range", off)
	}
	r := bytes.NewReader(data)
	if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	dir, _, err := tiff.DecodeDir(r, order)
	return dir, err
}

//---------------------- encode

// Marshal serializes the block into a TIFF structure: header, IFD0, Exif, GPS, Interop,
// IFD1 (each followed by its out-of-line values) and finally the thumbnail.
func (b *Block) Marshal() ([]byte, error) {
	dirs := make(map[IFD][]Entry, len(ifdOrder))
	for _, ifd := range ifdOrder {
		dirs[ifd] = b.sortedEntries(ifd)
	}

	if len(dirs[IFDInterop]) > 0 {
		dirs[IFDExif] = withPointer(dirs[IFDExif], tagInteropPointer)
	}
	if len(dirs[IFDExif]) > 0 {
		dirs[IFD0] = withPointer(dirs[IFD0], tagExifPointer)
	}
	if len(dirs[IFDGPS]) > 0 {
		dirs[IFD0] = withPointer(dirs[IFD0], tagGPSPointer)
	}
	if len(b.thumbnail) > 0 {
		dirs[IFD1] = withPointer(dirs[IFD1], tagThumbOffset)
		dirs[IFD1] = withPointer(dirs[IFD1], tagThumbLength)
	}

	// раскладываем директории подряд после заголовка
	offsets := make(map[IFD]uint32, len(ifdOrder))
	pos := uint32(8)
	for _, ifd := range ifdOrder {
		if ifd != IFD0 && len(dirs[ifd]) == 0 {
			continue
		}
		offsets[ifd] = pos
		pos += dirSize(dirs[ifd])
	}
	thumbOffset := pos

	b.setLong(dirs[IFD0], tagExifPointer, offsets[IFDExif])
	b.setLong(dirs[IFD0], tagGPSPointer, offsets[IFDGPS])
	b.setLong(dirs[IFDExif], tagInteropPointer, offsets[IFDInterop])
	b.setLong(dirs[IFD1], tagThumbOffset, thumbOffset)
	b.setLong(dirs[IFD1], tagThumbLength, uint32(len(b.thumbnail)))

	var buf bytes.Buffer
	if b.order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	b.put16(&buf, 42)
	b.put32(&buf, 8)

	for _, ifd := range ifdOrder {
		off, ok := offsets[ifd]
		if !ok {
			continue
		}
		if uint32(buf.Len()) != off {
			return nil, fmt.Errorf("%s IFD laid out at %d, expected %d", ifd, buf.Len(), off)
		}
		var next uint32
		if ifd == IFD0 {
			next = offsets[IFD1]
		}
		b.writeDir(&buf, dirs[ifd], off, next)
	}
	buf.Write(b.thumbnail)

	return buf.Bytes(), nil
}

func (b *Block) sortedEntries(ifd IFD) []Entry {
	entries := make([]Entry, 0, len(b.dirs[ifd]))
	for _, tag := range b.Tags(ifd) {
		entries = append(entries, b.dirs[ifd][tag])
	}
	return entries
}

func withPointer(entries []Entry, tag uint16) []Entry {
	entries = append(entries, Entry{Tag: tag, Type: TypeLong, Count: 1, Value: make([]byte, 4)})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	return entries
}

func (b *Block) setLong(entries []Entry, tag uint16, v uint32) {
	for i := range entries {
		if entries[i].Tag == tag {
			b.order.PutUint32(entries[i].Value, v)
			return
		}
	}
}

func dirSize(entries []Entry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.Value) > 4 {
			size += padded(len(e.Value))
		}
	}
	return size
}

// значения вне записи выравниваются на границу слова
func padded(n int) uint32 {
	return uint32(n + n%2)
}

func (b *Block) writeDir(buf *bytes.Buffer, entries []Entry, offset, next uint32) {
	valuePos := offset + uint32(2+12*len(entries)+4)
	var values bytes.Buffer

	b.put16(buf, uint16(len(entries)))
	for _, e := range entries {
		b.put16(buf, e.Tag)
		b.put16(buf, e.Type)
		b.put32(buf, e.Count)

		if len(e.Value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.Value)
			buf.Write(inline[:])
			continue
		}

		b.put32(buf, valuePos+uint32(values.Len()))
		values.Write(e.Value)
		if len(e.Value)%2 == 1 {
			values.WriteByte(0)
		}
	}
	b.put32(buf, next)
	buf.Write(values.Bytes())
}

func (b *Block) put16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	b.order.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func (b *Block) put32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	b.order.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}
