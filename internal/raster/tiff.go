package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// TIFF tags read or written by this package.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagPredictor          = 317
	tagTileWidth          = 322
	tagTileLength         = 323
	tagTileOffsets        = 324
	tagTileByteCounts     = 325
	tagSampleFormat       = 339
	tagModelPixelScale    = 33550
	tagModelTiepoint      = 33922
	tagModelTransform     = 34264
	tagGeoKeyDirectory    = 34735
	tagGDALNoData         = 42113
	geoKeyRasterType      = 1025
	geoKeyGeographicType  = 2048
	geoKeyProjectedType   = 3072
	rasterPixelIsPoint    = 2
	geoKeyUserDefined     = 32767
	planarConfigSeparate  = 2
	sampleFormatUint      = 1
	sampleFormatInt       = 2
	sampleFormatFloat     = 3
	predictorNone         = 1
	predictorHorizontal   = 2
	predictorFloatingPt   = 3
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionPackBits   = 32773
	compressionDeflateOld = 32946
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

var typeSizes = map[uint16]uint32{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8,
}

// field is one IFD entry with its value bytes resolved.
type field struct {
	typ   uint16
	count uint32
	raw   []byte
}

// ifd holds the entries of the first image file directory.
type ifd struct {
	order  binary.ByteOrder
	fields map[uint16]field
}

func parseHeader(b []byte) (binary.ByteOrder, uint32, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("%w: file too short for a TIFF header", ErrUnsupported)
	}
	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, fmt.Errorf("%w: not a TIFF file", ErrUnsupported)
	}
	switch order.Uint16(b[2:4]) {
	case 42:
	case 43:
		return nil, 0, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, 0, fmt.Errorf("%w: bad TIFF magic", ErrUnsupported)
	}
	return order, order.Uint32(b[4:8]), nil
}

func parseIFD(b []byte, order binary.ByteOrder, off uint32) (*ifd, error) {
	if uint64(off)+2 > uint64(len(b)) {
		return nil, fmt.Errorf("%w: image directory offset out of range", ErrNoBand)
	}
	n := uint32(order.Uint16(b[off:]))
	if n == 0 {
		return nil, fmt.Errorf("%w: empty image directory", ErrNoBand)
	}
	end := uint64(off) + 2 + 12*uint64(n)
	if end > uint64(len(b)) {
		return nil, fmt.Errorf("%w: truncated image directory", ErrNoBand)
	}

	dir := &ifd{order: order, fields: make(map[uint16]field, n)}
	for i := range n {
		e := b[off+2+12*i:]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := order.Uint32(e[4:8])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := uint64(size) * uint64(count)
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			valOff := uint64(order.Uint32(e[8:12]))
			if valOff+total > uint64(len(b)) {
				return nil, fmt.Errorf("%w: tag %d value out of range", ErrUnsupported, tag)
			}
			raw = b[valOff : valOff+total]
		}
		dir.fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return dir, nil
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints returns an integer-typed field as uint64 values.
func (d *ifd) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case typeByte, typeUndefined:
			out[i] = uint64(f.raw[i])
		case typeShort:
			out[i] = uint64(d.order.Uint16(f.raw[2*i:]))
		case typeLong:
			out[i] = uint64(d.order.Uint32(f.raw[4*i:]))
		default:
			return nil
		}
	}
	return out
}

// uint returns the first value of an integer field, or def when absent.
func (d *ifd) uint(tag uint16, def uint64) uint64 {
	v := d.uints(tag)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// floats returns a DOUBLE or FLOAT field.
func (d *ifd) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case typeDouble:
			out[i] = math.Float64frombits(d.order.Uint64(f.raw[8*i:]))
		case typeFloat:
			out[i] = float64(math.Float32frombits(d.order.Uint32(f.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) ascii(tag uint16) (string, bool) {
	f, ok := d.fields[tag]
	if !ok || f.typ != typeASCII {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(string(f.raw), "\x00")), true
}

// geoKeys decodes the short-valued entries of the GeoKeyDirectory.
func (d *ifd) geoKeys() map[uint16]uint16 {
	v := d.uints(tagGeoKeyDirectory)
	if len(v) < 4 {
		return nil
	}
	n := int(v[3])
	keys := make(map[uint16]uint16, n)
	for i := range n {
		base := 4 + 4*i
		if base+3 >= len(v) {
			break
		}
		// Location 0 means the value is stored inline.
		if v[base+1] == 0 {
			keys[uint16(v[base])] = uint16(v[base+3])
		}
	}
	return keys
}
