// Package raster reads and writes single-band GeoTIFF files.
//
// Only the subset of TIFF used by climate rasters is supported: classic
// (non-Big) TIFF, strips or tiles, no compression, LZW, Deflate or PackBits,
// horizontal or floating-point predictors, and integer or IEEE float samples
// of 8 to 64 bits. Georeferencing comes from ModelPixelScale + ModelTiepoint
// or ModelTransformation; the no-data value from the GDAL_NODATA tag.
package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"golang.org/x/image/tiff/lzw"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

var (
	// ErrNoBand is returned when the file has no readable first band.
	ErrNoBand = errors.New("raster has no readable band")
	// ErrUnsupported is returned for TIFF features outside the supported subset.
	ErrUnsupported = errors.New("unsupported raster format")
)

// Read opens path, decodes band 1 and closes the file before returning.
// A missing file yields an error wrapping the underlying *fs.PathError.
func Read(path string) (*domain.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read raster %s: %w", path, err)
	}
	r, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}
	return r, nil
}

// layout describes how band 1 samples are stored.
type layout struct {
	order        binary.ByteOrder
	width        int
	height       int
	bytesPer     int // bytes per sample
	format       uint64
	spp          int // samples per pixel within a chunk
	compression  uint64
	predictor    uint64
	chunkW       int
	chunkH       int
	chunksAcross int
	offsets      []uint64
	counts       []uint64
}

// Decode parses an in-memory GeoTIFF and returns its first band.
func Decode(b []byte) (*domain.Raster, error) {
	order, off, err := parseHeader(b)
	if err != nil {
		return nil, err
	}
	dir, err := parseIFD(b, order, off)
	if err != nil {
		return nil, err
	}

	lay, err := newLayout(dir)
	if err != nil {
		return nil, err
	}
	bounds, err := georef(dir, lay.width, lay.height)
	if err != nil {
		return nil, err
	}

	r := &domain.Raster{
		Width:  lay.width,
		Height: lay.height,
		Data:   make([]float64, lay.width*lay.height),
		Bounds: bounds,
		EPSG:   epsg(dir),
	}
	if s, ok := dir.ascii(tagGDALNoData); ok && s != "" {
		nd, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad GDAL_NODATA %q", ErrUnsupported, s)
		}
		// Float32 cells are compared against the no-data value at their own precision.
		if lay.format == sampleFormatFloat && lay.bytesPer == 4 {
			nd = float64(float32(nd))
		}
		r.NoData, r.HasNoData = nd, true
	}

	if err := lay.readInto(b, r.Data); err != nil {
		return nil, err
	}
	return r, nil
}

func newLayout(dir *ifd) (*layout, error) {
	w := int(dir.uint(tagImageWidth, 0))
	h := int(dir.uint(tagImageLength, 0))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: missing image dimensions", ErrNoBand)
	}
	bps := dir.uint(tagBitsPerSample, 1)
	switch bps {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bps)
	}
	lay := &layout{
		order:       dir.order,
		width:       w,
		height:      h,
		bytesPer:    int(bps / 8),
		format:      dir.uint(tagSampleFormat, sampleFormatUint),
		spp:         int(dir.uint(tagSamplesPerPixel, 1)),
		compression: dir.uint(tagCompression, compressionNone),
		predictor:   dir.uint(tagPredictor, predictorNone),
	}
	if lay.spp < 1 {
		return nil, fmt.Errorf("%w: zero samples per pixel", ErrNoBand)
	}
	switch lay.format {
	case sampleFormatUint, sampleFormatInt:
	case sampleFormatFloat:
		if lay.bytesPer < 4 {
			return nil, fmt.Errorf("%w: %d-bit float samples", ErrUnsupported, bps)
		}
	default:
		return nil, fmt.Errorf("%w: sample format %d", ErrUnsupported, lay.format)
	}
	if dir.uint(tagPlanarConfig, 1) == planarConfigSeparate {
		// Band 1 is the first plane; each chunk holds one sample per pixel.
		lay.spp = 1
	}

	if dir.has(tagTileWidth) {
		lay.chunkW = int(dir.uint(tagTileWidth, 0))
		lay.chunkH = int(dir.uint(tagTileLength, 0))
		lay.offsets = dir.uints(tagTileOffsets)
		lay.counts = dir.uints(tagTileByteCounts)
	} else {
		lay.chunkW = w
		lay.chunkH = int(min(dir.uint(tagRowsPerStrip, uint64(h)), uint64(h)))
		lay.offsets = dir.uints(tagStripOffsets)
		lay.counts = dir.uints(tagStripByteCounts)
	}
	if lay.chunkW <= 0 || lay.chunkH <= 0 {
		return nil, fmt.Errorf("%w: bad chunk size", ErrNoBand)
	}
	lay.chunksAcross = (w + lay.chunkW - 1) / lay.chunkW
	need := lay.chunksAcross * ((h + lay.chunkH - 1) / lay.chunkH)
	if len(lay.offsets) < need || len(lay.counts) < need {
		return nil, fmt.Errorf("%w: %d of %d data chunks listed", ErrNoBand, min(len(lay.offsets), len(lay.counts)), need)
	}
	return lay, nil
}

// readInto decodes every chunk of band 1 into dst.
func (l *layout) readInto(b []byte, dst []float64) error {
	chunksDown := (l.height + l.chunkH - 1) / l.chunkH
	for cy := range chunksDown {
		for cx := range l.chunksAcross {
			i := cy*l.chunksAcross + cx
			off, n := l.offsets[i], l.counts[i]
			if off+n > uint64(len(b)) {
				return fmt.Errorf("%w: chunk %d out of range", ErrNoBand, i)
			}
			buf, err := decompress(b[off:off+n], l.compression)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if err := l.place(buf, cx, cy, dst); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
		}
	}
	return nil
}

// place undoes the predictor and copies the chunk's band 1 samples into dst.
func (l *layout) place(buf []byte, cx, cy int, dst []float64) error {
	x0, y0 := cx*l.chunkW, cy*l.chunkH
	rows := min(l.chunkH, l.height-y0)
	cols := min(l.chunkW, l.width-x0)
	rowBytes := l.chunkW * l.spp * l.bytesPer
	if len(buf) < rows*rowBytes {
		return fmt.Errorf("%w: truncated chunk (%d of %d bytes)", ErrNoBand, len(buf), rows*rowBytes)
	}

	for y := range rows {
		row := buf[y*rowBytes : (y+1)*rowBytes]
		if err := l.unpredict(row); err != nil {
			return err
		}
		out := dst[(y0+y)*l.width+x0:]
		for x := range cols {
			out[x] = l.sample(row[x*l.spp*l.bytesPer:])
		}
	}
	return nil
}

func (l *layout) unpredict(row []byte) error {
	switch l.predictor {
	case predictorNone:
		return nil
	case predictorHorizontal:
		if l.format == sampleFormatFloat {
			return fmt.Errorf("%w: horizontal predictor on float samples", ErrUnsupported)
		}
		l.undoHorizontal(row)
		return nil
	case predictorFloatingPt:
		if l.format != sampleFormatFloat {
			return fmt.Errorf("%w: floating-point predictor on integer samples", ErrUnsupported)
		}
		l.undoFloat(row)
		return nil
	default:
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, l.predictor)
	}
}

// undoHorizontal reverses per-component differencing of integer samples.
func (l *layout) undoHorizontal(row []byte) {
	stride := l.spp * l.bytesPer
	for i := stride; i+l.bytesPer <= len(row); i += l.bytesPer {
		prev, cur := row[i-stride:], row[i:]
		switch l.bytesPer {
		case 1:
			cur[0] += prev[0]
		case 2:
			l.order.PutUint16(cur, l.order.Uint16(cur)+l.order.Uint16(prev))
		case 4:
			l.order.PutUint32(cur, l.order.Uint32(cur)+l.order.Uint32(prev))
		case 8:
			l.order.PutUint64(cur, l.order.Uint64(cur)+l.order.Uint64(prev))
		}
	}
}

// undoFloat reverses the floating-point predictor: byte differencing over the
// row followed by de-interleaving of the byte planes, most significant first.
// The result is rewritten in the file's byte order.
func (l *layout) undoFloat(row []byte) {
	for i := l.spp; i < len(row); i++ {
		row[i] += row[i-l.spp]
	}
	n := len(row) / l.bytesPer
	tmp := make([]byte, len(row))
	copy(tmp, row)
	little := l.order == binary.LittleEndian
	for i := range n {
		for k := range l.bytesPer {
			v := tmp[k*n+i]
			if little {
				row[i*l.bytesPer+l.bytesPer-1-k] = v
			} else {
				row[i*l.bytesPer+k] = v
			}
		}
	}
}

func (l *layout) sample(p []byte) float64 {
	switch l.format {
	case sampleFormatFloat:
		if l.bytesPer == 4 {
			return float64(math.Float32frombits(l.order.Uint32(p)))
		}
		return math.Float64frombits(l.order.Uint64(p))
	case sampleFormatInt:
		switch l.bytesPer {
		case 1:
			return float64(int8(p[0]))
		case 2:
			return float64(int16(l.order.Uint16(p)))
		case 4:
			return float64(int32(l.order.Uint32(p)))
		default:
			return float64(int64(l.order.Uint64(p)))
		}
	default:
		switch l.bytesPer {
		case 1:
			return float64(p[0])
		case 2:
			return float64(l.order.Uint16(p))
		case 4:
			return float64(l.order.Uint32(p))
		default:
			return float64(l.order.Uint64(p))
		}
	}
}

func decompress(raw []byte, compression uint64) ([]byte, error) {
	switch compression {
	case compressionNone:
		// Predictors work in place; keep the caller's buffer intact.
		return bytes.Clone(raw), nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	case compressionDeflate, compressionDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case compressionPackBits:
		return unpackBits(raw)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
}

// unpackBits expands PackBits run-length encoding.
func unpackBits(src []byte) ([]byte, error) {
	var dst []byte
	for i := 0; i < len(src); {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, fmt.Errorf("%w: truncated PackBits literal", ErrNoBand)
			}
			dst = append(dst, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, fmt.Errorf("%w: truncated PackBits run", ErrNoBand)
			}
			dst = append(dst, bytes.Repeat(src[i:i+1], 1-n)...)
			i++
		}
	}
	return dst, nil
}

// georef derives the bounding box from the model tags. PixelIsPoint rasters
// are shifted by half a cell so the box covers whole cells.
func georef(dir *ifd, w, h int) (domain.Bounds, error) {
	var west, north, sx, sy float64
	if m := dir.floats(tagModelTransform); len(m) >= 8 {
		if m[1] != 0 || m[4] != 0 {
			return domain.Bounds{}, fmt.Errorf("%w: rotated model transformation", ErrUnsupported)
		}
		west, north, sx, sy = m[3], m[7], m[0], -m[5]
	} else {
		scale := dir.floats(tagModelPixelScale)
		tie := dir.floats(tagModelTiepoint)
		if len(scale) < 2 || len(tie) < 6 {
			return domain.Bounds{}, fmt.Errorf("%w: no georeferencing tags", ErrUnsupported)
		}
		sx, sy = scale[0], scale[1]
		west = tie[3] - tie[0]*sx
		north = tie[4] + tie[1]*sy
	}
	if keys := dir.geoKeys(); keys[geoKeyRasterType] == rasterPixelIsPoint {
		west -= sx / 2
		north += sy / 2
	}
	return domain.Bounds{
		West:  west,
		North: north,
		East:  west + float64(w)*sx,
		South: north - float64(h)*sy,
	}, nil
}

func epsg(dir *ifd) int {
	keys := dir.geoKeys()
	if v, ok := keys[geoKeyProjectedType]; ok && v != 0 && v != geoKeyUserDefined {
		return int(v)
	}
	if v, ok := keys[geoKeyGeographicType]; ok && v != 0 && v != geoKeyUserDefined {
		return int(v)
	}
	return 0
}
