package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// Compression selects how Encode compresses the single data strip.
type Compression int

const (
	NoCompression Compression = iota
	Deflate
)

// EncodeOptions controls Encode. The zero value writes an uncompressed file.
type EncodeOptions struct {
	Compression Compression
	// FloatPredictor enables the floating-point predictor (TIFF predictor 3).
	FloatPredictor bool
}

// Write encodes r to path as a float32 GeoTIFF in EPSG:4326.
func Write(path string, r *domain.Raster, opts EncodeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster: %w", err)
	}
	if err := Encode(f, r, opts); err != nil {
		f.Close()
		return fmt.Errorf("encode raster %s: %w", path, err)
	}
	return f.Close()
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // little-endian value bytes
}

// Encode writes r as a little-endian, single-strip float32 GeoTIFF with
// ModelPixelScale/ModelTiepoint georeferencing and, when set, GDAL_NODATA.
func Encode(w io.Writer, r *domain.Raster, opts EncodeOptions) error {
	if r.Width <= 0 || r.Height <= 0 || len(r.Data) != r.Width*r.Height {
		return fmt.Errorf("%w: %dx%d raster with %d cells", ErrNoBand, r.Width, r.Height, len(r.Data))
	}
	le := binary.LittleEndian

	data := make([]byte, 0, 4*len(r.Data))
	for y := range r.Height {
		row := make([]byte, 4*r.Width)
		for x := range r.Width {
			le.PutUint32(row[4*x:], math.Float32bits(float32(r.At(x, y))))
		}
		if opts.FloatPredictor {
			row = predictFloat(row)
		}
		data = append(data, row...)
	}

	compression := uint16(compressionNone)
	if opts.Compression == Deflate {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("deflate: %w", err)
		}
		data = buf.Bytes()
		compression = compressionDeflate
	}
	predictor := uint16(predictorNone)
	if opts.FloatPredictor {
		predictor = predictorFloatingPt
	}

	dx, dy := r.CellSize()
	epsg := r.EPSG
	if epsg == 0 {
		epsg = 4326
	}
	entries := []entry{
		longEntry(tagImageWidth, uint32(r.Width)),
		longEntry(tagImageLength, uint32(r.Height)),
		shortEntry(tagBitsPerSample, 32),
		shortEntry(tagCompression, compression),
		shortEntry(tagPhotometric, 1),
		longEntry(tagStripOffsets, 0), // patched below
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagRowsPerStrip, uint32(r.Height)),
		longEntry(tagStripByteCounts, uint32(len(data))),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagPredictor, predictor),
		shortEntry(tagSampleFormat, sampleFormatFloat),
		doubleEntry(tagModelPixelScale, dx, dy, 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, r.Bounds.West, r.Bounds.North, 0),
		// Version 1.1.0, three keys: model type geographic, raster type
		// PixelIsArea, geographic CRS.
		shortEntry(tagGeoKeyDirectory,
			1, 1, 0, 3,
			1024, 0, 1, 2,
			geoKeyRasterType, 0, 1, 1,
			geoKeyGeographicType, 0, 1, uint16(epsg),
		),
	}
	if r.HasNoData {
		s := strconv.FormatFloat(r.NoData, 'g', -1, 64)
		entries = append(entries, entry{tag: tagGDALNoData, typ: typeASCII, count: uint32(len(s) + 1), value: append([]byte(s), 0)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header, IFD, out-of-line values, strip data.
	ifdSize := 2 + 12*len(entries) + 4
	extraOff := 8 + ifdSize
	extraSize := 0
	for _, e := range entries {
		if len(e.value) > 4 {
			extraSize += len(e.value) + len(e.value)%2
		}
	}
	dataOff := extraOff + extraSize
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i] = longEntry(tagStripOffsets, uint32(dataOff))
		}
	}

	out := make([]byte, 0, dataOff+len(data))
	out = append(out, 'I', 'I', 42, 0, 8, 0, 0, 0)
	out = le.AppendUint16(out, uint16(len(entries)))
	var extra []byte
	for _, e := range entries {
		out = le.AppendUint16(out, e.tag)
		out = le.AppendUint16(out, e.typ)
		out = le.AppendUint32(out, e.count)
		if len(e.value) <= 4 {
			v := make([]byte, 4)
			copy(v, e.value)
			out = append(out, v...)
			continue
		}
		out = le.AppendUint32(out, uint32(extraOff+len(extra)))
		extra = append(extra, e.value...)
		if len(e.value)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	out = le.AppendUint32(out, 0) // no next IFD
	out = append(out, extra...)
	out = append(out, data...)

	_, err := w.Write(out)
	return err
}

// predictFloat applies the floating-point predictor to one row of
// little-endian float32 samples.
func predictFloat(row []byte) []byte {
	n := len(row) / 4
	planes := make([]byte, len(row))
	for i := range n {
		for k := range 4 {
			// Plane k holds byte k of each sample, most significant first.
			planes[k*n+i] = row[4*i+3-k]
		}
	}
	for i := len(planes) - 1; i > 0; i-- {
		planes[i] -= planes[i-1]
	}
	return planes
}

func shortEntry(tag uint16, vals ...uint16) entry {
	b := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vals)), value: b}
}

func longEntry(tag uint16, v uint32) entry {
	return entry{tag: tag, typ: typeLong, count: 1, value: binary.LittleEndian.AppendUint32(nil, v)}
}

func doubleEntry(tag uint16, vals ...float64) entry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vals)), value: b}
}
