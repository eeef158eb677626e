package raster

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

func sampleRaster() *domain.Raster {
	return &domain.Raster{
		Width:     3,
		Height:    2,
		Data:      []float64{1.5, -2, 3.25, -9999, 0, 42},
		NoData:    -9999,
		HasNoData: true,
		Bounds:    domain.Bounds{West: 87, South: 41, East: 120, North: 52},
		EPSG:      4326,
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts EncodeOptions
	}{
		{"uncompressed", EncodeOptions{}},
		{"deflate", EncodeOptions{Compression: Deflate}},
		{"deflate with float predictor", EncodeOptions{Compression: Deflate, FloatPredictor: true}},
		{"float predictor only", EncodeOptions{FloatPredictor: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sampleRaster(), tt.opts))

			got, err := Decode(buf.Bytes())
			require.NoError(t, err)

			if diff := cmp.Diff(sampleRaster(), got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadWrite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precip.tif")
	require.NoError(t, Write(path, sampleRaster(), EncodeOptions{Compression: Deflate}))

	r, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Width)
	assert.Equal(t, 2, r.Height)
	assert.Equal(t, 42.0, r.At(2, 1))
	assert.True(t, r.HasNoData)
	assert.Equal(t, -9999.0, r.NoData)
}

func TestRead_MissingFile(t *testing.T) {
	r, err := Read(filepath.Join(t.TempDir(), "nope.tif"))

	require.Error(t, err)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	var pathErr *fs.PathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestDecode_NaNNoData(t *testing.T) {
	src := sampleRaster()
	src.NoData = math.NaN()
	src.Data[3] = math.NaN()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, EncodeOptions{}))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)

	assert.True(t, got.HasNoData)
	assert.True(t, math.IsNaN(got.NoData))
	assert.True(t, math.IsNaN(got.Data[3]))
}

func TestDecode_WithoutNoData(t *testing.T) {
	src := sampleRaster()
	src.HasNoData = false
	src.NoData = 0
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, EncodeOptions{}))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.False(t, got.HasNoData)
}

func TestDecode_Float32NoDataPrecision(t *testing.T) {
	src := sampleRaster()
	src.NoData = -3.4028234663852886e+38
	src.Data[0] = src.NoData
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, EncodeOptions{}))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, got.NoData, got.Data[0])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrUnsupported},
		{"not a tiff", []byte("PNG\x00\x00\x00\x00\x00\x00\x00"), ErrUnsupported},
		{"bigtiff", []byte{'I', 'I', 43, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, ErrUnsupported},
		{"bad magic", []byte{'I', 'I', 7, 0, 8, 0, 0, 0}, ErrUnsupported},
		{"directory out of range", []byte{'I', 'I', 42, 0, 200, 0, 0, 0}, ErrNoBand},
		{"empty directory", []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0}, ErrNoBand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_TruncatedStrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleRaster(), EncodeOptions{}))
	b := buf.Bytes()

	_, err := Decode(b[:len(b)-4])

	assert.ErrorIs(t, err, ErrNoBand)
}

func TestEncode_RejectsMismatchedData(t *testing.T) {
	r := sampleRaster()
	r.Data = r.Data[:2]

	err := Encode(&bytes.Buffer{}, r, EncodeOptions{})

	assert.ErrorIs(t, err, ErrNoBand)
}

func TestRead_DoesNotHoldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.tif")
	require.NoError(t, Write(path, sampleRaster(), EncodeOptions{}))

	_, err := Read(path)
	require.NoError(t, err)

	assert.NoError(t, os.Remove(path))
}

// --- hand-built 8-bit files ---

type tag struct {
	id    uint16
	typ   uint16
	value []byte
	count uint32
}

func shorts(id uint16, v ...uint16) tag {
	b := make([]byte, 0, 2*len(v))
	for _, x := range v {
		b = binary.LittleEndian.AppendUint16(b, x)
	}
	return tag{id: id, typ: typeShort, value: b, count: uint32(len(v))}
}

func doubles(id uint16, v ...float64) tag {
	b := make([]byte, 0, 8*len(v))
	for _, x := range v {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	}
	return tag{id: id, typ: typeDouble, value: b, count: uint32(len(v))}
}

// buildUint8 assembles a little-endian single-strip 8-bit TIFF whose strip
// data follows the header. Extra tags are appended to the directory.
func buildUint8(w, h int, compression, predictor uint16, strip []byte, extra ...tag) []byte {
	le := binary.LittleEndian
	tags := append([]tag{
		shorts(tagImageWidth, uint16(w)),
		shorts(tagImageLength, uint16(h)),
		shorts(tagBitsPerSample, 8),
		shorts(tagCompression, compression),
		{id: tagStripOffsets, typ: typeLong, count: 1, value: le.AppendUint32(nil, 8)},
		shorts(tagStripByteCounts, uint16(len(strip))),
		shorts(tagPredictor, predictor),
	}, extra...)
	sort.Slice(tags, func(i, j int) bool { return tags[i].id < tags[j].id })

	ifdOff := 8 + len(strip) + len(strip)%2
	valOff := ifdOff + 2 + 12*len(tags) + 4
	out := append([]byte{'I', 'I', 42, 0}, le.AppendUint32(nil, uint32(ifdOff))...)
	out = append(out, strip...)
	if len(strip)%2 == 1 {
		out = append(out, 0)
	}
	out = le.AppendUint16(out, uint16(len(tags)))
	var vals []byte
	for _, tg := range tags {
		out = le.AppendUint16(out, tg.id)
		out = le.AppendUint16(out, tg.typ)
		out = le.AppendUint32(out, tg.count)
		if len(tg.value) <= 4 {
			v := make([]byte, 4)
			copy(v, tg.value)
			out = append(out, v...)
			continue
		}
		out = le.AppendUint32(out, uint32(valOff+len(vals)))
		vals = append(vals, tg.value...)
	}
	out = le.AppendUint32(out, 0)
	return append(out, vals...)
}

func TestDecode_PackBitsHorizontalPredictor(t *testing.T) {
	// Rows 10 10 10 10 and 1 2 3 4, differenced then PackBits encoded:
	// row 1 = 10 0 0 0 (literal 10, run of three zeros), row 2 = 1 1 1 1 (run).
	strip := []byte{0x00, 10, 0xFE, 0, 0xFD, 1}
	b := buildUint8(4, 2, compressionPackBits, predictorHorizontal, strip,
		doubles(tagModelPixelScale, 0.5, 0.25, 0),
		doubles(tagModelTiepoint, 0, 0, 0, 100, 50, 0),
	)

	r, err := Decode(b)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 10, 10, 10, 1, 2, 3, 4}, r.Data)
	assert.Equal(t, domain.Bounds{West: 100, South: 49.5, East: 102, North: 50}, r.Bounds)
	assert.False(t, r.HasNoData)
	assert.Zero(t, r.EPSG)
}

func lzwCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecode_ChunkLayouts(t *testing.T) {
	// A 3x2 image padded into one 4x4 tile.
	tile := []byte{
		1, 2, 3, 0,
		4, 5, 6, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	lzwTile := lzwCompress(t, tile)
	tileTags := func(n int) []tag {
		return []tag{
			shorts(tagTileWidth, 4),
			shorts(tagTileLength, 4),
			{id: tagTileOffsets, typ: typeLong, count: 1, value: binary.LittleEndian.AppendUint32(nil, 8)},
			shorts(tagTileByteCounts, uint16(n)),
		}
	}
	tests := []struct {
		name        string
		compression uint16
		data        []byte
		extra       []tag
	}{
		{
			name:        "lzw strip",
			compression: compressionLZW,
			data:        lzwCompress(t, []byte{1, 2, 3, 4, 5, 6}),
		},
		{
			name:        "padded tile",
			compression: compressionNone,
			data:        tile,
			extra:       tileTags(len(tile)),
		},
		{
			name:        "lzw tile",
			compression: compressionLZW,
			data:        lzwTile,
			extra:       tileTags(len(lzwTile)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extra := append([]tag{
				doubles(tagModelPixelScale, 1, 1, 0),
				doubles(tagModelTiepoint, 0, 0, 0, 100, 45, 0),
			}, tt.extra...)
			b := buildUint8(3, 2, tt.compression, predictorNone, tt.data, extra...)

			r, err := Decode(b)
			require.NoError(t, err)

			assert.Equal(t, 3, r.Width)
			assert.Equal(t, 2, r.Height)
			assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, r.Data)
		})
	}
}

func TestDecode_ModelTransformationAndPixelIsPoint(t *testing.T) {
	b := buildUint8(2, 2, compressionNone, predictorNone, []byte{1, 2, 3, 4},
		doubles(tagModelTransform, 1, 0, 0, 80, 0, -1, 0, 45, 0, 0, 0, 0, 0, 0, 0, 1),
		shorts(tagGeoKeyDirectory, 1, 1, 0, 2, geoKeyRasterType, 0, 1, rasterPixelIsPoint, geoKeyGeographicType, 0, 1, 4326),
	)

	r, err := Decode(b)
	require.NoError(t, err)

	assert.Equal(t, domain.Bounds{West: 79.5, South: 43.5, East: 81.5, North: 45.5}, r.Bounds)
	assert.Equal(t, 4326, r.EPSG)
	assert.Equal(t, 4.0, r.At(1, 1))
}

func TestDecode_NoGeoreference(t *testing.T) {
	b := buildUint8(1, 1, compressionNone, predictorNone, []byte{1})

	_, err := Decode(b)

	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecode_UnsupportedCompression(t *testing.T) {
	b := buildUint8(1, 1, 7, predictorNone, []byte{1},
		doubles(tagModelPixelScale, 1, 1, 0),
		doubles(tagModelTiepoint, 0, 0, 0, 0, 0, 0),
	)

	_, err := Decode(b)

	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUnpackBits(t *testing.T) {
	got, err := unpackBits([]byte{0x02, 'a', 'b', 'c', 0x80, 0xFF, 'z'})
	require.NoError(t, err)
	assert.Equal(t, []byte("abczz"), got)

	_, err = unpackBits([]byte{0x05, 'a'})
	assert.ErrorIs(t, err, ErrNoBand)
}

func TestClassifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.tif")
	src := &domain.Raster{
		Width: 2, Height: 2,
		Data:      []float64{1, 2, 3, 4},
		NoData:    -9999,
		HasNoData: true,
		Bounds:    domain.Bounds{West: 100, South: 40, East: 110, North: 50},
	}
	require.NoError(t, Write(path, src, EncodeOptions{Compression: Deflate, FloatPredictor: true}))

	c, err := ClassifyFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Image.Bounds().Dx())
	assert.Equal(t, [domain.ClassCount]int{0, 2, 2, 0}, c.ClassCounts())
	assert.InDelta(t, 39.85, c.Extent[0][0], 1e-9)
	assert.InDelta(t, 49.88, c.Extent[1][0], 1e-9)

	again, err := ClassifyFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Image.Pix, again.Image.Pix)
}

func TestClassifyFile_Missing(t *testing.T) {
	c, err := ClassifyFile(filepath.Join(t.TempDir(), "missing.tif"))

	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Nil(t, c.Image)
}
