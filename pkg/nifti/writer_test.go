package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foct2nifti/internal/models"
)

func testVolume() *models.Volume {
	dims := models.Shape{Depth: 4, Width: 6, Height: 5}
	v := models.NewVolume(dims)
	for i := range v.Data {
		v.Data[i] = float64(i) * 0.25
	}
	v.VoxelSize.X = 0.5
	v.VoxelSize.Y = 0.5
	v.VoxelSize.Z = 2.0
	return v
}

func TestSaveHeader(t *testing.T) {
	v := testVolume()
	path := filepath.Join(t.TempDir(), "vol.nii")
	require.NoError(t, Save(path, v))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var hdr header
	require.NoError(t, binary.Read(f, binary.LittleEndian, &hdr))

	assert.Equal(t, int32(headerSize), hdr.SizeofHdr)
	assert.Equal(t, [4]byte{'n', '+', '1', 0}, hdr.Magic)
	assert.Equal(t, int16(dtFloat32), hdr.Datatype)
	assert.Equal(t, int16(bitpixFloat), hdr.Bitpix)
	assert.Equal(t, int16(3), hdr.Dim[0])
	assert.Equal(t, int16(6), hdr.Dim[1])
	assert.Equal(t, int16(5), hdr.Dim[2])
	assert.Equal(t, int16(4), hdr.Dim[3])
	assert.Equal(t, float32(voxOffset), hdr.VoxOffset)
	assert.Equal(t, float32(0.5), hdr.Pixdim[1])
	assert.Equal(t, float32(2.0), hdr.Pixdim[3])

	// Total file size: header + extension flag + float32 payload.
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(voxOffset+len(v.Data)*4), info.Size())
}

func TestSavePayload(t *testing.T) {
	v := testVolume()
	path := filepath.Join(t.TempDir(), "vol.nii")
	require.NoError(t, Save(path, v))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	payload := raw[voxOffset:]

	for i, want := range v.Data {
		got := binary.LittleEndian.Uint32(payload[i*4:])
		assert.Equal(t, float32(want), floatFromBits(got), "voxel %d", i)
	}
}

func TestSaveGzip(t *testing.T) {
	v := testVolume()
	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	require.NoError(t, Save(path, v))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var hdr header
	require.NoError(t, binary.Read(gz, binary.LittleEndian, &hdr))
	assert.Equal(t, int32(headerSize), hdr.SizeofHdr)
	assert.Equal(t, [4]byte{'n', '+', '1', 0}, hdr.Magic)
}

func TestSaveRaw(t *testing.T) {
	v := testVolume()
	path := filepath.Join(t.TempDir(), "vol.bin")
	require.NoError(t, SaveRaw(path, v))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, len(v.Data)*4)

	got := binary.LittleEndian.Uint32(raw[4:])
	assert.Equal(t, float32(0.25), floatFromBits(got))
}

func floatFromBits(b uint32) float32 {
	return math.Float32frombits(b)
}

func TestSaveCreateFailure(t *testing.T) {
	v := testVolume()
	err := Save(filepath.Join(t.TempDir(), "missing", "vol.nii"), v)
	assert.Error(t, err)
}
