// Package nifti serializes finished volumes to the NIfTI-1 container
// format, the standard interchange format for medical-imaging volumes.
// It also provides a raw little-endian float32 dump used as the
// fallback when the primary format write fails.
package nifti

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"foct2nifti/internal/models"
)

// NIfTI-1 constants for the fields this writer emits.
const (
	headerSize  = 348
	dtFloat32   = 16
	bitpixFloat = 32
	voxOffset   = 352 // header + 4-byte extension flag
	unitsMM     = 2
)

// header is the packed NIfTI-1 header, 348 bytes little-endian.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte

	Dim        [8]int16
	IntentP1   float32
	IntentP2   float32
	IntentP3   float32
	IntentCode int16
	Datatype   int16
	Bitpix     int16
	SliceStart int16
	Pixdim     [8]float32
	VoxOffset  float32
	SclSlope   float32
	SclInter   float32
	SliceEnd   int16
	SliceCode  byte
	XyztUnits  byte
	CalMax     float32
	CalMin     float32
	SliceDur   float32
	Toffset    float32
	Glmax      int32
	Glmin      int32

	Descrip    [80]byte
	AuxFile    [24]byte
	QformCode  int16
	SformCode  int16
	QuaternB   float32
	QuaternC   float32
	QuaternD   float32
	QoffsetX   float32
	QoffsetY   float32
	QoffsetZ   float32
	SrowX      [4]float32
	SrowY      [4]float32
	SrowZ      [4]float32
	IntentName [16]byte
	Magic      [4]byte
}

// Save writes the volume to path as a single-file NIfTI-1 image
// (magic "n+1", float32 voxels). A path ending in .gz is gzip
// compressed. Voxels are written x-fastest, matching the volume's
// in-memory slice-major layout.
func Save(path string, v *models.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	if err := writeImage(w, v); err != nil {
		return fmt.Errorf("writing NIfTI image: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}

func writeImage(w io.Writer, v *models.Volume) error {
	hdr := newHeader(v)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	// Extension flag: four zero bytes, no extensions present.
	if _, err := w.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}
	return writeVoxels(w, v.Data)
}

func newHeader(v *models.Volume) header {
	hdr := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  dtFloat32,
		Bitpix:    bitpixFloat,
		VoxOffset: voxOffset,
		SclSlope:  1,
		XyztUnits: unitsMM,
		SformCode: 1,
		QformCode: 0,
	}

	hdr.Dim[0] = 3
	hdr.Dim[1] = int16(v.Dims.Width)
	hdr.Dim[2] = int16(v.Dims.Height)
	hdr.Dim[3] = int16(v.Dims.Depth)
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}

	sx, sy, sz := float32(v.VoxelSize.X), float32(v.VoxelSize.Y), float32(v.VoxelSize.Z)
	if sx <= 0 {
		sx = 1
	}
	if sy <= 0 {
		sy = 1
	}
	if sz <= 0 {
		sz = 1
	}
	hdr.Pixdim[0] = 1
	hdr.Pixdim[1] = sx
	hdr.Pixdim[2] = sy
	hdr.Pixdim[3] = sz
	for i := 4; i < 8; i++ {
		hdr.Pixdim[i] = 1
	}

	hdr.SrowX = [4]float32{sx, 0, 0, 0}
	hdr.SrowY = [4]float32{0, sy, 0, 0}
	hdr.SrowZ = [4]float32{0, 0, sz, 0}

	copy(hdr.Descrip[:], "foct2nifti converted FOCT volume")
	copy(hdr.Magic[:], "n+1\x00")
	return hdr
}

// writeVoxels streams the voxel data as little-endian float32, in
// buffered chunks to keep allocations bounded for large volumes.
func writeVoxels(w io.Writer, data []float64) error {
	const chunk = 8192
	buf := make([]byte, chunk*4)
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		n := 0
		for _, x := range data[off:end] {
			binary.LittleEndian.PutUint32(buf[n:], math.Float32bits(float32(x)))
			n += 4
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// SaveRaw writes the volume as a headerless little-endian float32 dump.
// This is the fallback persistence format when the NIfTI write fails;
// the shape must travel out of band (the report collaborator records
// it).
func SaveRaw(path string, v *models.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating raw output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeVoxels(w, v.Data); err != nil {
		return fmt.Errorf("writing raw voxels: %w", err)
	}
	return w.Flush()
}
