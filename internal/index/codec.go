package index

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Geometry artifact layout (little-endian throughout):
//
//	magic   [4]byte  "AGVX"
//	version uint8    1
//	dim     uint32
//	count   uint32
//	vecs    count × dim × float32
//
// The format is versioned and self-describing so a snapshot written by one
// build can be reloaded by another without relying on in-process object
// serialisation.

// codecVersion is the current geometry artifact version.
const codecVersion = 1

// magic identifies a serialized Flat index.
var magic = [4]byte{'A', 'G', 'V', 'X'}

// headerSize is the fixed byte length of the artifact header.
const headerSize = 4 + 1 + 4 + 4

// MarshalBinary serialises the index into the geometry artifact format.
func (f *Flat) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize, headerSize+len(f.vecs)*f.dim*4)
	copy(out[0:4], magic[:])
	out[4] = codecVersion
	binary.LittleEndian.PutUint32(out[5:9], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[9:13], uint32(len(f.vecs)))

	var buf [4]byte
	for _, vec := range f.vecs {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			out = append(out, buf[:]...)
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index from a geometry artifact. The receiver's
// previous contents are replaced only on success; any malformed input returns
// an error and leaves the receiver untouched.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("index: artifact too short: %d bytes", len(data))
	}
	if [4]byte(data[0:4]) != magic {
		return fmt.Errorf("index: bad artifact magic %q", data[0:4])
	}
	if v := data[4]; v != codecVersion {
		return fmt.Errorf("index: unsupported artifact version %d", v)
	}

	dim := int(binary.LittleEndian.Uint32(data[5:9]))
	count := int(binary.LittleEndian.Uint32(data[9:13]))
	if dim <= 0 {
		return fmt.Errorf("index: artifact declares non-positive dimension %d", dim)
	}

	want := headerSize + count*dim*4
	if len(data) != want {
		return fmt.Errorf("index: artifact length %d does not match declared %d vectors of dim %d (want %d)", len(data), count, dim, want)
	}

	vecs := make([][]float32, count)
	off := headerSize
	for i := range count {
		vec := make([]float32, dim)
		for j := range dim {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[i] = vec
	}

	f.dim = dim
	f.vecs = vecs
	return nil
}
