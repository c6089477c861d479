// Package volume holds the immutable global parameters of a BlockFS volume
// and the grid arithmetic every other package builds on: extents, block
// coordinates, and the dense-index linearisation formula from spec §3.
package volume

import "fmt"

// DType identifies the element type stored in a block, matching the
// dtype code enumeration in §6.
type DType uint16

const (
	U8 DType = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
)

var dtypeSizes = [...]int{1, 2, 4, 8, 1, 2, 4, 8, 4, 8}

var dtypeNames = [...]string{"u8", "u16", "u32", "u64", "i8", "i16", "i32", "i64", "f32", "f64"}

// Size returns the element's width in bytes.
func (t DType) Size() int {
	if int(t) >= len(dtypeSizes) {
		return 0
	}
	return dtypeSizes[t]
}

func (t DType) String() string {
	if int(t) >= len(dtypeNames) {
		return fmt.Sprintf("dtype(%d)", uint16(t))
	}
	return dtypeNames[t]
}

// Valid reports whether t is one of the ten recognised dtype codes.
func (t DType) Valid() bool {
	return int(t) < len(dtypeSizes)
}

// Coordinate is an integer block-grid triple (gx, gy, gz), §3.
type Coordinate struct {
	X, Y, Z uint32
}

// Volume carries the parameters fixed at Directory.Create time: voxel
// extent, block extent, and element type. Grid extent is derived.
type Volume struct {
	X, Y, Z    uint64
	BX, BY, BZ uint32
	DType      DType
}

// GridExtent returns (Nx, Ny, Nz) = (ceil(X/bx), ceil(Y/by), ceil(Z/bz)).
func (v Volume) GridExtent() (nx, ny, nz uint64) {
	nx = ceilDiv(v.X, uint64(v.BX))
	ny = ceilDiv(v.Y, uint64(v.BY))
	nz = ceilDiv(v.Z, uint64(v.BZ))
	return
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// GridSize returns Nx*Ny*Nz, the length of the dense index.
func (v Volume) GridSize() uint64 {
	nx, ny, nz := v.GridExtent()
	return nx * ny * nz
}

// InRange reports whether c is within the volume's block grid.
func (v Volume) InRange(c Coordinate) bool {
	nx, ny, nz := v.GridExtent()
	return uint64(c.X) < nx && uint64(c.Y) < ny && uint64(c.Z) < nz
}

// LinearIndex computes idx = ((gz*Ny)+gy)*Nx+gx, the dense-array cell for c.
// The caller must have already validated c with InRange.
func (v Volume) LinearIndex(c Coordinate) uint64 {
	nx, ny, _ := v.GridExtent()
	return (uint64(c.Z)*ny+uint64(c.Y))*nx + uint64(c.X)
}

// Origin returns the voxel-space origin of block c.
func (v Volume) Origin(c Coordinate) (x, y, z uint64) {
	return uint64(c.X) * uint64(v.BX), uint64(c.Y) * uint64(v.BY), uint64(c.Z) * uint64(v.BZ)
}

// NominalElementCount returns bx*by*bz, the block's nominal voxel count —
// the encoded form is always defined over this shape, per §3, even when a
// high-edge block is logically smaller; out-of-extent voxels are zero.
func (v Volume) NominalElementCount() uint64 {
	return uint64(v.BX) * uint64(v.BY) * uint64(v.BZ)
}

// NominalByteSize is the uncompressed size of a block in the `raw` layout.
func (v Volume) NominalByteSize() uint64 {
	return v.NominalElementCount() * uint64(v.DType.Size())
}

// LogicalShape returns the voxel shape of block c truncated to the volume's
// extent — the high-edge case from §3 — as (bz, by, bx) to match the
// element order §6 specifies for the `raw` codec.
func (v Volume) LogicalShape(c Coordinate) (bz, by, bx uint32) {
	ox, oy, oz := v.Origin(c)
	return uint32(minU64(uint64(v.BZ), v.Z-oz)),
		uint32(minU64(uint64(v.BY), v.Y-oy)),
		uint32(minU64(uint64(v.BX), v.X-ox))
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
