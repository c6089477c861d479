package volume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testVolume() Volume {
	return Volume{X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4, DType: U16}
}

func TestGridExtent(t *testing.T) {
	v := testVolume()
	nx, ny, nz := v.GridExtent()
	require.EqualValues(t, 2, nx)
	require.EqualValues(t, 2, ny)
	require.EqualValues(t, 2, nz)
	require.EqualValues(t, 8, v.GridSize())
}

func TestGridExtentRoundsUp(t *testing.T) {
	v := Volume{X: 10, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4, DType: U8}
	nx, _, _ := v.GridExtent()
	require.EqualValues(t, 3, nx, "10 voxels of block size 4 needs 3 blocks, not 2")
}

func TestInRange(t *testing.T) {
	v := testVolume()
	require.True(t, v.InRange(Coordinate{X: 0, Y: 0, Z: 0}))
	require.True(t, v.InRange(Coordinate{X: 1, Y: 1, Z: 1}))
	require.False(t, v.InRange(Coordinate{X: 2, Y: 0, Z: 0}))
}

func TestLinearIndexIsDenseAndUnique(t *testing.T) {
	v := testVolume()
	seen := make(map[uint64]Coordinate)
	nx, ny, nz := v.GridExtent()
	for z := uint32(0); z < uint32(nz); z++ {
		for y := uint32(0); y < uint32(ny); y++ {
			for x := uint32(0); x < uint32(nx); x++ {
				c := Coordinate{X: x, Y: y, Z: z}
				idx := v.LinearIndex(c)
				require.Less(t, idx, v.GridSize())
				if prev, ok := seen[idx]; ok {
					t.Fatalf("coordinates %v and %v collided on index %d", prev, c, idx)
				}
				seen[idx] = c
			}
		}
	}
	require.Len(t, seen, int(v.GridSize()))
}

func TestOrigin(t *testing.T) {
	v := testVolume()
	x, y, z := v.Origin(Coordinate{X: 1, Y: 1, Z: 1})
	require.EqualValues(t, 4, x)
	require.EqualValues(t, 4, y)
	require.EqualValues(t, 4, z)
}

func TestLogicalShapeInterior(t *testing.T) {
	v := testVolume()
	bz, by, bx := v.LogicalShape(Coordinate{X: 0, Y: 0, Z: 0})
	require.EqualValues(t, 4, bz)
	require.EqualValues(t, 4, by)
	require.EqualValues(t, 4, bx)
}

func TestLogicalShapeHighEdgeTruncation(t *testing.T) {
	v := Volume{X: 10, Y: 10, Z: 10, BX: 4, BY: 4, BZ: 4, DType: U8}
	// grid is 3x3x3; the high-edge block (2,2,2) covers voxels 8..10, i.e.
	// only 2 voxels wide in every axis, not the nominal 4.
	bz, by, bx := v.LogicalShape(Coordinate{X: 2, Y: 2, Z: 2})
	require.EqualValues(t, 2, bz)
	require.EqualValues(t, 2, by)
	require.EqualValues(t, 2, bx)
}

func TestNominalByteSize(t *testing.T) {
	v := testVolume()
	require.EqualValues(t, 4*4*4*2, v.NominalByteSize())
}

func TestDTypeSizeAndValid(t *testing.T) {
	require.Equal(t, 1, U8.Size())
	require.Equal(t, 8, F64.Size())
	require.True(t, U16.Valid())
	require.False(t, DType(99).Valid())
	require.Equal(t, "u16", U16.String())
}
