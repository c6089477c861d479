package index

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"blockfs/internal/bits"
	"blockfs/internal/volume"
)

func testVolume() volume.Volume {
	return volume.Volume{X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4, DType: volume.U16}
}

func TestNewIndexAllAbsent(t *testing.T) {
	ix := New(testVolume())
	e, ok := ix.Get(volume.Coordinate{X: 0, Y: 0, Z: 0})
	require.False(t, ok)
	require.True(t, e.Absent())
}

func TestPutThenGet(t *testing.T) {
	ix := New(testVolume())
	c := volume.Coordinate{X: 1, Y: 0, Z: 0}
	entry := Entry{FileID: 2, Offset: 128, NBytes: 64}

	require.NoError(t, ix.Put(c, entry))

	got, ok := ix.Get(c)
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func TestPutDuplicateRejected(t *testing.T) {
	ix := New(testVolume())
	c := volume.Coordinate{X: 0, Y: 0, Z: 0}
	require.NoError(t, ix.Put(c, Entry{FileID: 0, Offset: 0, NBytes: 16}))
	err := ix.Put(c, Entry{FileID: 0, Offset: 16, NBytes: 16})
	require.ErrorIs(t, err, ErrDuplicateWrite)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	vol := testVolume()
	ix := New(vol)
	require.NoError(t, ix.Put(volume.Coordinate{X: 0, Y: 0, Z: 0}, Entry{FileID: 0, Offset: 0, NBytes: 10}))
	require.NoError(t, ix.Put(volume.Coordinate{X: 1, Y: 1, Z: 1}, Entry{FileID: 1, Offset: 50, NBytes: 20}))

	w := bits.NewWriter(nil)
	ix.Serialize(w)

	// A debug dump of the encoded index buffer, as the teacher dumps
	// encoded slab headers in manager/meta/update_slab_on_disk.go during
	// development of a binary layout.
	if testing.Verbose() {
		spew.Dump(w.Bytes())
	}

	r := bits.NewReader(w.Bytes())
	got, err := Deserialize(r, vol)
	require.NoError(t, err)
	require.Equal(t, ix.Len(), got.Len())

	e1, ok := got.Get(volume.Coordinate{X: 0, Y: 0, Z: 0})
	require.True(t, ok)
	require.Equal(t, Entry{FileID: 0, Offset: 0, NBytes: 10}, e1)

	e2, ok := got.Get(volume.Coordinate{X: 1, Y: 1, Z: 1})
	require.True(t, ok)
	require.Equal(t, Entry{FileID: 1, Offset: 50, NBytes: 20}, e2)

	_, ok = got.Get(volume.Coordinate{X: 1, Y: 0, Z: 0})
	require.False(t, ok)
}

func TestDeserializeRejectsLengthMismatch(t *testing.T) {
	vol := testVolume()
	w := bits.NewWriter(nil)
	w.PutU64(vol.GridSize() + 1)
	_, err := Deserialize(bits.NewReader(w.Bytes()), vol)
	require.Error(t, err)
}

func TestMaxOffsetForFile(t *testing.T) {
	vol := testVolume()
	ix := New(vol)
	require.NoError(t, ix.Put(volume.Coordinate{X: 0, Y: 0, Z: 0}, Entry{FileID: 0, Offset: 0, NBytes: 10}))
	require.NoError(t, ix.Put(volume.Coordinate{X: 1, Y: 0, Z: 0}, Entry{FileID: 0, Offset: 10, NBytes: 30}))
	require.NoError(t, ix.Put(volume.Coordinate{X: 0, Y: 1, Z: 0}, Entry{FileID: 1, Offset: 0, NBytes: 5}))

	require.EqualValues(t, 40, ix.MaxOffsetForFile(0))
	require.EqualValues(t, 5, ix.MaxOffsetForFile(1))
	require.EqualValues(t, 0, ix.MaxOffsetForFile(2))
}
