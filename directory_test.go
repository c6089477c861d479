package blockfs

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, cfg CreateConfig) *Directory {
	t.Helper()
	d, err := Create(cfg)
	require.NoError(t, err)
	require.NoError(t, d.StartWriterProcesses())
	return d
}

func TestRoundTripAndAbsentRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4,
		DType: U16, Codec: "raw", Workers: 2,
	})

	zeros := make([]byte, 128)
	ones := bytes.Repeat([]byte{0xFF}, 128)

	require.NoError(t, d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, zeros))
	require.NoError(t, d.WriteBlock(Coordinate{X: 1, Y: 1, Z: 1}, ones))

	errLog, err := d.Close()
	require.NoError(t, err)
	require.True(t, errLog.Empty())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, zeros, got)

	got, ok, err = reopened.ReadBlock(Coordinate{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ones, got)

	_, ok, err = reopened.ReadBlock(Coordinate{X: 1, Y: 0, Z: 0})
	require.NoError(t, err)
	require.False(t, ok, "an unwritten coordinate must read back as Absent, not an error")
}

func TestGzipRoundTripAndSmallerOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4,
		DType: U16, Codec: "gzip", CodecParams: []byte{6}, Workers: 2,
	})

	zeros := make([]byte, 128)
	ones := bytes.Repeat([]byte{0xFF}, 128)
	require.NoError(t, d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, zeros))
	require.NoError(t, d.WriteBlock(Coordinate{X: 1, Y: 1, Z: 1}, ones))

	_, err := d.Close()
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, zeros, got)

	stats := reopened.Stats()
	var total uint64
	for _, f := range stats.Files {
		total += f.Bytes
	}
	require.Less(t, total, uint64(2*128), "two constant blocks should compress smaller than their raw size")
}

func TestConcurrentDisjointWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 32, Y: 32, Z: 32, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 4,
	})

	var coords []Coordinate
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			for z := uint32(0); z < 4; z++ {
				coords = append(coords, Coordinate{X: x, Y: y, Z: z})
			}
		}
	}
	require.Len(t, coords, 64)

	var wg sync.WaitGroup
	for i, c := range coords {
		wg.Add(1)
		go func(i int, c Coordinate) {
			defer wg.Done()
			block := bytes.Repeat([]byte{byte(i)}, 64)
			require.NoError(t, d.WriteBlock(c, block))
		}(i, c)
	}
	wg.Wait()

	errLog, err := d.Close()
	require.NoError(t, err)
	require.True(t, errLog.Empty())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	for i, c := range coords {
		got, ok, err := reopened.ReadBlock(c)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, bytes.Repeat([]byte{byte(i)}, 64), got)
	}
}

func TestDuplicateWriteIsNonFatalAndFirstWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})

	first := bytes.Repeat([]byte{1}, 64)
	second := bytes.Repeat([]byte{2}, 64)
	c := Coordinate{X: 0, Y: 0, Z: 0}

	require.NoError(t, d.WriteBlock(c, first))
	require.NoError(t, d.WriteBlock(c, second))

	errLog, err := d.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, errLog.CountOf(EventDuplicateWrite))

	got, ok, err := d.ReadBlock(c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, got)

	_, err = d.Close()
	require.NoError(t, err)
}

func TestEncodeFailureIsRecordedAndLeavesNoIndexEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	// jpeg2000 only accepts U8; resolving it over a U16 volume makes every
	// encode fail deterministically, exercising the WriteFailure path
	// without needing to fake a disk I/O error.
	d := mustCreate(t, CreateConfig{
		Path: path, X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4,
		DType: U16, Codec: "jpeg2000", CodecParams: []byte{60}, Workers: 1,
	})

	c := Coordinate{X: 0, Y: 0, Z: 0}
	require.NoError(t, d.WriteBlock(c, make([]byte, 128)))

	errLog, err := d.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, errLog.CountOf(EventWriteFailure))

	_, ok, err := d.ReadBlock(c)
	require.NoError(t, err)
	require.False(t, ok, "a failed encode must not leave a committed index entry")

	_, err = d.Close()
	require.NoError(t, err)
}

func TestCreateRefusesExistingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	defer d.Close()

	_, err := Create(CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw",
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.blockfs"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	_, err := d.Close()
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, make([]byte, 64))
	require.ErrorIs(t, err, ErrClosed)
}

func TestWriteBlockValidatesShapeAndRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	defer d.Close()

	err := d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, make([]byte, 17))
	require.ErrorIs(t, err, ErrShapeMismatch)

	err = d.WriteBlock(Coordinate{X: 9, Y: 0, Z: 0}, make([]byte, 64))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestWriteBlockZeroPadsHighEdgeBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	// 10 voxels of block size 4 -> grid of 3, high-edge block at gx=2
	// only covers 2 logical voxels instead of the nominal 4.
	d := mustCreate(t, CreateConfig{
		Path: path, X: 10, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})

	c := Coordinate{X: 2, Y: 0, Z: 0}
	logical := bytes.Repeat([]byte{7}, 2*4*4) // (bz=4, by=4, bx=2)
	require.NoError(t, d.WriteBlock(c, logical))

	errLog, err := d.Flush()
	require.NoError(t, err)
	require.True(t, errLog.Empty())

	got, ok, err := d.ReadBlock(c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 4*4*4) // nominal shape, zero-padded

	_, err = d.Close()
	require.NoError(t, err)
}

func TestMoveToAndRebaseRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 8, Y: 8, Z: 8, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 2,
	})

	// The 8x8x8 grid with 4^3 blocks has exactly 8 distinct coordinates.
	coords := make([]Coordinate, 8)
	blocks := make([][]byte, 8)
	for i := range coords {
		coords[i] = Coordinate{X: uint32(i % 2), Y: uint32((i / 2) % 2), Z: uint32((i / 4) % 2)}
		blocks[i] = bytes.Repeat([]byte{byte(i + 1)}, 64)
		require.NoError(t, d.WriteBlock(coords[i], blocks[i]))
	}

	_, err := d.Close()
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)

	destDir := filepath.Join(t.TempDir(), "moved")
	require.NoError(t, reopened.MoveTo(destDir))

	moved, err := Open(filepath.Join(destDir, "vol.blockfs"))
	require.NoError(t, err)
	defer moved.Close()

	for i, c := range coords {
		got, ok, err := moved.ReadBlock(c)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, blocks[i], got)
	}
}

func TestRebaseAfterManualFileMove(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	block := bytes.Repeat([]byte{9}, 64)
	require.NoError(t, d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, block))
	_, err := d.Close()
	require.NoError(t, err)

	destDir := t.TempDir()
	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Rename(filepath.Join(srcDir, e.Name()), filepath.Join(destDir, e.Name())))
	}

	movedPath := filepath.Join(destDir, "vol.blockfs")
	reopened, err := Open(movedPath)
	require.NoError(t, err)
	require.NoError(t, reopened.Rebase(destDir))

	rebased, err := Open(movedPath)
	require.NoError(t, err)
	defer rebased.Close()

	got, ok, err := rebased.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block, got)
}

func TestOpenTruncatesGarbageTailBeyondIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	block := bytes.Repeat([]byte{5}, 64)
	require.NoError(t, d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, block))
	_, err := d.Close()
	require.NoError(t, err)

	// Simulate a crash mid-append: extend BlockFile 0 with garbage bytes
	// past the offset+nbytes its index entries record.
	blockFilePath := path + ".0"
	f, err := os.OpenFile(blockFilePath, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte{0xAA}, 32))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(blockFilePath)
	require.NoError(t, err)
	require.EqualValues(t, 96, info.Size(), "garbage should have been appended")

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	info, err = os.Stat(blockFilePath)
	require.NoError(t, err)
	require.EqualValues(t, 64, info.Size(), "Open must truncate back to the last committed append")

	got, ok, err := reopened.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block, got)
}

func TestCopyToLeavesOriginalIntact(t *testing.T) {
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "vol.blockfs")
	d := mustCreate(t, CreateConfig{
		Path: path, X: 4, Y: 4, Z: 4, BX: 4, BY: 4, BZ: 4,
		DType: U8, Codec: "raw", Workers: 1,
	})
	block := bytes.Repeat([]byte{3}, 64)
	require.NoError(t, d.WriteBlock(Coordinate{X: 0, Y: 0, Z: 0}, block))
	_, err := d.Close()
	require.NoError(t, err)

	original, err := Open(path)
	require.NoError(t, err)
	defer original.Close()

	destDir := t.TempDir()
	copyDir, err := original.CopyTo(destDir)
	require.NoError(t, err)
	defer copyDir.Close()

	got, ok, err := copyDir.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block, got)

	got, ok, err = original.ReadBlock(Coordinate{X: 0, Y: 0, Z: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block, got, "CopyTo must not disturb the source directory")
}
