package blockfs

import (
	"fmt"
	"hash/crc32"

	"blockfs/internal/bits"
	"blockfs/internal/index"
	"blockfs/internal/volume"
)

// Magic and CurrentVersion identify a BlockFS directory file.
var Magic = [8]byte{'B', 'L', 'O', 'C', 'K', 'F', 'S', 0}

const CurrentVersion uint16 = 1

// directoryHeader is the fixed-layout preamble of the directory file,
// everything that precedes the index itself.
type directoryHeader struct {
	Version        uint16
	Volume         volume.Volume
	CodecName      string
	CodecParams    []byte
	BlockFilePaths []string
}

func (h directoryHeader) encode(w *bits.Writer) {
	w.PutBytes(Magic[:])
	w.PutU16(h.Version)
	w.PutU16(uint16(h.Volume.DType))
	w.PutU64(h.Volume.X)
	w.PutU64(h.Volume.Y)
	w.PutU64(h.Volume.Z)
	w.PutU32(h.Volume.BX)
	w.PutU32(h.Volume.BY)
	w.PutU32(h.Volume.BZ)
	w.PutString(h.CodecName)
	w.PutU16(uint16(len(h.CodecParams)))
	w.PutBytes(h.CodecParams)
	w.PutU16(uint16(len(h.BlockFilePaths)))
	for _, p := range h.BlockFilePaths {
		w.PutString(p)
	}
}

func decodeHeader(r *bits.Reader) (directoryHeader, error) {
	var h directoryHeader

	magic, err := r.ReadBytes(len(Magic))
	if err != nil {
		return h, fmt.Errorf("%w: reading magic: %v", ErrFormatError, err)
	}
	for i := range Magic {
		if magic[i] != Magic[i] {
			return h, fmt.Errorf("%w: bad magic", ErrFormatError)
		}
	}

	version, err := r.ReadU16()
	if err != nil {
		return h, fmt.Errorf("%w: reading version: %v", ErrFormatError, err)
	}
	if version != CurrentVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrFormatError, version)
	}
	h.Version = version

	dtypeCode, err := r.ReadU16()
	if err != nil {
		return h, fmt.Errorf("%w: reading dtype: %v", ErrFormatError, err)
	}
	h.Volume.DType = volume.DType(dtypeCode)
	if !h.Volume.DType.Valid() {
		return h, fmt.Errorf("%w: unrecognised dtype code %d", ErrFormatError, dtypeCode)
	}

	if h.Volume.X, err = r.ReadU64(); err != nil {
		return h, fmt.Errorf("%w: reading X: %v", ErrFormatError, err)
	}
	if h.Volume.Y, err = r.ReadU64(); err != nil {
		return h, fmt.Errorf("%w: reading Y: %v", ErrFormatError, err)
	}
	if h.Volume.Z, err = r.ReadU64(); err != nil {
		return h, fmt.Errorf("%w: reading Z: %v", ErrFormatError, err)
	}

	bx, err := r.ReadU32()
	if err != nil {
		return h, fmt.Errorf("%w: reading bx: %v", ErrFormatError, err)
	}
	by, err := r.ReadU32()
	if err != nil {
		return h, fmt.Errorf("%w: reading by: %v", ErrFormatError, err)
	}
	bz, err := r.ReadU32()
	if err != nil {
		return h, fmt.Errorf("%w: reading bz: %v", ErrFormatError, err)
	}
	h.Volume.BX, h.Volume.BY, h.Volume.BZ = bx, by, bz

	h.CodecName, err = r.ReadString()
	if err != nil {
		return h, fmt.Errorf("%w: reading codec name: %v", ErrFormatError, err)
	}

	paramsLen, err := r.ReadU16()
	if err != nil {
		return h, fmt.Errorf("%w: reading codec params length: %v", ErrFormatError, err)
	}
	params, err := r.ReadBytes(int(paramsLen))
	if err != nil {
		return h, fmt.Errorf("%w: reading codec params: %v", ErrFormatError, err)
	}
	h.CodecParams = append([]byte(nil), params...)

	w, err := r.ReadU16()
	if err != nil {
		return h, fmt.Errorf("%w: reading block file count: %v", ErrFormatError, err)
	}
	h.BlockFilePaths = make([]string, w)
	for i := range h.BlockFilePaths {
		h.BlockFilePaths[i], err = r.ReadString()
		if err != nil {
			return h, fmt.Errorf("%w: reading block file path %d: %v", ErrFormatError, i, err)
		}
	}

	return h, nil
}

// encodeDirectoryFile serialises header and ix into the bit-exact,
// CRC-terminated on-disk layout.
func encodeDirectoryFile(h directoryHeader, ix *index.Index) []byte {
	w := bits.NewWriter(nil)
	h.encode(w)
	ix.Serialize(w)
	crc := crc32.ChecksumIEEE(w.Bytes())
	w.PutU32(crc)
	return w.Bytes()
}

// decodeDirectoryFile validates the trailing CRC32 over every prior byte
// before decoding the header and index.
func decodeDirectoryFile(buf []byte) (directoryHeader, *index.Index, error) {
	if len(buf) < 4 {
		return directoryHeader{}, nil, fmt.Errorf("%w: truncated file", ErrFormatError)
	}
	body, wantCRC := buf[:len(buf)-4], buf[len(buf)-4:]
	gotCRC := crc32.ChecksumIEEE(body)
	storedCRC := uint32(wantCRC[0]) | uint32(wantCRC[1])<<8 | uint32(wantCRC[2])<<16 | uint32(wantCRC[3])<<24
	if gotCRC != storedCRC {
		return directoryHeader{}, nil, fmt.Errorf("%w: crc32 mismatch", ErrFormatError)
	}

	r := bits.NewReader(body)
	h, err := decodeHeader(r)
	if err != nil {
		return directoryHeader{}, nil, err
	}
	ix, err := index.Deserialize(r, h.Volume)
	if err != nil {
		return directoryHeader{}, nil, fmt.Errorf("%w: %v", ErrFormatError, err)
	}
	return h, ix, nil
}
