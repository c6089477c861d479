package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"

	"blockfs/internal/bits"
	"blockfs/internal/volume"
)

// losslessImageCodec treats each z-slice of a block as a 2-D image and
// PNG-encodes it independently. Restricted to 8- and 16-bit integer
// dtypes, the only ones PNG's color models can represent losslessly. No
// library in the retrieval pack targets PNG directly; this is a
// deliberate stdlib choice (image/png), recorded in DESIGN.md.
type losslessImageCodec struct{}

func newLosslessImage([]byte) (Codec, error) {
	return losslessImageCodec{}, nil
}

func (losslessImageCodec) Name() string { return "lossless-image" }

func (losslessImageCodec) Params() []byte { return nil }

func (losslessImageCodec) Encode(raw []byte) ([]byte, error) {
	return nil, fmt.Errorf("lossless-image: use EncodeBlock")
}

func (losslessImageCodec) Decode(encoded []byte, vol volume.Volume) ([]byte, error) {
	if vol.DType != volume.U8 && vol.DType != volume.U16 {
		return nil, fmt.Errorf("lossless-image: unsupported dtype %s", vol.DType)
	}
	r := bits.NewReader(encoded)
	bz := int(vol.BZ)
	sliceElems := int(vol.BX) * int(vol.BY)
	out := make([]byte, 0, vol.NominalByteSize())
	for z := 0; z < bz; z++ {
		n, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("lossless-image: slice %d length: %w", z, err)
		}
		frame, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("lossless-image: slice %d frame: %w", z, err)
		}
		img, err := png.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("lossless-image: slice %d decode: %w", z, err)
		}
		slice, err := sliceToRaw(img, vol.DType, sliceElems)
		if err != nil {
			return nil, err
		}
		out = append(out, slice...)
	}
	return out, nil
}

// EncodeBlock is the image-codec-specific entry point (Codec.Encode can't
// express "one 2-D frame per z", since it only takes a flat raw byte
// block); the WriterPool's workers call it instead of Encode when the
// resolved codec is this type.
func (losslessImageCodec) EncodeBlock(raw []byte, vol volume.Volume) ([]byte, error) {
	if vol.DType != volume.U8 && vol.DType != volume.U16 {
		return nil, fmt.Errorf("lossless-image: unsupported dtype %s", vol.DType)
	}
	w := bits.NewWriter(nil)
	elemSize := vol.DType.Size()
	sliceBytes := int(vol.BX) * int(vol.BY) * elemSize
	for z := 0; z < int(vol.BZ); z++ {
		start := z * sliceBytes
		end := start + sliceBytes
		if end > len(raw) {
			return nil, fmt.Errorf("lossless-image: block shorter than expected at slice %d", z)
		}
		img := rawToImage(raw[start:end], vol.DType, int(vol.BX), int(vol.BY))
		var frame bytes.Buffer
		if err := png.Encode(&frame, img); err != nil {
			return nil, fmt.Errorf("lossless-image: slice %d encode: %w", z, err)
		}
		w.PutU32(uint32(frame.Len()))
		w.PutBytes(frame.Bytes())
	}
	return w.Bytes(), nil
}

func rawToImage(raw []byte, dtype volume.DType, bx, by int) image.Image {
	switch dtype {
	case volume.U8:
		img := image.NewGray(image.Rect(0, 0, bx, by))
		copy(img.Pix, raw)
		return img
	case volume.U16:
		img := image.NewGray16(image.Rect(0, 0, bx, by))
		for i := 0; i < bx*by; i++ {
			v := binary.LittleEndian.Uint16(raw[i*2:])
			binary.BigEndian.PutUint16(img.Pix[i*2:], v) // image.Gray16 is big-endian internally
		}
		return img
	default:
		panic("unreachable: validated by caller")
	}
}

func sliceToRaw(img image.Image, dtype volume.DType, elems int) ([]byte, error) {
	switch dtype {
	case volume.U8:
		gray, ok := img.(*image.Gray)
		if !ok {
			return nil, fmt.Errorf("lossless-image: expected 8-bit grayscale frame")
		}
		out := make([]byte, elems)
		copy(out, gray.Pix)
		return out, nil
	case volume.U16:
		gray, ok := img.(*image.Gray16)
		if !ok {
			return nil, fmt.Errorf("lossless-image: expected 16-bit grayscale frame")
		}
		out := make([]byte, elems*2)
		for i := 0; i < elems; i++ {
			v := binary.BigEndian.Uint16(gray.Pix[i*2:])
			binary.LittleEndian.PutUint16(out[i*2:], v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("lossless-image: unsupported dtype")
	}
}
